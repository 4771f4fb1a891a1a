package backend

import "fmt"

// UploadError is returned when a document cannot be uploaded, either because
// it was rejected before sending or because the request itself failed.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload failed: %s: %v", e.Reason, e.Err)
	}
	return "upload failed: " + e.Reason
}

func (e *UploadError) Unwrap() error { return e.Err }

// TranscriptionError is returned when the backend accepted the document but
// could not produce any text from it.
type TranscriptionError struct {
	Reason string
}

func (e *TranscriptionError) Error() string {
	return "text extraction failed: " + e.Reason
}

// ResponseError carries the error message the backend put in its JSON body.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}
