// Package backend is the HTTP client for the document chat backend: text
// extraction of uploaded PDFs and question answering.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	PDFContentType = "application/pdf"
	MaxUploadSize  = 10 << 20

	DefaultUploadTimeout = 30 * time.Second
	DefaultBaseURL       = "http://localhost:5000"

	uploadPath = "/api/upload-pdf"
	chatPath   = "/api/chat"
	uploadForm = "pdf"
)

type Client struct {
	baseURL       string
	httpClient    *http.Client
	uploadTimeout time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithUploadTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.uploadTimeout = timeout
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		uploadTimeout: DefaultUploadTimeout,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ValidateUpload checks a document before it is sent. Only PDFs of at most
// MaxUploadSize bytes are accepted.
func ValidateUpload(contentType string, size int) error {
	if size == 0 {
		return &UploadError{Reason: "no file selected"}
	}
	if contentType != PDFContentType {
		return &UploadError{Reason: "please upload a valid PDF file"}
	}
	if size > MaxUploadSize {
		return &UploadError{Reason: "file size too large, please upload a file smaller than 10MB"}
	}
	return nil
}

// ExtractText uploads the PDF and returns the extracted text.
func (c *Client) ExtractText(ctx context.Context, fileName, contentType string, pdf []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "extract document text")
	defer span.End()
	span.SetAttributes(attribute.String("document.name", fileName), attribute.Int("document.size", len(pdf)))

	if err := ValidateUpload(contentType, len(pdf)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload rejected")
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body, formContentType, err := multipartBody(fileName, contentType, pdf)
	if err != nil {
		return "", &UploadError{Reason: "could not build request", Err: err}
	}

	var response struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := c.do(ctx, uploadPath, formContentType, body, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")

		var responseErr *ResponseError
		if errors.As(err, &responseErr) {
			return "", &UploadError{Reason: responseErr.Message, Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &UploadError{Reason: "no response from server", Err: err}
		}
		return "", &UploadError{Reason: "an error occurred while uploading the file", Err: err}
	}

	if strings.TrimSpace(response.Text) == "" {
		err := &TranscriptionError{Reason: "failed to extract text from PDF"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty text")
		return "", err
	}

	logger.Info("extracted document text", "name", fileName, "characters", len(response.Text))
	return response.Text, nil
}

// Ask sends the question together with the document text to the backend and
// returns its answer.
func (c *Client) Ask(ctx context.Context, question, documentText string) (string, error) {
	ctx, span := tracer.Start(ctx, "ask backend")
	defer span.End()

	payload, err := json.Marshal(chatRequest{Message: question, PDFContent: documentText})
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	var response chatResponse
	if err := c.do(ctx, chatPath, "application/json", bytes.NewReader(payload), &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return "", err
	}
	if strings.TrimSpace(response.Response) == "" {
		return "", fmt.Errorf("backend returned an empty response")
	}

	return response.Response, nil
}

type chatRequest struct {
	Message    string `json:"message"`
	PDFContent string `json:"pdfContent"`
}

type chatResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(bodyBytes))
		if json.Unmarshal(bodyBytes, &errBody) == nil && errBody.Error != "" {
			message = errBody.Error
		}
		return &ResponseError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("error unmarshalling response body: %w", err)
	}
	return nil
}

func multipartBody(fileName, contentType string, content []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadForm, fileName))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
