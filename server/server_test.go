package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/koscakluka/ema-docchat/core/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answerStub struct {
	answer string
	err    error

	mu                 sync.Mutex
	question, document string
}

func (a *answerStub) Ask(_ context.Context, question, documentText string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.question, a.document = question, documentText
	return a.answer, a.err
}

func newTestServer(t *testing.T, opts ...ServerOption) *httptest.Server {
	t.Helper()
	s := New(opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return ts
}

func newHTTPTestServer(t *testing.T, s *Server) string {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return ts.URL
}

func uploadBody(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="pdf"; filename="doc.pdf"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestUploadPDFReturnsExtractedText(t *testing.T) {
	extracted := make(chan []byte, 1)
	ts := newTestServer(t, withExtractor(func(data []byte) (string, error) {
		extracted <- data
		return "The quick brown fox jumps", nil
	}))

	body, contentType := uploadBody(t, backend.PDFContentType, []byte("%PDF-1.4 fake"))
	resp, err := http.Post(ts.URL+"/api/upload-pdf", contentType, body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "The quick brown fox jumps", decode[uploadResponse](t, resp).Text)
	assert.Equal(t, []byte("%PDF-1.4 fake"), <-extracted)
}

func TestUploadPDFRejectsOtherContentTypes(t *testing.T) {
	var called atomic.Bool
	ts := newTestServer(t, withExtractor(func([]byte) (string, error) {
		called.Store(true)
		return "", nil
	}))

	body, contentType := uploadBody(t, "text/plain", []byte("hello"))
	resp, err := http.Post(ts.URL+"/api/upload-pdf", contentType, body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, decode[errorResponse](t, resp).Error)
	assert.False(t, called.Load())
}

func TestUploadPDFReportsExtractionFailure(t *testing.T) {
	ts := newTestServer(t, withExtractor(func([]byte) (string, error) {
		return "", errors.New("broken xref table")
	}))

	body, contentType := uploadBody(t, backend.PDFContentType, []byte("%PDF-1.4"))
	resp, err := http.Post(ts.URL+"/api/upload-pdf", contentType, body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to process PDF", decode[errorResponse](t, resp).Error)
}

func TestUploadPDFWithoutFile(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/upload-pdf", "application/json", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Failed to process PDF", decode[errorResponse](t, resp).Error)
}

func TestChatReturnsAnswer(t *testing.T) {
	answers := &answerStub{answer: "It discusses X."}
	ts := newTestServer(t, WithAnswerService(answers))

	payload, err := json.Marshal(chatRequest{Message: "What is the main topic?", PDFContent: "doc"})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "It discusses X.", decode[chatResponse](t, resp).Response)
	answers.mu.Lock()
	defer answers.mu.Unlock()
	assert.Equal(t, "What is the main topic?", answers.question)
	assert.Equal(t, "doc", answers.document)
}

func TestChatReportsAnswerFailure(t *testing.T) {
	ts := newTestServer(t, WithAnswerService(&answerStub{err: errors.New("rate limited")}))

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewBufferString(`{"message":"hi","pdfContent":"doc"}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to get AI response", decode[errorResponse](t, resp).Error)
}

func TestChatRejectsMalformedRequests(t *testing.T) {
	ts := newTestServer(t, WithAnswerService(&answerStub{answer: "unused"}))

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewBufferString(`{"pdfContent":"doc"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestBackendClientRoundTrip(t *testing.T) {
	ts := newTestServer(t,
		WithAnswerService(&answerStub{answer: "Short answer."}),
		withExtractor(func([]byte) (string, error) { return "extracted text", nil }),
	)
	client := backend.NewClient(ts.URL)

	text, err := client.ExtractText(context.Background(), "doc.pdf", backend.PDFContentType, []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)

	answer, err := client.Ask(context.Background(), "Question?", text)
	require.NoError(t, err)
	assert.Equal(t, "Short answer.", answer)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	ts := newTestServer(t, WithAllowedOrigin("http://localhost:3000"))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestExtractTextRejectsInvalidDocuments(t *testing.T) {
	_, err := ExtractText([]byte("definitely not a pdf"))
	assert.Error(t, err)

	_, err = ExtractText(nil)
	assert.Error(t, err)
}
