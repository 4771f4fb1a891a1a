package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/koscakluka/ema-docchat/core/backend"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	errProcessPDF  = "Failed to process PDF"
	errAIResponse  = "Failed to get AI response"
	errBadRequest  = "Invalid request"
	multipartField = "pdf"
)

type uploadResponse struct {
	Text string `json:"text"`
}

type chatRequest struct {
	Message    string `json:"message"`
	PDFContent string `json:"pdfContent"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "upload pdf")
	defer span.End()
	r = r.WithContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, backend.MaxUploadSize+1<<20)
	file, header, err := r.FormFile(multipartField)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing upload")
		logger.Warn("pdf upload rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errProcessPDF})
		return
	}
	defer file.Close()

	if err := backend.ValidateUpload(header.Header.Get("Content-Type"), int(header.Size)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid upload")
		logger.Warn("pdf upload rejected", "file", header.Filename, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, backend.MaxUploadSize+1))
	if err == nil && len(data) > backend.MaxUploadSize {
		err = errors.New("upload exceeds size limit")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errProcessPDF})
		return
	}

	text, err := s.extract(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to process pdf", "file", header.Filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errProcessPDF})
		return
	}

	span.SetAttributes(attribute.Int("text.length", len(text)))
	logger.Info("pdf processed", "file", header.Filename, "bytes", len(data))
	writeJSON(w, http.StatusOK, uploadResponse{Text: text})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "chat")
	defer span.End()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errBadRequest})
		return
	}

	if s.answers == nil {
		logger.Error("chat requested without an answer service")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errAIResponse})
		return
	}

	answer, err := s.answers.Ask(ctx, req.Message, req.PDFContent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("error in chat endpoint", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errAIResponse})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: answer})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}
