// Package server is the HTTP backend of the document chat: PDF text
// extraction, answers about a document and the room hub relaying
// notifications between participants.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultAddr          = ":5000"
	DefaultAllowedOrigin = "http://localhost:3000"

	shutdownTimeout = 5 * time.Second
)

// AnswerService answers a question about a document.
type AnswerService interface {
	Ask(ctx context.Context, question, documentText string) (string, error)
}

type Server struct {
	router chi.Router
	hub    *Hub

	answers       AnswerService
	allowedOrigin string
	extract       func([]byte) (string, error)
}

type ServerOption func(*Server)

func WithAnswerService(service AnswerService) ServerOption {
	return func(s *Server) { s.answers = service }
}

// WithAllowedOrigin sets the front-end origin allowed by CORS.
func WithAllowedOrigin(origin string) ServerOption {
	return func(s *Server) { s.allowedOrigin = origin }
}

func WithHub(hub *Hub) ServerOption {
	return func(s *Server) { s.hub = hub }
}

func withExtractor(extract func([]byte) (string, error)) ServerOption {
	return func(s *Server) { s.extract = extract }
}

func New(opts ...ServerOption) *Server {
	s := &Server{
		allowedOrigin: DefaultAllowedOrigin,
		extract:       ExtractText,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors(s.allowedOrigin))

	r.Get("/healthz", handleHealth)
	r.Post("/api/upload-pdf", s.handleUploadPDF)
	r.Post("/api/chat", s.handleChat)
	r.Get("/ws", s.hub.ServeHTTP)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "docchat")
}

func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("server running", "addr", addr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// cors allows the configured front-end origin with credentials.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Origin") == origin {
				header := w.Header()
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Credentials", "true")
				header.Set("Access-Control-Allow-Methods", "GET, POST")
				header.Set("Access-Control-Allow-Headers", "Content-Type")
				header.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
