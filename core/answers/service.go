// Package answers turns a question about a document into a short spoken
// answer using a chat language model.
package answers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-docchat/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultMaxSentences = 5

	instructionsTemplate = `You are a helpful assistant analyzing a PDF document.
Answer questions concisely with a maximum of 10 sentences.
Avoid long explanations or unnecessary details.
Here's the content: %s`
)

var ErrEmptyAnswer = errors.New("language model returned an empty answer")

type LLM interface {
	Chat(ctx context.Context, messages []llms.Message, opts ...llms.ChatOption) (*llms.Response, error)
}

type Service struct {
	llm          LLM
	maxSentences int
	chatOptions  []llms.ChatOption
}

type ServiceOption func(*Service)

// WithMaxSentences sets how many sentences of the model output are kept.
func WithMaxSentences(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxSentences = n
		}
	}
}

// WithChatOptions passes generation settings through to every model call.
func WithChatOptions(opts ...llms.ChatOption) ServiceOption {
	return func(s *Service) { s.chatOptions = append(s.chatOptions, opts...) }
}

func NewService(llm LLM, opts ...ServiceOption) *Service {
	service := &Service{
		llm:          llm,
		maxSentences: DefaultMaxSentences,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Ask answers the question using the document text as the only context. The
// answer is capped at the configured number of sentences.
func (s *Service) Ask(ctx context.Context, question, documentText string) (string, error) {
	ctx, span := tracer.Start(ctx, "answer question")
	defer span.End()
	span.SetAttributes(
		attribute.Int("question.length", len(question)),
		attribute.Int("document.length", len(documentText)),
	)

	messages := []llms.Message{
		llms.SystemMessage(Instructions(documentText)),
		llms.UserMessage(question),
	}

	response, err := s.llm.Chat(ctx, messages, s.chatOptions...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return "", fmt.Errorf("failed to get answer: %w", err)
	}

	answer := TruncateSentences(response.Content, s.maxSentences)
	if answer == "" {
		span.SetStatus(codes.Error, "empty answer")
		return "", ErrEmptyAnswer
	}

	if response.FinishReason == "length" {
		logger.Debug("model output hit the token limit", "length", len(response.Content))
	}
	return answer, nil
}

// Instructions renders the system message for a document.
func Instructions(documentText string) string {
	return fmt.Sprintf(instructionsTemplate, documentText)
}

// TruncateSentences keeps the first n ". " separated sentences of text and
// makes sure the result ends with terminal punctuation.
func TruncateSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" || n <= 0 {
		return ""
	}

	sentences := strings.Split(text, ". ")
	if len(sentences) > n {
		sentences = sentences[:n]
	}

	truncated := strings.TrimSpace(strings.Join(sentences, ". "))
	if !strings.HasSuffix(truncated, ".") && !strings.HasSuffix(truncated, "?") && !strings.HasSuffix(truncated, "!") {
		truncated += "."
	}
	return truncated
}
