package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-docchat/core/events"
	"github.com/koscakluka/ema-docchat/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// speechInput turns microphone capture plus streaming recognition into a
// single listen-once call.
type speechInput struct {
	client SpeechToText
	input  AudioInput

	emitEvent eventEmitter
}

type listenResult struct {
	transcript string
	err        error
}

// listenOnce opens a fresh recognizer and waits for the first final
// transcript. Cancelling ctx resolves with no text and no error. The
// recognizer and the capture are released on every path before returning.
func (s *speechInput) listenOnce(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "listen once")
	defer span.End()

	if s.client == nil {
		return "", &SpeechRecognitionError{Err: fmt.Errorf("speech-to-text %w", errNotConfigured)}
	}
	if s.input == nil {
		return "", &SpeechRecognitionError{Err: fmt.Errorf("audio input %w", errNotConfigured)}
	}

	results := make(chan listenResult, 1)
	resolve := func(result listenResult) {
		select {
		case results <- result:
		default:
		}
	}

	recognizer, err := s.client.NewRecognizer(ctx,
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			resolve(listenResult{transcript: transcript})
		}),
		speechtotext.WithInterimTranscriptionCallback(func(transcript string) {
			s.emit(events.NewUserTranscriptInterimUpdated(transcript))
		}),
		speechtotext.WithSpeechStartedCallback(func() {
			s.emit(events.NewUserSpeechStarted())
		}),
		speechtotext.WithErrorCallback(func(err error) {
			resolve(listenResult{err: err})
		}),
		speechtotext.WithEncodingInfo(s.input.EncodingInfo()),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil
		}
		recordError(span, "failed to open recognizer", err)
		return "", &SpeechRecognitionError{Err: fmt.Errorf("failed to open recognizer: %w", err)}
	}
	defer func() {
		if err := recognizer.Close(); err != nil {
			logger.Warn("failed to close recognizer", "error", err)
		}
	}()

	stopCapture, err := startCapture(ctx, s.input, func(audio []byte) {
		if err := recognizer.SendAudio(audio); err != nil {
			resolve(listenResult{err: fmt.Errorf("failed to send audio: %w", err)})
		}
	})
	if err != nil {
		recordError(span, "failed to start capture", err)
		return "", &SpeechRecognitionError{Err: err}
	}
	defer stopCapture()

	select {
	case result := <-results:
		if result.err != nil {
			recordError(span, "recognition failed", result.err)
			return "", &SpeechRecognitionError{Err: result.err}
		}
		transcript := strings.TrimSpace(result.transcript)
		span.SetAttributes(attribute.Int("transcript.length", len(transcript)))
		return transcript, nil
	case <-ctx.Done():
		span.SetStatus(codes.Ok, "cancelled")
		return "", nil
	}
}

func (s *speechInput) emit(event events.Event) {
	if s.emitEvent != nil {
		s.emitEvent(event)
	}
}
