package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-docchat/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
)

// speechOutput speaks one text per call through a synthesizer scoped to that
// call. Calls are not serialized here; the orchestrator never overlaps them.
type speechOutput struct {
	client TextToSpeech
	output AudioOutput
}

// speak resolves once the audio for text finished playing. Cancelling ctx
// stops playback and resolves without an error. The synthesizer is closed on
// every path before returning.
func (s *speechOutput) speak(ctx context.Context, text string) error {
	ctx, span := tracer.Start(ctx, "speak")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(text)))

	if s.client == nil {
		return &SpeechSynthesisError{Err: fmt.Errorf("text-to-speech %w", errNotConfigured)}
	}
	if s.output == nil {
		return &SpeechSynthesisError{Err: fmt.Errorf("audio output %w", errNotConfigured)}
	}

	results := make(chan error, 1)
	resolve := func(err error) {
		select {
		case results <- err:
		default:
		}
	}

	generator, err := s.client.NewSpeechGenerator(ctx,
		texttospeech.WithSpeechAudioCallback(func(audio []byte) {
			if err := s.output.SendAudio(audio); err != nil {
				resolve(fmt.Errorf("failed to play audio: %w", err))
			}
		}),
		texttospeech.WithSpeechEndedCallback(func() {
			if err := markPlayback(s.output, func() { resolve(nil) }); err != nil {
				resolve(err)
			}
		}),
		texttospeech.WithErrorCallback(func(err error) { resolve(err) }),
		texttospeech.WithEncodingInfo(s.output.EncodingInfo()),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		recordError(span, "failed to open synthesizer", err)
		return &SpeechSynthesisError{Err: fmt.Errorf("failed to open synthesizer: %w", err)}
	}
	defer func() {
		if err := generator.Close(); err != nil {
			logger.Warn("failed to close synthesizer", "error", err)
		}
	}()

	interrupt := func() {
		if err := generator.Cancel(); err != nil {
			logger.Debug("failed to cancel synthesizer", "error", err)
		}
		s.output.ClearBuffer()
	}

	if err := generator.SendText(text); err != nil {
		interrupt()
		recordError(span, "failed to send text", err)
		return &SpeechSynthesisError{Err: fmt.Errorf("failed to send text: %w", err)}
	}
	if err := generator.EndOfText(); err != nil {
		interrupt()
		recordError(span, "failed to end text", err)
		return &SpeechSynthesisError{Err: fmt.Errorf("failed to end text: %w", err)}
	}

	select {
	case err := <-results:
		if err != nil {
			interrupt()
			recordError(span, "synthesis failed", err)
			return &SpeechSynthesisError{Err: err}
		}
		return nil
	case <-ctx.Done():
		interrupt()
		return nil
	}
}
