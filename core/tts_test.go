package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSpeakResolvesAfterPlayback(t *testing.T) {
	tracker := &handleTracker{}
	tts := &textToSpeechStub{tracker: tracker}
	output := &audioOutputStub{}
	port := speechOutput{client: tts, output: output}

	if err := port.speak(context.Background(), "Hello."); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}
	if spoken := tts.Spoken(); len(spoken) != 1 || spoken[0] != "Hello." {
		t.Fatalf("unexpected spoken text %v", spoken)
	}

	output.mu.Lock()
	played := len(output.audio)
	output.mu.Unlock()
	if played != 1 {
		t.Fatalf("expected one audio chunk to be played, got %d", played)
	}
	if tracker.open.Load() != 0 {
		t.Fatalf("expected synthesizer to be closed")
	}
}

func TestSpeakReportsSynthesisErrors(t *testing.T) {
	cases := map[string]speechOutput{
		"no client": {output: &audioOutputStub{}},
		"no output": {client: &textToSpeechStub{}},
		"open":      {client: &textToSpeechStub{openErr: errors.New("dial failed")}, output: &audioOutputStub{}},
		"service":   {client: &textToSpeechStub{fail: errors.New("quota exceeded")}, output: &audioOutputStub{}},
	}

	for name, port := range cases {
		t.Run(name, func(t *testing.T) {
			err := port.speak(context.Background(), "Hello.")
			var synthesisErr *SpeechSynthesisError
			if !errors.As(err, &synthesisErr) {
				t.Fatalf("expected SpeechSynthesisError, got %v", err)
			}
		})
	}
}

func TestSpeakCancelledClearsPlaybackWithoutError(t *testing.T) {
	tracker := &handleTracker{}
	tts := &textToSpeechStub{tracker: tracker, hold: make(chan struct{})}
	t.Cleanup(func() { close(tts.hold) })
	output := &audioOutputStub{}
	port := speechOutput{client: tts, output: output}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if err := port.speak(ctx, "A long answer."); err != nil {
		t.Fatalf("expected cancelled speech to resolve without error, got %v", err)
	}
	if output.Cleared() != 1 {
		t.Fatalf("expected playback to be cleared once, got %d", output.Cleared())
	}
	if tracker.open.Load() != 0 {
		t.Fatalf("expected synthesizer to be closed")
	}
}
