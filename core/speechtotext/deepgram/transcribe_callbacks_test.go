package deepgram

import (
	"sync/atomic"
	"testing"

	"github.com/koscakluka/ema-docchat/core/speechtotext"
)

func TestNewCallbackConfigDefaultsToNoopCallbacks(t *testing.T) {
	callbacks, wsConfig := newCallbackConfig(speechtotext.TranscriptionOptions{})

	callbacks.interimTranscriptionCallback("interim")
	callbacks.transcriptionCallback("full")
	callbacks.startSpeechCallback()
	callbacks.endSpeechCallback()
	callbacks.errorCallback(nil)

	if wsConfig.shouldDetectSpeechStart {
		t.Fatalf("expected speech-start detection disabled when callback is unset")
	}
	if wsConfig.shouldEnhanceSpeechEndingDetection {
		t.Fatalf("expected speech-end enhancement disabled when callbacks are unset")
	}
	if wsConfig.shouldRequestInterimResults {
		t.Fatalf("expected interim-results disabled when callbacks are unset")
	}
}

func TestNewCallbackConfigKeepsConfiguredCallbacksAndFlags(t *testing.T) {
	interimCalls := atomic.Int32{}
	transcriptionCalls := atomic.Int32{}
	startCalls := atomic.Int32{}
	endCalls := atomic.Int32{}
	errorCalls := atomic.Int32{}

	callbacks, wsConfig := newCallbackConfig(speechtotext.TranscriptionOptions{
		InterimTranscriptionCallback: func(string) { interimCalls.Add(1) },
		TranscriptionCallback:        func(string) { transcriptionCalls.Add(1) },
		SpeechStartedCallback:        func() { startCalls.Add(1) },
		SpeechEndedCallback:          func() { endCalls.Add(1) },
		ErrorCallback:                func(error) { errorCalls.Add(1) },
	})

	callbacks.interimTranscriptionCallback("hello")
	callbacks.transcriptionCallback("hello world")
	callbacks.startSpeechCallback()
	callbacks.endSpeechCallback()
	callbacks.errorCallback(nil)

	if !wsConfig.shouldDetectSpeechStart {
		t.Fatalf("expected speech-start detection enabled")
	}
	if !wsConfig.shouldEnhanceSpeechEndingDetection {
		t.Fatalf("expected speech-end enhancement enabled")
	}
	if !wsConfig.shouldRequestInterimResults {
		t.Fatalf("expected interim-results enabled")
	}

	for name, calls := range map[string]*atomic.Int32{
		"interim":       &interimCalls,
		"transcription": &transcriptionCalls,
		"speech-start":  &startCalls,
		"speech-end":    &endCalls,
		"error":         &errorCalls,
	} {
		if got := calls.Load(); got != 1 {
			t.Fatalf("expected %s callback once, got %d", name, got)
		}
	}
}
