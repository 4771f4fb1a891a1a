package speechtotext

import "github.com/koscakluka/ema-docchat/core/audio"

// Recognizer is one open recognition stream. Audio is pushed with SendAudio
// and results arrive through the callbacks it was opened with.
//
// Close releases the underlying connection. It is safe to call more than once.
type Recognizer interface {
	SendAudio(audio []byte) error
	Close() error
}

type TranscriptionOptions struct {
	InterimTranscriptionCallback func(transcript string)
	TranscriptionCallback        func(transcript string)

	SpeechStartedCallback func()
	SpeechEndedCallback   func()

	// ErrorCallback is called when the recognizer fails after it was opened.
	// A recognizer closed by its owner does not report an error.
	ErrorCallback func(error)

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithErrorCallback(callback func(error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
