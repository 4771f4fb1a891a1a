package orchestration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-docchat/core/audio"
	"github.com/koscakluka/ema-docchat/core/events"
	"github.com/koscakluka/ema-docchat/core/notifications"
	"github.com/koscakluka/ema-docchat/core/speechtotext"
	"github.com/koscakluka/ema-docchat/core/texttospeech"
)

const DefaultAnswerTimeout = 30 * time.Second

type OrchestratorOption func(*Orchestrator)

type SpeechToText interface {
	NewRecognizer(ctx context.Context, opts ...speechtotext.TranscriptionOption) (speechtotext.Recognizer, error)
}

func WithSpeechToTextClient(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) { o.speechInput.client = client }
}

type TextToSpeech interface {
	NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error)
}

func WithTextToSpeechClient(client TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) { o.speechOutput.client = client }
}

type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.speechInput.input = client }
}

type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
	Mark(string, func(string)) error
}

func WithAudioOutput(client AudioOutput) OrchestratorOption {
	return func(o *Orchestrator) { o.speechOutput.output = client }
}

// AnswerService answers a question about a document. Answers are expected to
// be length bounded already.
type AnswerService interface {
	Ask(ctx context.Context, question, documentText string) (string, error)
}

func WithAnswerService(service AnswerService) OrchestratorOption {
	return func(o *Orchestrator) { o.answers = service }
}

// WithAnswerTimeout bounds every AnswerService call. Non-positive values keep
// the default.
func WithAnswerTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.answerTimeout = timeout
		}
	}
}

type NotificationChannel interface {
	Join(roomID string) error
	Publish(msgType string, payload any) error
	Events() <-chan notifications.Envelope
}

// WithNotificationChannel relays turns, state changes and errors to the other
// participants of the room and accepts their control requests.
func WithNotificationChannel(channel NotificationChannel) OrchestratorOption {
	return func(o *Orchestrator) { o.channel = channel }
}

func WithRoom(roomID string) OrchestratorOption {
	return func(o *Orchestrator) { o.room = roomID }
}

// WithRemoteMessageCallback receives relayed messages that are not control
// requests.
func WithRemoteMessageCallback(callback func(notifications.Message)) OrchestratorOption {
	return func(o *Orchestrator) { o.onRemoteMessage = callback }
}

// WithEventCallback receives every conversation event in order. Callbacks run
// on a dedicated goroutine and may call back into the orchestrator.
func WithEventCallback(callback func(events.Event)) OrchestratorOption {
	return func(o *Orchestrator) { o.eventCallbacks = append(o.eventCallbacks, callback) }
}

func WithStateCallback(callback func(State)) OrchestratorOption {
	return WithEventCallback(func(event events.Event) {
		if e, ok := event.(events.StateChanged); ok {
			callback(State(e.To))
		}
	})
}

func WithTurnCallback(callback func(Turn)) OrchestratorOption {
	return WithEventCallback(func(event events.Event) {
		if e, ok := event.(events.TurnAppended); ok {
			callback(Turn{ID: e.TurnID, Speaker: Speaker(e.Speaker), Text: e.Text, Timestamp: e.At})
		}
	})
}

func withIDGenerator(newID func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newTurnID = newID }
}

func newTurnID() string { return uuid.NewString() }
