package events

import "time"

// Message types relayed over the notification channel.
const (
	MessageTypeTurn    = "turn"
	MessageTypeState   = "state"
	MessageTypeError   = "error"
	MessageTypeControl = "control"
)

type TurnPayload struct {
	ID        string    `json:"id"`
	Speaker   string    `json:"speaker" jsonschema:"enum=USER,enum=AGENT"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type StatePayload struct {
	State    string `json:"state" jsonschema:"enum=IDLE,enum=TEACHING,enum=LISTENING,enum=THINKING,enum=SPEAKING,enum=ERRORED"`
	Previous string `json:"previous,omitempty"`
}

type ErrorPayload struct {
	Category string `json:"category" jsonschema:"enum=audio,enum=answer,enum=channel"`
	Message  string `json:"message,omitempty"`
	Cleared  bool   `json:"cleared,omitempty"`
}

type ControlPayload struct {
	Action ControlAction `json:"action" jsonschema:"enum=listen,enum=stop"`
}

// ToWire returns the message type and payload an event is relayed as. Events
// that stay local report false.
func ToWire(event Event) (string, any, bool) {
	switch e := event.(type) {
	case TurnAppended:
		return MessageTypeTurn, TurnPayload{ID: e.TurnID, Speaker: e.Speaker, Text: e.Text, Timestamp: e.At}, true
	case StateChanged:
		return MessageTypeState, StatePayload{State: e.To, Previous: e.From}, true
	case ErrorLatched:
		return MessageTypeError, ErrorPayload{Category: e.Category, Message: e.Message}, true
	case ErrorCleared:
		return MessageTypeError, ErrorPayload{Category: e.Category, Cleared: true}, true
	default:
		return "", nil, false
	}
}
