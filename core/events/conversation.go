package events

import "time"

const (
	// KindStateChanged identifies an orchestrator state transition.
	KindStateChanged Kind = "conversation.state_changed"
	// KindTurnAppended identifies a turn appended to the conversation log.
	KindTurnAppended Kind = "conversation.turn_appended"
	// KindErrorLatched identifies a newly latched error.
	KindErrorLatched Kind = "conversation.error_latched"
	// KindErrorCleared identifies a cleared error latch.
	KindErrorCleared Kind = "conversation.error_cleared"
)

// StateChanged carries a state transition.
type StateChanged struct {
	Base
	From string
	To   string
}

// NewStateChanged creates a state changed event.
func NewStateChanged(from, to string) StateChanged {
	return StateChanged{Base: NewBase(KindStateChanged), From: from, To: to}
}

// TurnAppended carries the turn that was appended. At is the timestamp of the
// turn itself, not of the event.
type TurnAppended struct {
	Base
	TurnID  string
	Speaker string
	Text    string
	At      time.Time
}

// NewTurnAppended creates a turn appended event.
func NewTurnAppended(turnID, speaker, text string, at time.Time) TurnAppended {
	return TurnAppended{Base: NewBase(KindTurnAppended), TurnID: turnID, Speaker: speaker, Text: text, At: at}
}

// ErrorLatched carries the category and message of a latched error.
type ErrorLatched struct {
	Base
	Category string
	Message  string
}

// NewErrorLatched creates an error latched event.
func NewErrorLatched(category string, err error) ErrorLatched {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return ErrorLatched{Base: NewBase(KindErrorLatched), Category: category, Message: message}
}

// ErrorCleared marks that the latched error of a category was cleared.
type ErrorCleared struct {
	Base
	Category string
}

// NewErrorCleared creates an error cleared event.
func NewErrorCleared(category string) ErrorCleared {
	return ErrorCleared{Base: NewBase(KindErrorCleared), Category: category}
}
