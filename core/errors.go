package orchestration

import (
	"errors"
	"fmt"
)

var (
	ErrListenRejected = errors.New("listen rejected: a turn is already in progress")
	ErrStartRejected  = errors.New("start rejected: conversation is not idle")
	ErrEmptyDocument  = errors.New("document text is empty")
	ErrClosed         = errors.New("orchestrator closed")

	errNotConfigured = errors.New("not configured")
)

// ErrorCategory groups latched errors. A latched error is cleared by the next
// successful operation of the same category.
type ErrorCategory string

const (
	CategoryAudio   ErrorCategory = "audio"
	CategoryAnswer  ErrorCategory = "answer"
	CategoryChannel ErrorCategory = "channel"
)

// SpeechRecognitionError is a device or service failure while listening.
type SpeechRecognitionError struct {
	Err error
}

func (e *SpeechRecognitionError) Error() string {
	return fmt.Sprintf("speech recognition failed: %v", e.Err)
}

func (e *SpeechRecognitionError) Unwrap() error { return e.Err }

// SpeechSynthesisError is a failure while speaking.
type SpeechSynthesisError struct {
	Err error
}

func (e *SpeechSynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed: %v", e.Err)
}

func (e *SpeechSynthesisError) Unwrap() error { return e.Err }

// AnswerServiceError is a failed, timed out or empty answer.
type AnswerServiceError struct {
	Timeout bool
	Err     error
}

func (e *AnswerServiceError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("answer service timed out: %v", e.Err)
	}
	return fmt.Sprintf("answer service failed: %v", e.Err)
}

func (e *AnswerServiceError) Unwrap() error { return e.Err }

// Errors is the set of currently latched errors, nil when clear.
type Errors struct {
	Audio   error
	Answer  error
	Channel error
}

func (e Errors) Any() bool {
	return e.Audio != nil || e.Answer != nil || e.Channel != nil
}

func (e *Errors) get(category ErrorCategory) error {
	switch category {
	case CategoryAudio:
		return e.Audio
	case CategoryAnswer:
		return e.Answer
	case CategoryChannel:
		return e.Channel
	}
	return nil
}

func (e *Errors) set(category ErrorCategory, err error) {
	switch category {
	case CategoryAudio:
		e.Audio = err
	case CategoryAnswer:
		e.Answer = err
	case CategoryChannel:
		e.Channel = err
	}
}
