package events

const (
	// KindUserSpeechStarted identifies start of user speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserTranscriptInterimUpdated identifies mutable interim transcript updates.
	KindUserTranscriptInterimUpdated Kind = "user_input.transcript_interim_updated"
)

// UserSpeechStarted marks when user speech activity starts.
type UserSpeechStarted struct{ Base }

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

// UserTranscriptInterimUpdated carries the mutable interim transcript snapshot.
type UserTranscriptInterimUpdated struct {
	Base
	Transcript string
}

// NewUserTranscriptInterimUpdated creates an interim transcript update event.
func NewUserTranscriptInterimUpdated(transcript string) UserTranscriptInterimUpdated {
	return UserTranscriptInterimUpdated{Base: NewBase(KindUserTranscriptInterimUpdated), Transcript: transcript}
}
