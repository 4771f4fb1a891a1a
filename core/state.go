package orchestration

// State is the conversation state. Exactly one state is current at any time.
type State string

const (
	StateIdle      State = "IDLE"
	StateTeaching  State = "TEACHING"
	StateListening State = "LISTENING"
	StateThinking  State = "THINKING"
	StateSpeaking  State = "SPEAKING"
	StateErrored   State = "ERRORED"
)

func (s State) String() string { return string(s) }

// CanListen reports whether a listen request is accepted in this state.
func (s State) CanListen() bool {
	return s == StateIdle || s == StateErrored
}

// IsBusy reports whether a turn is in progress.
func (s State) IsBusy() bool {
	switch s {
	case StateTeaching, StateListening, StateThinking, StateSpeaking:
		return true
	default:
		return false
	}
}
