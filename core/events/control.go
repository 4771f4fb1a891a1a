package events

// KindControlRequested identifies a remote control request.
const KindControlRequested Kind = "control.requested"

type ControlAction string

const (
	ControlActionListen ControlAction = "listen"
	ControlActionStop   ControlAction = "stop"
)

// ControlRequested carries a control action requested by another participant.
type ControlRequested struct {
	Base
	Action ControlAction
}

// NewControlRequested creates a control requested event.
func NewControlRequested(action ControlAction) ControlRequested {
	return ControlRequested{Base: NewBase(KindControlRequested), Action: action}
}
