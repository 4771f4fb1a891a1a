package orchestration

import (
	"errors"
	"testing"

	"github.com/koscakluka/ema-docchat/core/events"
)

func TestEventQueueDeliversInOrderBeforeClose(t *testing.T) {
	var got []string
	q := newEventQueue(func(event events.Event) {
		got = append(got, event.(events.StateChanged).To)
	})

	for _, state := range []string{"A", "B", "C"} {
		q.push(events.NewStateChanged("", state))
	}
	q.close()
	q.push(events.NewStateChanged("", "D"))

	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Fatalf("expected [A B C], got %v", got)
	}
}

func TestEventCallbacksMayCallBackIntoOrchestrator(t *testing.T) {
	var o *Orchestrator
	seen := make(chan State, 1)
	o = NewOrchestrator(WithEventCallback(func(events.Event) {
		o.Stop()
		select {
		case seen <- o.State():
		default:
		}
	}))

	o.SetChannelStatus(false, errors.New("channel down"))
	o.Close()

	if state := <-seen; state != StateIdle {
		t.Fatalf("expected IDLE, got %s", state)
	}
}
