package orchestration

import (
	"sync"

	"github.com/koscakluka/ema-docchat/core/events"
)

type eventEmitter func(events.Event)

// eventQueue hands events from the orchestrator to its observers in order.
// Pushing never blocks, so events can be emitted while holding the
// orchestrator lock and callbacks are free to call back into it.
type eventQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []events.Event
	closed  bool

	handle func(events.Event)
	done   chan struct{}
}

func newEventQueue(handle func(events.Event)) *eventQueue {
	q := &eventQueue{handle: handle, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.dispatch()
	return q
}

func (q *eventQueue) push(event events.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, event)
	q.cond.Signal()
}

// close stops accepting events and waits until the queued ones were handled.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

func (q *eventQueue) dispatch() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, event := range batch {
			q.handle(event)
		}
	}
}

// handleEvent fans one event out to callbacks and the notification channel.
func (o *Orchestrator) handleEvent(event events.Event) {
	for _, callback := range o.eventCallbacks {
		callback(event)
	}

	if o.channel == nil {
		return
	}
	if msgType, payload, ok := events.ToWire(event); ok {
		if err := o.channel.Publish(msgType, payload); err != nil {
			logger.Debug("event not relayed", "type", msgType, "error", err)
		}
	}
}
