package orchestration

import (
	"github.com/koscakluka/ema-docchat/core/events"
	"github.com/koscakluka/ema-docchat/core/notifications"
)

// SetChannelStatus latches the connection error of the notification channel,
// or clears it once the channel is connected again. Channel errors never
// affect the conversation state.
func (o *Orchestrator) SetChannelStatus(connected bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if connected {
		o.clearLocked(CategoryChannel)
	} else if err != nil {
		o.latchLocked(CategoryChannel, err)
	}
}

func (o *Orchestrator) joinRoom() {
	if o.room == "" {
		return
	}
	if err := o.channel.Join(o.room); err != nil {
		logger.Warn("failed to join room", "room", o.room, "error", err)
	}
}

// consumeChannel handles messages relayed by other participants until the
// channel closes or the orchestrator is closed.
func (o *Orchestrator) consumeChannel() {
	defer o.running.Done()

	inbound := o.channel.Events()
	for {
		select {
		case <-o.closeCtx.Done():
			return
		case envelope, ok := <-inbound:
			if !ok {
				return
			}
			if envelope.Event != notifications.EventReceiveMessage {
				continue
			}

			msg, err := envelope.Message()
			if err != nil {
				logger.Debug("ignoring malformed message", "error", err)
				continue
			}
			o.handleRemoteMessage(msg)
		}
	}
}

func (o *Orchestrator) handleRemoteMessage(msg notifications.Message) {
	if msg.Type != events.MessageTypeControl {
		if o.onRemoteMessage != nil {
			o.onRemoteMessage(msg)
		}
		return
	}

	var control events.ControlPayload
	if err := msg.Decode(&control); err != nil {
		logger.Debug("ignoring malformed control message", "error", err)
		return
	}

	o.queue.push(events.NewControlRequested(control.Action))
	switch control.Action {
	case events.ControlActionListen:
		go func() {
			if err := o.Listen(o.closeCtx); err != nil {
				logger.Info("remote listen request not served", "error", err)
			}
		}()
	case events.ControlActionStop:
		o.Stop()
	default:
		logger.Debug("unknown control action", "action", control.Action)
	}
}
