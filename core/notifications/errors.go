package notifications

import (
	"errors"
	"fmt"
)

var (
	ErrClosed       = errors.New("notification channel closed")
	ErrNotConnected = errors.New("notification channel not connected")
	ErrQueueFull    = errors.New("notification channel outbound queue full")
	ErrNoRoom       = errors.New("notification channel has not joined a room")
)

// ChannelError is a connection failure of the notification channel.
type ChannelError struct {
	Op      string
	Attempt int
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("notification channel %s failed (attempt %d): %v", e.Op, e.Attempt, e.Err)
	}
	return fmt.Sprintf("notification channel %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }
