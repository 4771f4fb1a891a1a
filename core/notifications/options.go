package notifications

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultConnectTimeout    = 20 * time.Second

	defaultPingInterval = 25 * time.Second
	defaultWriteTimeout = 10 * time.Second
	outboundQueueSize   = 64
	inboundQueueSize    = 64
)

type ClientOption func(*Client)

// WithReconnectAttempts bounds how many times the client retries after a
// failed connection attempt before giving up.
func WithReconnectAttempts(attempts int) ClientOption {
	return func(c *Client) {
		if attempts >= 0 {
			c.reconnectAttempts = attempts
		}
	}
}

func WithReconnectDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		if delay >= 0 {
			c.reconnectDelay = delay
		}
	}
}

// WithConnectTimeout bounds every single connection attempt.
func WithConnectTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.connectTimeout = timeout
		}
	}
}

func WithPingInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval > 0 {
			c.pingInterval = interval
		}
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithStatusCallback is called every time the connection is established or
// lost. err is nil when connected.
func WithStatusCallback(callback func(connected bool, err error)) ClientOption {
	return func(c *Client) { c.statusCallback = callback }
}

// WithRoom joins the room as soon as the first connection is established.
func WithRoom(room string) ClientOption {
	return func(c *Client) { c.room = room }
}
