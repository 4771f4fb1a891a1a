// Package notifications is a room scoped event channel over a websocket with
// automatic reconnection.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Client struct {
	url    string
	dialer *websocket.Dialer

	reconnectAttempts int
	reconnectDelay    time.Duration
	connectTimeout    time.Duration
	pingInterval      time.Duration
	writeTimeout      time.Duration

	statusCallback func(connected bool, err error)

	outbound chan Envelope
	events   chan Envelope

	mu        sync.Mutex
	room      string
	connected bool
	closed    bool
	err       *ChannelError

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Dial starts connecting to the hub at url in the background and returns
// immediately. Connection state is reported through the status callback and
// Err.
func Dial(ctx context.Context, url string, opts ...ClientOption) *Client {
	c := &Client{
		url:               url,
		dialer:            websocket.DefaultDialer,
		reconnectAttempts: DefaultReconnectAttempts,
		reconnectDelay:    DefaultReconnectDelay,
		connectTimeout:    DefaultConnectTimeout,
		pingInterval:      defaultPingInterval,
		writeTimeout:      defaultWriteTimeout,
		statusCallback:    func(bool, error) {},
		outbound:          make(chan Envelope, outboundQueueSize),
		events:            make(chan Envelope, inboundQueueSize),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go c.run()
	return c
}

// Events delivers inbound events. It is closed once the client is closed or
// has given up reconnecting.
func (c *Client) Events() <-chan Envelope {
	return c.events
}

// Err returns the latched connection error. It is cleared once a connection
// is established again.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	return c.err
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Join makes roomID the room of this client. The room is joined again after
// every reconnection.
func (c *Client) Join(roomID string) error {
	c.mu.Lock()
	c.room = roomID
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.Send(EventJoinRoom, roomID)
}

// Send queues a single event. Delivery is at most once: events sent while
// disconnected, or while the outbound queue is full, are dropped.
func (c *Client) Send(event string, data any) error {
	envelope, err := NewEnvelope(event, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	closed, connected := c.closed, c.connected
	c.mu.Unlock()

	if closed {
		return ErrClosed
	} else if !connected {
		return ErrNotConnected
	}

	select {
	case c.outbound <- envelope:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish relays a typed message to the other members of the joined room.
func (c *Client) Publish(msgType string, payload any) error {
	room := c.Room()
	if room == "" {
		return ErrNoRoom
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	return c.Send(EventSendMessage, Message{Room: room, Type: msgType, Payload: raw})
}

// Close tears down the connection and stops reconnecting. Repeated calls are
// ignored.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
	})
	<-c.done
	return nil
}

func (c *Client) run() {
	defer close(c.done)
	defer close(c.events)

	for {
		conn, err := c.connect()
		if err != nil {
			if c.ctx.Err() == nil {
				logger.Error("notification channel gave up reconnecting", "url", c.url, "error", err)
				c.setDisconnected(&ChannelError{Op: "reconnect", Err: err})
			}
			return
		}

		c.setConnected()
		err = c.serve(conn)
		if c.ctx.Err() != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			return
		}

		logger.Warn("notification channel connection lost", "url", c.url, "error", err)
		c.setDisconnected(&ChannelError{Op: "read", Err: err})
		if !c.sleep(c.reconnectDelay) {
			return
		}
	}
}

func (c *Client) connect() (*websocket.Conn, error) {
	var lastErr error
	for attempt := 0; attempt <= c.reconnectAttempts; attempt++ {
		if attempt > 0 && !c.sleep(c.reconnectDelay) {
			return nil, c.ctx.Err()
		}

		dialCtx, cancel := context.WithTimeout(c.ctx, c.connectTimeout)
		conn, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
		cancel()
		if err == nil {
			return conn, nil
		}
		if c.ctx.Err() != nil {
			return nil, c.ctx.Err()
		}

		lastErr = err
		logger.Debug("notification channel connect attempt failed", "attempt", attempt+1, "error", err)
		c.setDisconnected(&ChannelError{Op: "connect", Attempt: attempt + 1, Err: err})
	}
	return nil, fmt.Errorf("no connection after %d attempts: %w", c.reconnectAttempts+1, lastErr)
}

func (c *Client) serve(conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(c.ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(connCtx, conn)
	}()
	defer func() {
		cancel()
		<-writerDone
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("closed by server")
			}
			return err
		}

		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			logger.Debug("dropping malformed notification", "error", err)
			continue
		}

		select {
		case c.events <- envelope:
		default:
			logger.Warn("dropping notification, consumer is not keeping up", "event", envelope.Event)
		}
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	if room := c.Room(); room != "" {
		if err := c.write(conn, EventJoinRoom, room); err != nil {
			logger.Warn("failed to join room", "room", room, "error", err)
			return
		}
	}

	pingTicker := time.NewTicker(c.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			return
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
		case envelope := <-c.outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := conn.WriteJSON(envelope); err != nil {
				logger.Debug("failed to write notification", "event", envelope.Event, "error", err)
				return
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, event string, data any) error {
	envelope, err := NewEnvelope(event, data)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return conn.WriteJSON(envelope)
}

func (c *Client) sleep(d time.Duration) bool {
	if d <= 0 {
		return c.ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) setConnected() {
	c.mu.Lock()
	c.connected = true
	c.err = nil
	c.mu.Unlock()

	logger.Info("notification channel connected", "url", c.url)
	c.statusCallback(true, nil)
}

func (c *Client) setDisconnected(err *ChannelError) {
	c.mu.Lock()
	c.connected = false
	c.err = err
	c.mu.Unlock()

	c.statusCallback(false, err)
}
