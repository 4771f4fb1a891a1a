package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-docchat/core/notifications"
)

const (
	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second
	peerQueueSize       = 64
)

// Hub relays messages between the members of a room. A connection joins
// rooms with join_room; send_message is delivered to every other member of
// the message's room as receive_message.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration

	mu     sync.Mutex
	peers  map[*peer]struct{}
	rooms  map[string]map[*peer]struct{}
	closed bool
}

type HubOption func(*Hub)

func WithPingInterval(interval time.Duration) HubOption {
	return func(h *Hub) {
		if interval > 0 {
			h.pingInterval = interval
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: defaultPingInterval,
		writeTimeout: defaultWriteTimeout,
		peers:        map[*peer]struct{}{},
		rooms:        map[string]map[*peer]struct{}{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type peer struct {
	id    string
	conn  *websocket.Conn
	send  chan notifications.Envelope
	rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func (p *peer) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := &peer{
		id:    uuid.NewString(),
		conn:  conn,
		send:  make(chan notifications.Envelope, peerQueueSize),
		rooms: map[string]struct{}{},
		done:  make(chan struct{}),
	}
	if !h.register(p) {
		_ = conn.Close()
		return
	}
	logger.Info("user connected", "peer", p.id)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(p)
	}()

	h.readPump(p)

	h.unregister(p)
	p.close()
	<-writerDone
	logger.Info("user disconnected", "peer", p.id)
}

func (h *Hub) readPump(p *peer) {
	pongWait := 2 * h.pingInterval
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var envelope notifications.Envelope
		if err := p.conn.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", "peer", p.id, "error", err)
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch envelope.Event {
		case notifications.EventJoinRoom:
			room, err := envelope.Room()
			if err != nil || room == "" {
				logger.Debug("ignoring invalid join", "peer", p.id, "error", err)
				continue
			}
			h.join(p, room)
			logger.Info("user joined room", "peer", p.id, "room", room)
		case notifications.EventSendMessage:
			msg, err := envelope.Message()
			if err != nil || msg.Room == "" {
				logger.Debug("ignoring invalid message", "peer", p.id, "error", err)
				continue
			}
			h.broadcast(p, msg.Room, envelope.Data)
		default:
			logger.Debug("ignoring unknown event", "peer", p.id, "event", envelope.Event)
		}
	}
}

func (h *Hub) writePump(p *peer) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer p.conn.Close()

	for {
		select {
		case <-p.done:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeTimeout))
			return
		case envelope := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := p.conn.WriteJSON(envelope); err != nil {
				logger.Debug("websocket write failed", "peer", p.id, "error", err)
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p] = struct{}{}
	return true
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
	for room := range p.rooms {
		members := h.rooms[room]
		delete(members, p)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) join(p *peer, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = map[*peer]struct{}{}
		h.rooms[room] = members
	}
	members[p] = struct{}{}
	p.rooms[room] = struct{}{}
}

// broadcast delivers data to every member of room except the sender. Slow
// members drop messages rather than stall the room.
func (h *Hub) broadcast(sender *peer, room string, data json.RawMessage) {
	envelope := notifications.Envelope{Event: notifications.EventReceiveMessage, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for member := range h.rooms[room] {
		if member == sender {
			continue
		}
		select {
		case member.send <- envelope:
		default:
			logger.Warn("dropping message for slow peer", "peer", member.id, "room", room)
		}
	}
}

// Members returns the number of connections that joined room.
func (h *Hub) Members(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Close disconnects every peer and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
}
