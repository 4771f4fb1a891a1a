package notifications

import (
	"encoding/json"
	"fmt"
)

// Wire events exchanged with the room hub.
const (
	EventJoinRoom       = "join_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
)

// Envelope is a single frame on the wire. Data is the event argument: the
// room id for join_room and a Message for send_message and receive_message.
type Envelope struct {
	Event string          `json:"event" jsonschema:"enum=join_room,enum=send_message,enum=receive_message"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is the payload relayed to the other members of a room.
type Message struct {
	Room    string          `json:"room" jsonschema:"required"`
	Type    string          `json:"type" jsonschema:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s data: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Message decodes the envelope data as a relayed message.
func (e Envelope) Message() (Message, error) {
	var msg Message
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode %s data: %w", e.Event, err)
	}
	return msg, nil
}

// Room decodes the envelope data as a room id.
func (e Envelope) Room() (string, error) {
	var room string
	if err := json.Unmarshal(e.Data, &room); err != nil {
		return "", fmt.Errorf("failed to decode %s data: %w", e.Event, err)
	}
	return room, nil
}

// Decode unmarshals the message payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %q has no payload", m.Type)
	}
	return json.Unmarshal(m.Payload, v)
}
