// Package protocol defines the WebSocket message types and structures
// exchanged between client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/codehub/chat-relay/internal/chat"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeRoomsGet    = "rooms:get"
	TypeRoomJoin    = "room:join"
	TypeRoomLeave   = "room:leave"
	TypeMessageSend = "message:send"
	TypeTypingStart = "typing:start"
	TypeTypingStop  = "typing:stop"
	TypePing        = "ping"
)

// Server -> Client message types. Typing indicators use the same wire
// identifiers in both directions.
const (
	TypeSessionCreated = "session_created"
	TypeRoomsList      = "rooms:list"
	TypeParticipants   = "room:participants"
	TypeRoomHistory    = "room:history"
	TypeMessageNew     = "message:new"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the
// "type" field so that the rest of the payload can be decoded later
// into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// RoomsGetMsg asks for the list of available rooms.
type RoomsGetMsg struct {
	Type string `json:"type"`
}

// RoomJoinMsg is sent by the client to join a room as the given user.
type RoomJoinMsg struct {
	Type   string    `json:"type"`
	User   chat.User `json:"user"`
	RoomID string    `json:"roomId"`
}

// RoomLeaveMsg is sent by the client to leave its current room.
type RoomLeaveMsg struct {
	Type string `json:"type"`
}

// MessageSendMsg carries a chat message from the client. SentToBot
// marks the message as explicitly addressed to the assistant.
type MessageSendMsg struct {
	Type      string    `json:"type"`
	Author    chat.User `json:"author"`
	Content   string    `json:"content"`
	RoomID    string    `json:"roomId"`
	SentToBot bool      `json:"sentToBot"`
}

// TypingMsg signals the start or stop of typing in a room.
type TypingMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent when a new connection is established.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// RoomsListMsg carries the available rooms.
type RoomsListMsg struct {
	Type  string      `json:"type"`
	Rooms []chat.Room `json:"rooms"`
}

// ParticipantsMsg carries a room's live participant list in join order.
type ParticipantsMsg struct {
	Type         string      `json:"type"`
	Participants []chat.User `json:"participants"`
}

// RoomHistoryMsg carries persisted room history, oldest first.
type RoomHistoryMsg struct {
	Type     string           `json:"type"`
	Messages []chat.ChatEvent `json:"messages"`
}

// MessageNewMsg carries a single new chat event.
type MessageNewMsg struct {
	Type    string         `json:"type"`
	Message chat.ChatEvent `json:"message"`
}

// TypingEventMsg relays another participant's typing indicator.
type TypingEventMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// ErrorMsg communicates an error condition to the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client
// message. It returns the message type string, the decoded struct, and
// any error encountered during parsing. An error is returned for
// unknown or server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRoomsGet:
		var m RoomsGetMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomJoin:
		var m RoomJoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomLeave:
		var m RoomLeaveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessageSend:
		var m MessageSendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStart, TypeTypingStop:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server
// message. The msgType is injected into the payload under the "type"
// key. The payload should be one of the server message structs; this
// function marshals it to JSON, injects the type field, and returns the
// final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
