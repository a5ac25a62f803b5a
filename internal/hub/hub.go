// Package hub provides room-scoped pub/sub fan-out over NATS. Each
// joined connection holds a subscription to its room's subject; a
// broadcast publishes one internal envelope and every subscriber
// decides locally whether to deliver it, which is how sender exclusion
// works without a membership query at publish time.
package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/codehub/chat-relay/internal/chat"
	"github.com/codehub/chat-relay/internal/protocol"
)

// SubjectRoom is the NATS subject prefix for room fan-out, completed
// with the room id: room.<roomId>.
const SubjectRoom = "room."

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "chat-relay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// roomEvent is the internal envelope published to room subjects. Frame
// holds the already-encoded wire message; From and Exclude implement
// sender exclusion on the subscriber side.
type roomEvent struct {
	From    string          `json:"from,omitempty"`
	Exclude bool            `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

// Hub connects WebSocket connections to room subjects.
type Hub struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs map[string]*nats.Subscription // connection id -> room subscription
}

// New connects to NATS with the given config and returns a ready Hub.
func New(config Config) (*Hub, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("hub: nats disconnected: %v", err)
			} else {
				log.Printf("hub: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("hub: nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("hub: nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("hub: nats connect: %w", err)
	}

	log.Printf("hub: connected to %s", nc.ConnectedUrl())

	return &Hub{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Join subscribes the connection to a room's subject. A previous room
// subscription for the same connection is replaced.
func (h *Hub) Join(conn chat.Conn, roomID string) error {
	connID := conn.ID()
	h.Leave(connID)

	sub, err := h.conn.Subscribe(SubjectRoom+roomID, func(msg *nats.Msg) {
		var ev roomEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("hub: bad room event for session=%s: %v", connID, err)
			return
		}
		if ev.Exclude && ev.From == connID {
			return
		}
		if err := conn.Write(ev.Frame); err != nil {
			log.Printf("hub: deliver to session=%s failed: %v", connID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("hub: subscribe room=%s: %w", roomID, err)
	}

	h.mu.Lock()
	h.subs[connID] = sub
	h.mu.Unlock()
	return nil
}

// Leave drops the connection's room subscription, if any.
func (h *Hub) Leave(connID string) {
	h.mu.Lock()
	sub, ok := h.subs[connID]
	if ok {
		delete(h.subs, connID)
	}
	h.mu.Unlock()

	if ok {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("hub: unsubscribe session=%s: %v", connID, err)
		}
	}
}

// Emit publishes a server message to every connection in the room.
func (h *Hub) Emit(roomID, msgType string, payload interface{}) {
	h.publish(roomID, "", false, msgType, payload)
}

// EmitExcept publishes to every connection in the room except the one
// identified by exceptConnID.
func (h *Hub) EmitExcept(roomID, exceptConnID, msgType string, payload interface{}) {
	h.publish(roomID, exceptConnID, true, msgType, payload)
}

// EmitTo writes a server message to a single connection directly,
// bypassing the room subject.
func (h *Hub) EmitTo(conn chat.Conn, msgType string, payload interface{}) {
	frame, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("hub: build %s frame: %v", msgType, err)
		return
	}
	if err := conn.Write(frame); err != nil {
		log.Printf("hub: send %s to session=%s failed: %v", msgType, conn.ID(), err)
	}
}

func (h *Hub) publish(roomID, from string, exclude bool, msgType string, payload interface{}) {
	frame, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("hub: build %s frame: %v", msgType, err)
		return
	}

	data, err := json.Marshal(roomEvent{From: from, Exclude: exclude, Frame: frame})
	if err != nil {
		log.Printf("hub: marshal room event: %v", err)
		return
	}

	if err := h.conn.Publish(SubjectRoom+roomID, data); err != nil {
		log.Printf("hub: publish room=%s type=%s failed: %v", roomID, msgType, err)
	}
}

// Close drains all room subscriptions and the NATS connection.
func (h *Hub) Close() {
	h.mu.Lock()
	for connID, sub := range h.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("hub: drain session=%s: %v", connID, err)
		}
	}
	h.subs = make(map[string]*nats.Subscription)
	h.mu.Unlock()

	if err := h.conn.Drain(); err != nil {
		log.Printf("hub: connection drain: %v", err)
	}
	log.Printf("hub: closed")
}

// ---------------------------------------------------------------------------
// chat.Sender implementation
// ---------------------------------------------------------------------------

// BroadcastMessage emits a message:new event to the whole room.
func (h *Hub) BroadcastMessage(roomID string, ev chat.ChatEvent) {
	h.Emit(roomID, protocol.TypeMessageNew, protocol.MessageNewMsg{Message: ev})
}

// SendMessage delivers a message:new event to one connection only.
func (h *Hub) SendMessage(conn chat.Conn, ev chat.ChatEvent) {
	h.EmitTo(conn, protocol.TypeMessageNew, protocol.MessageNewMsg{Message: ev})
}

// BroadcastParticipants emits the room's participant list to the room.
func (h *Hub) BroadcastParticipants(roomID string, users []chat.User) {
	h.Emit(roomID, protocol.TypeParticipants, protocol.ParticipantsMsg{Participants: users})
}

// SendHistory delivers room history to one connection only.
func (h *Hub) SendHistory(conn chat.Conn, events []chat.ChatEvent) {
	h.EmitTo(conn, protocol.TypeRoomHistory, protocol.RoomHistoryMsg{Messages: events})
}
