// Package chat holds the domain model and coordination core of the relay:
// chat events, the room roster, and the message factory that ties event
// construction to persistence and fan-out.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the three kinds of ChatEvent.
type EventType string

const (
	EventUser   EventType = "user"
	EventBot    EventType = "bot"
	EventSystem EventType = "system"
)

// SystemKind qualifies a system event.
type SystemKind string

const (
	SystemJoin  SystemKind = "join"
	SystemLeave SystemKind = "leave"
)

// User is a chat participant. Identity is client-generated and accepted
// as claimed; the id is the only stable key.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	IsBot     bool   `json:"isBot,omitempty"`
}

// Room is a named channel. Storage is the source of truth for room
// metadata; the roster only tracks live membership.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatEvent is the single persisted and broadcast message shape. The
// Type tag decides which optional fields are populated: Content for
// user/bot events, Kind for system events, SentToBot for user events.
// Events are built only through the Factory constructors and are
// immutable once constructed.
type ChatEvent struct {
	ID        string     `json:"id"`
	Type      EventType  `json:"type"`
	Content   string     `json:"content,omitempty"`
	Kind      SystemKind `json:"kind,omitempty"`
	User      User       `json:"user"`
	RoomID    string     `json:"roomId,omitempty"`
	CreatedAt string     `json:"createdAt"`
	SentToBot bool       `json:"isSentToBot,omitempty"`
}

// AssistantIdentity is the well-known user attached to every bot event.
var AssistantIdentity = User{ID: "code-guru", Name: "Code Guru", IsBot: true}

// timestampLayout matches the ISO-8601 UTC shape persisted historically.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func newEventID() string {
	return uuid.New().String()
}

// FormatTimestamp renders t in the wire/persistence timestamp shape.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Store is the durable storage collaborator consumed by the core. All
// methods may fail; callers degrade per their documented fallbacks
// rather than propagating.
type Store interface {
	UpsertUser(ctx context.Context, user User) error
	GetRoomByID(ctx context.Context, id string) (*Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	SaveMessage(ctx context.Context, ev ChatEvent) error
	RoomHistory(ctx context.Context, roomID string, limit int) ([]ChatEvent, error)
}

// Conn is the transport connection surface the core needs: a stable id
// and a frame writer.
type Conn interface {
	ID() string
	Write(data []byte) error
}

// Sender fans outbound events to room members. Implementations own the
// wire encoding; the core hands over domain values.
type Sender interface {
	// BroadcastMessage emits a message:new event to every connection
	// joined to the room.
	BroadcastMessage(roomID string, ev ChatEvent)
	// SendMessage delivers a message:new event to a single connection.
	SendMessage(conn Conn, ev ChatEvent)
	// BroadcastParticipants emits the room's current roster to every
	// connection in the room, including the one that triggered it.
	BroadcastParticipants(roomID string, users []User)
	// SendHistory delivers persisted history, oldest first, to one
	// connection only.
	SendHistory(conn Conn, events []ChatEvent)
}
