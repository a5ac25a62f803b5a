package chat

import (
	"context"
	"log"
	"time"

	"github.com/codehub/chat-relay/internal/metrics"
)

// Factory constructs well-formed ChatEvents and coordinates their
// persistence and distribution. Construction stamps a fresh id and the
// current UTC timestamp; it does not persist or broadcast by itself.
type Factory struct {
	store  Store
	sender Sender
	now    func() time.Time
	newID  func() string
}

// NewFactory creates a Factory bound to the given storage and transport
// collaborators.
func NewFactory(store Store, sender Sender) *Factory {
	return &Factory{
		store:  store,
		sender: sender,
		now:    time.Now,
		newID:  newEventID,
	}
}

// UserMessage builds a user event authored by the given user.
func (f *Factory) UserMessage(author User, content, roomID string, sentToBot bool) ChatEvent {
	return ChatEvent{
		ID:        f.newID(),
		Type:      EventUser,
		Content:   content,
		User:      author,
		RoomID:    roomID,
		CreatedAt: FormatTimestamp(f.now()),
		SentToBot: sentToBot,
	}
}

// BotMessage builds a bot event attributed to the assistant identity.
func (f *Factory) BotMessage(content, roomID string) ChatEvent {
	return ChatEvent{
		ID:        f.newID(),
		Type:      EventBot,
		Content:   content,
		User:      AssistantIdentity,
		RoomID:    roomID,
		CreatedAt: FormatTimestamp(f.now()),
	}
}

// SystemMessage builds a join/leave system event for the given user.
func (f *Factory) SystemMessage(user User, kind SystemKind, roomID string) ChatEvent {
	return ChatEvent{
		ID:        f.newID(),
		Type:      EventSystem,
		Kind:      kind,
		User:      user,
		RoomID:    roomID,
		CreatedAt: FormatTimestamp(f.now()),
	}
}

// Save persists the event. Persistence is best effort: failures are
// logged and swallowed so that delivery is never suppressed.
func (f *Factory) Save(ctx context.Context, ev ChatEvent) {
	if err := f.store.SaveMessage(ctx, ev); err != nil {
		log.Printf("chat: save message id=%s type=%s failed: %v", ev.ID, ev.Type, err)
	}
}

// Broadcast emits the event to every connection in its room. An event
// without a room id is deliberately not emitted at all — roomless
// events must never leak to all connections.
func (f *Factory) Broadcast(ev ChatEvent) {
	if ev.RoomID == "" {
		return
	}
	f.sender.BroadcastMessage(ev.RoomID, ev)
	metrics.MessagesTotal.WithLabelValues(string(ev.Type)).Inc()
}

// SendTo delivers the event to a single connection, used for private
// responses that must not appear in the shared transcript.
func (f *Factory) SendTo(conn Conn, ev ChatEvent) {
	f.sender.SendMessage(conn, ev)
}
