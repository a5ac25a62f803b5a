package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codehub/chat-relay/internal/chat"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memStore struct {
	users    map[string]chat.User
	saved    []chat.ChatEvent
	failSave bool
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]chat.User)}
}

func (s *memStore) UpsertUser(_ context.Context, user chat.User) error {
	s.users[user.ID] = user
	return nil
}

func (s *memStore) GetRoomByID(_ context.Context, _ string) (*chat.Room, error) {
	return nil, nil
}

func (s *memStore) ListRooms(_ context.Context) ([]chat.Room, error) {
	return nil, nil
}

func (s *memStore) SaveMessage(_ context.Context, ev chat.ChatEvent) error {
	if s.failSave {
		return errors.New("store unavailable")
	}
	s.saved = append(s.saved, ev)
	return nil
}

func (s *memStore) RoomHistory(_ context.Context, _ string, _ int) ([]chat.ChatEvent, error) {
	return nil, nil
}

type memSender struct {
	broadcasts []chat.ChatEvent
	unicasts   []chat.ChatEvent
}

func (s *memSender) BroadcastMessage(_ string, ev chat.ChatEvent) {
	s.broadcasts = append(s.broadcasts, ev)
}

func (s *memSender) SendMessage(_ chat.Conn, ev chat.ChatEvent) {
	s.unicasts = append(s.unicasts, ev)
}

func (s *memSender) BroadcastParticipants(_ string, _ []chat.User) {}
func (s *memSender) SendHistory(_ chat.Conn, _ []chat.ChatEvent)   {}

type memConn struct{ id string }

func (c *memConn) ID() string           { return c.id }
func (c *memConn) Write(_ []byte) error { return nil }

// scriptedAssistant answers Classify and Complete from fixed values and
// counts Complete calls.
type scriptedAssistant struct {
	classified    bool
	classifyErr   error
	reply         string
	completeErr   error
	completeCalls int
}

func (a *scriptedAssistant) Classify(_ context.Context, _ string) (bool, error) {
	return a.classified, a.classifyErr
}

func (a *scriptedAssistant) Complete(_ context.Context, _ string) (string, error) {
	a.completeCalls++
	return a.reply, a.completeErr
}

func newTestInvoker(a *scriptedAssistant) (*Invoker, *memStore, *memSender) {
	store := newMemStore()
	sender := &memSender{}
	factory := chat.NewFactory(store, sender)
	return NewInvoker(factory, store, a), store, sender
}

var alice = chat.User{ID: "u1", Name: "Alice"}

// ---------------------------------------------------------------------------
// Relay semantics
// ---------------------------------------------------------------------------

func TestHandleUserMessage_NoTrigger(t *testing.T) {
	a := &scriptedAssistant{classified: false}
	inv, store, sender := newTestInvoker(a)

	inv.HandleUserMessage(context.Background(), &memConn{id: "c1"}, alice, "hello everyone", "room-1", false)

	if len(sender.broadcasts) != 1 {
		t.Fatalf("expected only the user message broadcast, got %d", len(sender.broadcasts))
	}
	if sender.broadcasts[0].Type != chat.EventUser {
		t.Errorf("expected user event, got %q", sender.broadcasts[0].Type)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(store.saved))
	}
	if a.completeCalls != 0 {
		t.Errorf("assistant must not be invoked without a trigger, got %d calls", a.completeCalls)
	}
}

func TestHandleUserMessage_ClassifierTrigger(t *testing.T) {
	a := &scriptedAssistant{classified: true, reply: "Dependency injection is..."}
	inv, store, sender := newTestInvoker(a)

	inv.HandleUserMessage(context.Background(), &memConn{id: "c1"}, alice, "how does angular DI work", "room-1", false)

	if len(sender.broadcasts) != 2 {
		t.Fatalf("expected user + bot broadcasts, got %d", len(sender.broadcasts))
	}
	botEv := sender.broadcasts[1]
	if botEv.Type != chat.EventBot {
		t.Fatalf("expected bot event, got %q", botEv.Type)
	}
	if botEv.Content != a.reply {
		t.Errorf("unexpected reply content: %q", botEv.Content)
	}
	if !botEv.User.IsBot || botEv.User.ID != chat.AssistantIdentity.ID {
		t.Errorf("reply must carry the assistant identity, got %+v", botEv.User)
	}
	if len(store.saved) != 2 {
		t.Fatalf("expected user + bot events persisted, got %d", len(store.saved))
	}
}

func TestHandleUserMessage_ExplicitTrigger(t *testing.T) {
	// sentToBot forces an invocation even when classification says no.
	a := &scriptedAssistant{classified: false, reply: "Sure."}
	inv, _, sender := newTestInvoker(a)

	inv.HandleUserMessage(context.Background(), &memConn{id: "c1"}, alice, "what's for lunch", "room-1", true)

	if a.completeCalls != 1 {
		t.Fatalf("expected 1 assistant call, got %d", a.completeCalls)
	}
	if len(sender.broadcasts) != 2 {
		t.Fatalf("expected user + bot broadcasts, got %d", len(sender.broadcasts))
	}
}

func TestHandleUserMessage_UpsertsAuthor(t *testing.T) {
	inv, store, _ := newTestInvoker(&scriptedAssistant{})

	inv.HandleUserMessage(context.Background(), &memConn{id: "c1"}, alice, "hi", "room-1", false)

	if _, ok := store.users["u1"]; !ok {
		t.Error("author should be upserted on every message")
	}
}

// ---------------------------------------------------------------------------
// Failure containment
// ---------------------------------------------------------------------------

func TestHandleUserMessage_ClassifyError(t *testing.T) {
	a := &scriptedAssistant{classifyErr: errors.New("api down")}
	inv, store, sender := newTestInvoker(a)

	inv.HandleUserMessage(context.Background(), &memConn{id: "c1"}, alice, "typescript generics?", "room-1", false)

	// The user's own message precedes any assistant work.
	if len(sender.broadcasts) != 1 || sender.broadcasts[0].Type != chat.EventUser {
		t.Fatalf("user message must still be broadcast, got %d broadcasts", len(sender.broadcasts))
	}
	// The failure notice goes to the sender only.
	if len(sender.unicasts) != 1 {
		t.Fatalf("expected 1 private notice, got %d", len(sender.unicasts))
	}
	if sender.unicasts[0].Content != FailureNotice {
		t.Errorf("unexpected notice: %q", sender.unicasts[0].Content)
	}
	if a.completeCalls != 0 {
		t.Error("completion must not run after a classification error")
	}
	// Both the user message and the notice are persisted.
	if len(store.saved) != 2 {
		t.Fatalf("expected 2 persisted events, got %d", len(store.saved))
	}
}

func TestHandleUserMessage_CompleteError(t *testing.T) {
	a := &scriptedAssistant{classified: true, completeErr: errors.New("timeout")}
	inv, _, sender := newTestInvoker(a)

	inv.HandleUserMessage(context.Background(), &memConn{id: "c1"}, alice, "explain css grid", "room-1", false)

	if len(sender.broadcasts) != 1 {
		t.Fatalf("failed completion must not broadcast a bot message, got %d", len(sender.broadcasts))
	}
	if len(sender.unicasts) != 1 || sender.unicasts[0].Content != FailureNotice {
		t.Fatalf("expected private failure notice, got %+v", sender.unicasts)
	}
}

func TestHandleUserMessage_RateLimited(t *testing.T) {
	a := &scriptedAssistant{classified: true, reply: "ok"}
	inv, _, sender := newTestInvoker(a)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inv.limiter.now = func() time.Time { return now }

	ctx := context.Background()
	conn := &memConn{id: "c1"}
	for i := 0; i < MaxPerWindow; i++ {
		inv.HandleUserMessage(ctx, conn, alice, "question about docker", "room-1", false)
	}
	if a.completeCalls != MaxPerWindow {
		t.Fatalf("expected %d completions, got %d", MaxPerWindow, a.completeCalls)
	}

	inv.HandleUserMessage(ctx, conn, alice, "one more docker question", "room-1", false)

	if a.completeCalls != MaxPerWindow {
		t.Fatalf("over-quota message must not invoke the assistant, got %d calls", a.completeCalls)
	}
	if len(sender.unicasts) != 1 || sender.unicasts[0].Content != RateLimitNotice {
		t.Fatalf("expected private rate-limit notice, got %+v", sender.unicasts)
	}
	// The over-quota user message itself is still broadcast.
	if len(sender.broadcasts) != 2*MaxPerWindow+1 {
		t.Fatalf("expected %d broadcasts, got %d", 2*MaxPerWindow+1, len(sender.broadcasts))
	}

	// Quota is per room: a different room still gets a reply.
	inv.HandleUserMessage(ctx, conn, alice, "docker again", "room-2", false)
	if a.completeCalls != MaxPerWindow+1 {
		t.Fatalf("other rooms must have their own quota, got %d calls", a.completeCalls)
	}
}

func TestHandleUserMessage_SaveFailureStillDelivers(t *testing.T) {
	a := &scriptedAssistant{classified: true, reply: "ok"}
	inv, store, sender := newTestInvoker(a)
	store.failSave = true

	inv.HandleUserMessage(context.Background(), &memConn{id: "c1"}, alice, "golang channels?", "room-1", false)

	if len(sender.broadcasts) != 2 {
		t.Fatalf("persistence failure must not suppress delivery, got %d broadcasts", len(sender.broadcasts))
	}
}
