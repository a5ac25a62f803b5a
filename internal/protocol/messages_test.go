package protocol

import (
	"encoding/json"
	"testing"

	"github.com/codehub/chat-relay/internal/chat"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid room:join message
// ---------------------------------------------------------------------------

func TestParseClientMessage_RoomJoin(t *testing.T) {
	input := []byte(`{"type":"room:join","user":{"id":"u1","name":"Alice","avatarUrl":"http://x/a.png"},"roomId":"room-1"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeRoomJoin {
		t.Fatalf("expected type %q, got %q", TypeRoomJoin, msgType)
	}

	jm, ok := msg.(RoomJoinMsg)
	if !ok {
		t.Fatalf("expected RoomJoinMsg, got %T", msg)
	}
	if jm.RoomID != "room-1" {
		t.Errorf("expected roomId %q, got %q", "room-1", jm.RoomID)
	}
	if jm.User.ID != "u1" || jm.User.Name != "Alice" {
		t.Errorf("unexpected user: %+v", jm.User)
	}
	if jm.User.AvatarURL != "http://x/a.png" {
		t.Errorf("unexpected avatarUrl: %q", jm.User.AvatarURL)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid message:send message
// ---------------------------------------------------------------------------

func TestParseClientMessage_MessageSend(t *testing.T) {
	input := []byte(`{"type":"message:send","author":{"id":"u1","name":"Alice"},"content":"Hello!","roomId":"room-1","sentToBot":true}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessageSend {
		t.Fatalf("expected type %q, got %q", TypeMessageSend, msgType)
	}

	sm, ok := msg.(MessageSendMsg)
	if !ok {
		t.Fatalf("expected MessageSendMsg, got %T", msg)
	}
	if sm.Content != "Hello!" {
		t.Errorf("expected content %q, got %q", "Hello!", sm.Content)
	}
	if sm.RoomID != "room-1" {
		t.Errorf("expected roomId %q, got %q", "room-1", sm.RoomID)
	}
	if !sm.SentToBot {
		t.Error("expected sentToBot true")
	}
}

// ---------------------------------------------------------------------------
// Test: typing:start and typing:stop share the same payload shape
// ---------------------------------------------------------------------------

func TestParseClientMessage_Typing(t *testing.T) {
	for _, typ := range []string{TypeTypingStart, TypeTypingStop} {
		input := []byte(`{"type":"` + typ + `","userId":"u1","roomId":"room-1"}`)

		msgType, msg, err := ParseClientMessage(input)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", typ, err)
		}
		if msgType != typ {
			t.Fatalf("expected type %q, got %q", typ, msgType)
		}

		tm, ok := msg.(TypingMsg)
		if !ok {
			t.Fatalf("%s: expected TypingMsg, got %T", typ, msg)
		}
		if tm.UserID != "u1" || tm.RoomID != "room-1" {
			t.Errorf("%s: unexpected payload: %+v", typ, tm)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: rooms:get and ping carry no payload
// ---------------------------------------------------------------------------

func TestParseClientMessage_BarePayloads(t *testing.T) {
	if _, msg, err := ParseClientMessage([]byte(`{"type":"rooms:get"}`)); err != nil {
		t.Fatalf("rooms:get error: %v", err)
	} else if _, ok := msg.(RoomsGetMsg); !ok {
		t.Fatalf("expected RoomsGetMsg, got %T", msg)
	}

	if _, msg, err := ParseClientMessage([]byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("ping error: %v", err)
	} else if _, ok := msg.(PingMsg); !ok {
		t.Fatalf("expected PingMsg, got %T", msg)
	}
}

// ---------------------------------------------------------------------------
// Test: Unknown and malformed messages return errors
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"shutdown","data":"x"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestParseClientMessage_ServerOnlyType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"message:new"}`)); err == nil {
		t.Fatal("server-only types must be rejected from clients")
	}
}

func TestParseClientMessage_MalformedJSON(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

// ---------------------------------------------------------------------------
// Test: Building a message:new server frame
// ---------------------------------------------------------------------------

func TestNewServerMessage_MessageNew(t *testing.T) {
	ev := chat.ChatEvent{
		ID:        "m1",
		Type:      chat.EventUser,
		Content:   "hi",
		User:      chat.User{ID: "u1", Name: "Alice"},
		RoomID:    "room-1",
		CreatedAt: "2025-03-14T09:26:53.589Z",
	}

	data, err := NewServerMessage(TypeMessageNew, MessageNewMsg{Message: ev})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeMessageNew {
		t.Errorf("expected type %q, got %v", TypeMessageNew, result["type"])
	}

	// The event is nested under "message" so its own "type" field (the
	// user/bot/system discriminator) cannot collide with the frame type.
	inner, ok := result["message"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected message object, got %T", result["message"])
	}
	if inner["type"] != "user" {
		t.Errorf("expected inner type %q, got %v", "user", inner["type"])
	}
	if inner["content"] != "hi" {
		t.Errorf("expected content %q, got %v", "hi", inner["content"])
	}
	if inner["createdAt"] != "2025-03-14T09:26:53.589Z" {
		t.Errorf("unexpected createdAt: %v", inner["createdAt"])
	}
}

// ---------------------------------------------------------------------------
// Test: Building an error server frame
// ---------------------------------------------------------------------------

func TestNewServerMessage_Error(t *testing.T) {
	data, err := NewServerMessage(TypeError, ErrorMsg{Message: "Room not found."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeError {
		t.Errorf("expected type %q, got %v", TypeError, result["type"])
	}
	if result["message"] != "Room not found." {
		t.Errorf("unexpected message: %v", result["message"])
	}
}

// ---------------------------------------------------------------------------
// Test: Participants frame preserves join order
// ---------------------------------------------------------------------------

func TestNewServerMessage_Participants(t *testing.T) {
	users := []chat.User{
		{ID: "u1", Name: "Alice"},
		{ID: "u2", Name: "Bob", IsBot: false},
	}

	data, err := NewServerMessage(TypeParticipants, ParticipantsMsg{Participants: users})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Type         string      `json:"type"`
		Participants []chat.User `json:"participants"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result.Type != TypeParticipants {
		t.Errorf("expected type %q, got %q", TypeParticipants, result.Type)
	}
	if len(result.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(result.Participants))
	}
	if result.Participants[0].ID != "u1" || result.Participants[1].ID != "u2" {
		t.Errorf("join order not preserved: %+v", result.Participants)
	}
}
