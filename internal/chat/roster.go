package chat

import (
	"context"
	"log"
	"sync"
)

// HistoryLimit is the default number of persisted events replayed to a
// newly joined connection.
const HistoryLimit = 500

// Roster tracks which users are currently present in which room and
// notifies the room of membership changes. It is pure runtime state: it
// does not survive a restart and is rebuilt as clients rejoin. It is an
// availability cache, not an authorization gate.
type Roster struct {
	mu           sync.RWMutex
	participants map[string][]User // roomID -> users in join order

	store  Store
	sender Sender
}

// NewRoster creates an empty Roster bound to the storage and transport
// collaborators.
func NewRoster(store Store, sender Sender) *Roster {
	return &Roster{
		participants: make(map[string][]User),
		store:        store,
		sender:       sender,
	}
}

// AddParticipant records the user as present in the room and broadcasts
// the resulting participant list. Adding an id that is already present
// replaces the stale entry in place, so duplicates by id never occur
// and join order is preserved. The user is upserted into storage and
// the room's existence checked as side effects; both degrade to a log
// line on failure — the join proceeds regardless.
func (r *Roster) AddParticipant(ctx context.Context, user User, roomID string) {
	r.mu.Lock()
	list := r.participants[roomID]
	replaced := false
	for i, p := range list {
		if p.ID == user.ID {
			list[i] = user
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, user)
	}
	r.participants[roomID] = list
	r.mu.Unlock()

	if err := r.store.UpsertUser(ctx, user); err != nil {
		log.Printf("chat: upsert user id=%s failed: %v", user.ID, err)
	}
	if room := r.RoomByID(ctx, roomID); room == nil {
		log.Printf("chat: room %s not found while adding participant %s", roomID, user.ID)
	}

	r.BroadcastParticipants(roomID)
}

// RemoveParticipant drops the user from the room's list. Unknown rooms
// and users are a no-op for the list, but the resulting roster is
// always broadcast afterward: concurrent joins may be racing and every
// member must converge on the same view.
func (r *Roster) RemoveParticipant(userID, roomID string) {
	r.mu.Lock()
	list := r.participants[roomID]
	for i, p := range list {
		if p.ID == userID {
			r.participants[roomID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.participants[roomID]) == 0 {
		delete(r.participants, roomID)
	}
	r.mu.Unlock()

	r.BroadcastParticipants(roomID)
}

// Participants returns a defensive copy of the room's live membership
// in join order, never the backing list.
func (r *Roster) Participants(roomID string) []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.participants[roomID]
	out := make([]User, len(list))
	copy(out, list)
	return out
}

// BroadcastParticipants emits the current roster for the room to every
// connection in it, including the one that triggered the change.
func (r *Roster) BroadcastParticipants(roomID string) {
	r.sender.BroadcastParticipants(roomID, r.Participants(roomID))
}

// Rooms lists all rooms from storage. On storage failure it returns an
// empty list rather than propagating — lookups degrade, they don't
// crash the session.
func (r *Roster) Rooms(ctx context.Context) []Room {
	rooms, err := r.store.ListRooms(ctx)
	if err != nil {
		log.Printf("chat: list rooms failed: %v", err)
		return []Room{}
	}
	return rooms
}

// RoomByID fetches one room from storage, returning nil both when the
// room does not exist and when storage fails (logged).
func (r *Roster) RoomByID(ctx context.Context, roomID string) *Room {
	room, err := r.store.GetRoomByID(ctx, roomID)
	if err != nil {
		log.Printf("chat: get room id=%s failed: %v", roomID, err)
		return nil
	}
	return room
}

// SendHistory fetches up to HistoryLimit persisted events for the room,
// oldest first, and delivers them privately to the given connection.
// Storage failure is swallowed, leaving the client with no history
// rather than an error.
func (r *Roster) SendHistory(ctx context.Context, conn Conn, roomID string) {
	history, err := r.store.RoomHistory(ctx, roomID, HistoryLimit)
	if err != nil {
		log.Printf("chat: fetch history room=%s failed: %v", roomID, err)
		return
	}
	r.sender.SendHistory(conn, history)
}
