// Package relay routes client events to the room, message, and
// assistant layers. It owns the per-connection session state (who the
// connection is, which room it currently occupies) and enforces the
// one-room-at-a-time rule: joining a new room implicitly leaves the
// previous one.
package relay

import (
	"context"
	"log"
	"sync"

	"github.com/codehub/chat-relay/internal/bot"
	"github.com/codehub/chat-relay/internal/chat"
	"github.com/codehub/chat-relay/internal/protocol"
	"github.com/codehub/chat-relay/internal/ratelimit"
	"github.com/codehub/chat-relay/internal/session"
	"github.com/codehub/chat-relay/internal/ws"
)

// Transport fans events out to connections. It is implemented by
// hub.Hub; the interface exists so the router can be exercised with an
// in-memory transport in tests.
type Transport interface {
	Join(conn chat.Conn, roomID string) error
	Leave(connID string)
	Emit(roomID, msgType string, payload interface{})
	EmitExcept(roomID, exceptConnID, msgType string, payload interface{})
	EmitTo(conn chat.Conn, msgType string, payload interface{})
}

// FloodLimiter throttles raw client events per connection. It is
// implemented by ratelimit.Limiter; the interface exists so the router
// can be exercised without Redis in tests.
type FloodLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// connState is the in-process view of one connection's session: the
// identity it joined with and the room it currently occupies. The
// authoritative copy for cross-server visibility lives in Redis; this
// map is what the hot path reads.
type connState struct {
	user   chat.User
	roomID string
}

// Router dispatches parsed client events to the chat core. All methods
// are safe for concurrent use; the worker pool delivers events from
// different connections in parallel.
type Router struct {
	roster    *chat.Roster
	factory   *chat.Factory
	invoker   *bot.Invoker
	transport Transport

	sessionStore *session.Store // optional write-through, may be nil
	flood        FloodLimiter   // optional flood limiter, may be nil

	mu    sync.Mutex
	state map[string]*connState // connection id -> session state
}

// NewRouter creates a Router over the given collaborators. sessionStore
// and flood may be nil, in which case session write-through and flood
// limiting are disabled.
func NewRouter(roster *chat.Roster, factory *chat.Factory, invoker *bot.Invoker, transport Transport, sessionStore *session.Store, flood FloodLimiter) *Router {
	return &Router{
		roster:       roster,
		factory:      factory,
		invoker:      invoker,
		transport:    transport,
		sessionStore: sessionStore,
		flood:        flood,
		state:        make(map[string]*connState),
	}
}

// Bind registers the router's handlers on the dispatcher.
func (r *Router) Bind(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeRoomsGet, func(conn *ws.Connection, _ interface{}) {
		r.RoomsGet(context.Background(), conn)
	})
	d.Register(protocol.TypeRoomJoin, func(conn *ws.Connection, msg interface{}) {
		r.RoomJoin(context.Background(), conn, msg.(protocol.RoomJoinMsg))
	})
	d.Register(protocol.TypeRoomLeave, func(conn *ws.Connection, _ interface{}) {
		r.RoomLeave(context.Background(), conn)
	})
	d.Register(protocol.TypeMessageSend, func(conn *ws.Connection, msg interface{}) {
		r.MessageSend(context.Background(), conn, msg.(protocol.MessageSendMsg))
	})
	d.Register(protocol.TypeTypingStart, func(conn *ws.Connection, msg interface{}) {
		r.Typing(conn, protocol.TypeTypingStart, msg.(protocol.TypingMsg))
	})
	d.Register(protocol.TypeTypingStop, func(conn *ws.Connection, msg interface{}) {
		r.Typing(conn, protocol.TypeTypingStop, msg.(protocol.TypingMsg))
	})
}

// RoomsGet replies to the requesting connection with the room catalog.
func (r *Router) RoomsGet(ctx context.Context, conn chat.Conn) {
	rooms := r.roster.Rooms(ctx)
	r.transport.EmitTo(conn, protocol.TypeRoomsList, protocol.RoomsListMsg{Rooms: rooms})
}

// RoomJoin moves the connection into the requested room. If the
// connection already occupies a room it is removed from that room
// first, with the same announcements an explicit leave produces. An
// unknown room id yields an error frame to the requester and leaves
// the connection roomless. A flood-limited join is rejected before any
// of that happens, so the connection's current room is untouched.
func (r *Router) RoomJoin(ctx context.Context, conn chat.Conn, msg protocol.RoomJoinMsg) {
	if r.flood != nil {
		allowed, err := r.flood.Allow(ctx, conn.ID(), ratelimit.RuleJoin)
		if err != nil {
			log.Printf("relay: flood limiter session=%s: %v", conn.ID(), err)
		} else if !allowed {
			r.transport.EmitTo(conn, protocol.TypeError, protocol.ErrorMsg{Message: "You are switching rooms too quickly."})
			return
		}
	}

	r.leaveCurrent(ctx, conn.ID())

	room := r.roster.RoomByID(ctx, msg.RoomID)
	if room == nil {
		r.transport.EmitTo(conn, protocol.TypeError, protocol.ErrorMsg{Message: "Room not found."})
		return
	}

	if err := r.transport.Join(conn, msg.RoomID); err != nil {
		log.Printf("relay: join transport room=%s session=%s: %v", msg.RoomID, conn.ID(), err)
		r.transport.EmitTo(conn, protocol.TypeError, protocol.ErrorMsg{Message: "Could not join room."})
		return
	}

	r.mu.Lock()
	r.state[conn.ID()] = &connState{user: msg.User, roomID: msg.RoomID}
	r.mu.Unlock()

	r.roster.AddParticipant(ctx, msg.User, msg.RoomID)
	r.roster.SendHistory(ctx, conn, msg.RoomID)

	ev := r.factory.SystemMessage(msg.User, chat.SystemJoin, msg.RoomID)
	r.factory.Save(ctx, ev)
	r.factory.Broadcast(ev)

	if r.sessionStore != nil {
		if err := r.sessionStore.SetUser(ctx, conn.ID(), msg.User); err != nil {
			log.Printf("relay: session user write session=%s: %v", conn.ID(), err)
		}
		if err := r.sessionStore.SetRoom(ctx, conn.ID(), msg.RoomID); err != nil {
			log.Printf("relay: session room write session=%s: %v", conn.ID(), err)
		}
	}
}

// RoomLeave removes the connection from its current room. Leaving while
// roomless is a no-op.
func (r *Router) RoomLeave(ctx context.Context, conn chat.Conn) {
	r.leaveCurrent(ctx, conn.ID())
}

// MessageSend validates and relays a chat message, delegating assistant
// handling to the invoker. Invalid content and flood-limited sends are
// reported to the sender only.
func (r *Router) MessageSend(ctx context.Context, conn chat.Conn, msg protocol.MessageSendMsg) {
	if err := chat.ValidateContent(msg.Content); err != nil {
		r.transport.EmitTo(conn, protocol.TypeError, protocol.ErrorMsg{Message: err.Error()})
		return
	}

	if r.flood != nil {
		allowed, err := r.flood.Allow(ctx, conn.ID(), ratelimit.RuleSend)
		if err != nil {
			log.Printf("relay: flood limiter session=%s: %v", conn.ID(), err)
		} else if !allowed {
			r.transport.EmitTo(conn, protocol.TypeError, protocol.ErrorMsg{Message: "You are sending messages too quickly."})
			return
		}
	}

	r.invoker.HandleUserMessage(ctx, conn, msg.Author, msg.Content, msg.RoomID, msg.SentToBot)
}

// Typing relays a typing start/stop signal to everyone else in the
// room. The sender is excluded; typing state is never persisted.
func (r *Router) Typing(conn chat.Conn, msgType string, msg protocol.TypingMsg) {
	r.transport.EmitExcept(msg.RoomID, conn.ID(), msgType, protocol.TypingEventMsg{UserID: msg.UserID})
}

// Disconnect tears down a connection's session state. It performs the
// same room departure as an explicit leave, then forgets the
// connection.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	r.leaveCurrent(ctx, connID)

	r.mu.Lock()
	delete(r.state, connID)
	r.mu.Unlock()
}

// leaveCurrent removes the connection from whatever room it occupies:
// drop the transport subscription first so the leaver receives none of
// the departure traffic, then announce the updated roster and the leave
// event to the remaining participants.
func (r *Router) leaveCurrent(ctx context.Context, connID string) {
	r.mu.Lock()
	st, ok := r.state[connID]
	var (
		user   chat.User
		roomID string
	)
	if ok && st.roomID != "" {
		user = st.user
		roomID = st.roomID
		st.roomID = ""
	}
	r.mu.Unlock()

	if roomID == "" {
		return
	}

	r.transport.Leave(connID)
	r.roster.RemoveParticipant(user.ID, roomID)

	ev := r.factory.SystemMessage(user, chat.SystemLeave, roomID)
	r.factory.Save(ctx, ev)
	r.factory.Broadcast(ev)

	if r.sessionStore != nil {
		if err := r.sessionStore.ClearRoom(ctx, connID); err != nil {
			log.Printf("relay: session room clear session=%s: %v", connID, err)
		}
	}
}
