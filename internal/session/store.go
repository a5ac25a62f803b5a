// Package session mirrors per-connection session state into Redis. The
// router's in-memory map is authoritative; the Redis copy is a
// best-effort write-through kept for operational inspection and TTL
// based cleanup of abandoned sessions.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codehub/chat-relay/internal/chat"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 1 * time.Hour
)

// Session is the Redis snapshot of one connection's state.
type Session struct {
	ID         string `redis:"id"`
	UserJSON   string `redis:"user"`    // JSON-encoded chat.User, empty until first join
	RoomID     string `redis:"room_id"` // empty when not in a room
	Server     string `redis:"server"`  // which relay instance owns the connection
	CreatedAt  int64  `redis:"created_at"`
	LastActive int64  `redis:"last_active"`
}

// User decodes the stored user snapshot. Returns nil if none was set.
func (s *Session) User() *chat.User {
	if s.UserJSON == "" {
		return nil
	}
	var u chat.User
	if err := json.Unmarshal([]byte(s.UserJSON), &u); err != nil {
		return nil
	}
	return &u
}

// Store manages session state in Redis.
type Store struct {
	client     *redis.Client
	serverName string
}

// NewStore creates a session store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Create stores a new empty session with the standard TTL.
func (s *Store) Create(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	fields := map[string]interface{}{
		"id":          sessionID,
		"user":        "",
		"room_id":     "",
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := SessionPrefix + sessionID
	var sess Session
	if err := s.client.HGetAll(ctx, key).Scan(&sess); err != nil {
		return nil, err
	}
	if sess.ID == "" {
		return nil, nil
	}
	return &sess, nil
}

// SetUser stores the user snapshot for the connection and refreshes the
// TTL.
func (s *Store) SetUser(ctx context.Context, sessionID string, user chat.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: marshal user: %w", err)
	}

	key := SessionPrefix + sessionID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "user", string(data), "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// SetRoom records the room the connection currently occupies.
func (s *Store) SetRoom(ctx context.Context, sessionID string, roomID string) error {
	key := SessionPrefix + sessionID
	return s.client.HSet(ctx, key, "room_id", roomID, "last_active", time.Now().Unix()).Err()
}

// ClearRoom removes the current room marker.
func (s *Store) ClearRoom(ctx context.Context, sessionID string) error {
	return s.SetRoom(ctx, sessionID, "")
}

// Touch extends the session's TTL.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.Expire(ctx, key, SessionTTL).Err()
}

// Delete removes a session from Redis.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
