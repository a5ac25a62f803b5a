// Package storage provides the PostgreSQL-backed repository for users,
// rooms, and message history, plus schema migrations applied at
// bootstrap.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/codehub/chat-relay/internal/chat"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store manages durable chat records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL using the given connection string and
// verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate applies all pending embedded migrations.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("storage: load migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("storage: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("storage: migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("storage: migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertUser inserts or updates a user record; last write wins on name
// and avatar.
func (s *Store) UpsertUser(ctx context.Context, user chat.User) error {
	const query = `
		INSERT INTO users (id, name, avatar_url, is_bot)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, avatar_url = $3, is_bot = $4`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, nullString(user.AvatarURL), user.IsBot)
	if err != nil {
		return fmt.Errorf("storage: upsert user: %w", err)
	}
	return nil
}

// UpsertRoom inserts or updates a room record.
func (s *Store) UpsertRoom(ctx context.Context, room chat.Room) error {
	const query = `
		INSERT INTO rooms (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = $2`

	if _, err := s.db.ExecContext(ctx, query, room.ID, room.Name); err != nil {
		return fmt.Errorf("storage: upsert room: %w", err)
	}
	return nil
}

// GetRoomByID fetches one room. A missing room is (nil, nil), not an
// error.
func (s *Store) GetRoomByID(ctx context.Context, id string) (*chat.Room, error) {
	var room chat.Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM rooms WHERE id = $1`, id).Scan(&room.ID, &room.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get room: %w", err)
	}
	return &room, nil
}

// ListRooms returns all rooms ordered by name.
func (s *Store) ListRooms(ctx context.Context) ([]chat.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM rooms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []chat.Room{}
	for rows.Next() {
		var room chat.Room
		if err := rows.Scan(&room.ID, &room.Name); err != nil {
			return nil, fmt.Errorf("storage: scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list rooms: %w", err)
	}
	return rooms, nil
}

// SaveMessage inserts one chat event. Variant fields not carried by the
// event's type are stored as NULL.
func (s *Store) SaveMessage(ctx context.Context, ev chat.ChatEvent) error {
	const query = `
		INSERT INTO messages (id, type, content, kind, user_id, room_id, created_at, is_sent_to_bot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID,
		string(ev.Type),
		nullString(ev.Content),
		nullString(string(ev.Kind)),
		nullString(ev.User.ID),
		nullString(ev.RoomID),
		ev.CreatedAt,
		ev.SentToBot,
	)
	if err != nil {
		return fmt.Errorf("storage: save message: %w", err)
	}
	return nil
}

// RoomHistory returns up to limit events for the room, oldest first,
// with author attributes joined onto each event.
func (s *Store) RoomHistory(ctx context.Context, roomID string, limit int) ([]chat.ChatEvent, error) {
	const query = `
		SELECT m.id, m.type, m.content, m.kind, m.user_id, m.room_id, m.created_at, m.is_sent_to_bot,
		       u.name, u.avatar_url, u.is_bot
		FROM messages m
		LEFT JOIN users u ON m.user_id = u.id
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: room history: %w", err)
	}
	defer rows.Close()

	events := []chat.ChatEvent{}
	for rows.Next() {
		var (
			ev                    chat.ChatEvent
			content, kind, userID sql.NullString
			roomIDCol             sql.NullString
			createdAt             time.Time
			userName, userAvatar  sql.NullString
			userIsBot             sql.NullBool
		)
		err := rows.Scan(&ev.ID, &ev.Type, &content, &kind, &userID, &roomIDCol,
			&createdAt, &ev.SentToBot, &userName, &userAvatar, &userIsBot)
		if err != nil {
			return nil, fmt.Errorf("storage: scan message: %w", err)
		}

		ev.Content = content.String
		ev.Kind = chat.SystemKind(kind.String)
		ev.RoomID = roomIDCol.String
		ev.CreatedAt = chat.FormatTimestamp(createdAt)
		if userID.Valid {
			ev.User = chat.User{
				ID:        userID.String,
				Name:      userName.String,
				AvatarURL: userAvatar.String,
				IsBot:     userIsBot.Bool,
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: room history: %w", err)
	}

	// The query walks newest-first to apply the limit; callers expect
	// oldest-first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
