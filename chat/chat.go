// Package chat owns the per-dispatch chat room and system messages the
// workflow engine writes. Message storage and rendering for humans live
// outside the core; the engine only guarantees the room exists and that
// field milestones leave a system message in it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthorType identifies who wrote a chat message.
type AuthorType string

const (
	AuthorUser   AuthorType = "USER"
	AuthorSystem AuthorType = "SYSTEM"
)

// Message mirrors the chat_messages table.
type Message struct {
	ID         string
	ChatRoomID string
	AuthorType AuthorType
	AuthorID   *string
	Body       *string
	SystemType *string
	CreatedAt  time.Time
}

// Store reads and writes chat rooms and messages.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// EnsureRoom creates the dispatch's chat room if it does not exist yet and
// returns its id. Safe to call repeatedly from concurrent transactions; the
// unique constraint on dispatch_id makes the upsert idempotent.
func (s *Store) EnsureRoom(ctx context.Context, tx pgx.Tx, dispatchID string) (string, error) {
	const q = `
INSERT INTO chat_rooms (dispatch_id)
VALUES ($1)
ON CONFLICT (dispatch_id) DO UPDATE SET dispatch_id = EXCLUDED.dispatch_id
RETURNING id
`
	var roomID string
	if err := tx.QueryRow(ctx, q, dispatchID).Scan(&roomID); err != nil {
		return "", fmt.Errorf("chat: ensure room: %w", err)
	}
	return roomID, nil
}

// RoomID returns the chat room id for a dispatch, or empty when no room has
// been created yet (approval has not happened).
func (s *Store) RoomID(ctx context.Context, tx pgx.Tx, dispatchID string) (string, error) {
	var roomID string
	err := tx.QueryRow(ctx, `SELECT id FROM chat_rooms WHERE dispatch_id = $1`, dispatchID).Scan(&roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("chat: room lookup: %w", err)
	}
	return roomID, nil
}

// AppendSystemMessage writes a SYSTEM-authored message inside the caller's
// transaction. systemType names the milestone (e.g. FIELD_STARTED).
func (s *Store) AppendSystemMessage(ctx context.Context, tx pgx.Tx, roomID, systemType string) (string, error) {
	if roomID == "" {
		return "", fmt.Errorf("chat: missing room id")
	}
	const q = `
INSERT INTO chat_messages (chat_room_id, author_type, system_type)
VALUES ($1, 'SYSTEM', $2)
RETURNING id
`
	var msgID string
	if err := tx.QueryRow(ctx, q, roomID, systemType).Scan(&msgID); err != nil {
		return "", fmt.Errorf("chat: append system message: %w", err)
	}
	return msgID, nil
}

// ListMessages returns messages for a room in chronological order.
func (s *Store) ListMessages(ctx context.Context, pool *pgxpool.Pool, roomID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}

	const q = `
SELECT id, chat_room_id, author_type, author_user_id::text, body, system_type, created_at
FROM chat_messages
WHERE chat_room_id = $1
ORDER BY created_at ASC
LIMIT $2
`
	rows, err := pool.Query(ctx, q, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatRoomID, &m.AuthorType, &m.AuthorID, &m.Body, &m.SystemType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chat: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: iterate messages: %w", err)
	}
	return out, nil
}
