// Package audit is the append-only per-dispatch event ledger. Entries are
// written inside the same transaction as the state mutation they document
// and are never updated or deleted. No workflow component reads the ledger
// to decide behavior; it exists for external reconstruction of history.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActorType identifies who caused an audited action.
type ActorType string

const (
	ActorUser         ActorType = "USER"
	ActorFieldSession ActorType = "FIELD_SESSION"
	ActorSystem       ActorType = "SYSTEM"
)

// Event is one immutable ledger entry.
type Event struct {
	ID                  int64
	DispatchID          string
	ActorType           ActorType
	ActorUserID         *string
	ActorFieldSessionID *string
	EventType           string
	Payload             []byte
	CreatedAt           time.Time
}

// Entry describes an event to append.
type Entry struct {
	DispatchID          string
	ActorType           ActorType
	ActorUserID         *string
	ActorFieldSessionID *string
	EventType           string
	Payload             map[string]any
}

// Ledger appends audit events. The zero value is usable.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Append writes one entry inside the caller's transaction. It can fail only
// on infrastructure faults; those must abort the whole enclosing transaction.
func (l *Ledger) Append(ctx context.Context, tx pgx.Tx, entry Entry) error {
	if entry.DispatchID == "" {
		return fmt.Errorf("audit: missing dispatch id")
	}
	if entry.EventType == "" {
		return fmt.Errorf("audit: missing event type")
	}
	if entry.ActorType == "" {
		entry.ActorType = ActorSystem
	}

	payload := entry.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload: %w", err)
	}

	var userID, sessionID any
	if entry.ActorUserID != nil && *entry.ActorUserID != "" {
		userID = *entry.ActorUserID
	}
	if entry.ActorFieldSessionID != nil && *entry.ActorFieldSessionID != "" {
		sessionID = *entry.ActorFieldSessionID
	}

	const q = `
INSERT INTO audit_events (dispatch_id, actor_type, actor_user_id, actor_field_session_id, event_type, payload)
VALUES ($1, $2, $3::uuid, $4::uuid, $5, $6::jsonb)
`
	if _, err := tx.Exec(ctx, q, entry.DispatchID, entry.ActorType, userID, sessionID, entry.EventType, body); err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}

// ListByDispatch returns the full ledger for a dispatch in append order.
func (l *Ledger) ListByDispatch(ctx context.Context, pool *pgxpool.Pool, dispatchID string) ([]Event, error) {
	const q = `
SELECT id, dispatch_id, actor_type, actor_user_id::text, actor_field_session_id::text, event_type, payload, created_at
FROM audit_events
WHERE dispatch_id = $1
ORDER BY id ASC
`
	rows, err := pool.Query(ctx, q, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, 16)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.DispatchID, &ev.ActorType, &ev.ActorUserID, &ev.ActorFieldSessionID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return out, nil
}

// UserEntry is a convenience constructor for USER-actor entries.
func UserEntry(dispatchID, userID, eventType string, payload map[string]any) Entry {
	return Entry{
		DispatchID:  dispatchID,
		ActorType:   ActorUser,
		ActorUserID: &userID,
		EventType:   eventType,
		Payload:     payload,
	}
}

// FieldEntry is a convenience constructor for FIELD_SESSION-actor entries.
func FieldEntry(dispatchID, fieldSessionID, eventType string, payload map[string]any) Entry {
	return Entry{
		DispatchID:          dispatchID,
		ActorType:           ActorFieldSession,
		ActorFieldSessionID: &fieldSessionID,
		EventType:           eventType,
		Payload:             payload,
	}
}

// SystemEntry is a convenience constructor for SYSTEM-actor entries.
func SystemEntry(dispatchID, eventType string, payload map[string]any) Entry {
	return Entry{
		DispatchID: dispatchID,
		ActorType:  ActorSystem,
		EventType:  eventType,
		Payload:    payload,
	}
}
