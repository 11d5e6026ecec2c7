package field

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchflow/fault"
)

// ErrSessionNotFound signals no session matches the presented credential.
var ErrSessionNotFound = fault.Unauthenticated("field: unknown session token")

const sessionColumns = `
id, dispatch_id::text, token_hash, expires_at, allow_close,
started_at, arrived_at, close_requested_at, closed_at, created_at`

// Repository owns SQL access for field sessions, events and GPS points.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.DispatchID, &s.TokenHash, &s.ExpiresAt, &s.AllowClose,
		&s.StartedAt, &s.ArrivedAt, &s.CloseRequestedAt, &s.ClosedAt, &s.CreatedAt,
	)
	return s, err
}

// InsertSession creates a session inside the caller's transaction.
func (r *Repository) InsertSession(ctx context.Context, tx pgx.Tx, dispatchID, tokenHash string, expiresAt time.Time) (Session, error) {
	const q = `
INSERT INTO field_sessions (dispatch_id, token_hash, expires_at, allow_close)
VALUES ($1, $2, $3, false)
RETURNING ` + sessionColumns

	s, err := scanSession(tx.QueryRow(ctx, q, dispatchID, tokenHash, expiresAt))
	if err != nil {
		return Session{}, fmt.Errorf("field: insert session: %w", err)
	}
	return s, nil
}

// GetByTokenHash resolves a session from its stored token digest. Called
// fresh on every field request.
func (r *Repository) GetByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM field_sessions WHERE token_hash = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("field: query by token hash: %w", err)
	}
	return s, nil
}

// LockSession re-reads the session under a row lock.
func (r *Repository) LockSession(ctx context.Context, tx pgx.Tx, sessionID string) (Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM field_sessions WHERE id = $1 FOR UPDATE`
	s, err := scanSession(tx.QueryRow(ctx, q, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("field: lock session: %w", err)
	}
	return s, nil
}

// LockDispatchStatus reads the owning dispatch's status under a row lock so
// field transitions serialize against dispatcher commands.
func (r *Repository) LockDispatchStatus(ctx context.Context, tx pgx.Tx, dispatchID string) (string, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM dispatches WHERE id = $1 FOR UPDATE`, dispatchID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fault.NotFound("field: dispatch not found")
		}
		return "", fmt.Errorf("field: lock dispatch: %w", err)
	}
	return status, nil
}

// SetSessionTimestamp sets one of the session milestone timestamps only if
// it is still unset.
func (r *Repository) SetSessionTimestamp(ctx context.Context, tx pgx.Tx, sessionID, column string, at time.Time) error {
	q := fmt.Sprintf(`UPDATE field_sessions SET %s = $2 WHERE id = $1 AND %s IS NULL`, column, column)
	if _, err := tx.Exec(ctx, q, sessionID, at); err != nil {
		return fmt.Errorf("field: set session %s: %w", column, err)
	}
	return nil
}

// ApplyDispatchTransition drives the dispatch to the event's target status
// and sets the dispatch-side milestone timestamp only if still unset.
func (r *Repository) ApplyDispatchTransition(ctx context.Context, tx pgx.Tx, dispatchID, status, column string, at time.Time) error {
	if column != "" {
		q := fmt.Sprintf(`UPDATE dispatches SET %s = $2 WHERE id = $1 AND %s IS NULL`, column, column)
		if _, err := tx.Exec(ctx, q, dispatchID, at); err != nil {
			return fmt.Errorf("field: set dispatch %s: %w", column, err)
		}
	}
	const q = `UPDATE dispatches SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.Exec(ctx, q, dispatchID, status, at); err != nil {
		return fmt.Errorf("field: set dispatch status: %w", err)
	}
	return nil
}

// InsertEvent appends one milestone record.
func (r *Repository) InsertEvent(ctx context.Context, tx pgx.Tx, sessionID string, eventType EventType, meta map[string]any, occurredAt time.Time) (string, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("field: marshal event meta: %w", err)
	}
	const q = `
INSERT INTO field_events (field_session_id, type, meta, occurred_at)
VALUES ($1, $2, $3::jsonb, $4)
RETURNING id
`
	var id string
	if err := tx.QueryRow(ctx, q, sessionID, eventType, body, occurredAt).Scan(&id); err != nil {
		return "", fmt.Errorf("field: insert event: %w", err)
	}
	return id, nil
}

// InsertGPSPoints appends a batch of samples. Arrival order is irrelevant;
// consumers sort by recorded_at.
func (r *Repository) InsertGPSPoints(ctx context.Context, tx pgx.Tx, sessionID string, samples []GPSSample) error {
	const q = `
INSERT INTO gps_points (field_session_id, latitude, longitude, accuracy_m, speed_mps, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	for _, p := range samples {
		if _, err := tx.Exec(ctx, q, sessionID, p.Latitude, p.Longitude, p.AccuracyM, p.SpeedMps, p.RecordedAt); err != nil {
			return fmt.Errorf("field: insert gps point: %w", err)
		}
	}
	return nil
}

// ListEvents returns the session's milestone records in occurrence order.
func (r *Repository) ListEvents(ctx context.Context, sessionID string) ([]Event, error) {
	const q = `
SELECT id, field_session_id::text, type, meta, occurred_at
FROM field_events
WHERE field_session_id = $1
ORDER BY occurred_at ASC, id ASC
`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("field: list events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, 8)
	for rows.Next() {
		var (
			ev   Event
			body []byte
		)
		if err := rows.Scan(&ev.ID, &ev.FieldSessionID, &ev.Type, &body, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("field: scan event: %w", err)
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &ev.Meta); err != nil {
				return nil, fmt.Errorf("field: decode event meta: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("field: iterate events: %w", err)
	}
	return out, nil
}

// TrailForDispatch returns every GPS sample across all of the dispatch's
// sessions ordered by recorded_at, the ground truth for cost reconciliation.
func (r *Repository) TrailForDispatch(ctx context.Context, dispatchID string) ([]GPSPoint, error) {
	const q = `
SELECT p.id, p.field_session_id::text, p.latitude, p.longitude, p.accuracy_m, p.speed_mps, p.recorded_at, p.created_at
FROM gps_points p
JOIN field_sessions fs ON fs.id = p.field_session_id
WHERE fs.dispatch_id = $1
ORDER BY p.recorded_at ASC, p.id ASC
`
	rows, err := r.pool.Query(ctx, q, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("field: trail for dispatch: %w", err)
	}
	defer rows.Close()

	out := make([]GPSPoint, 0, 64)
	for rows.Next() {
		var p GPSPoint
		if err := rows.Scan(&p.ID, &p.FieldSessionID, &p.Latitude, &p.Longitude, &p.AccuracyM, &p.SpeedMps, &p.RecordedAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("field: scan gps point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("field: iterate gps points: %w", err)
	}
	return out, nil
}

// LatestCloseTime returns the most recent close-request timestamp across the
// dispatch's sessions, or nil when the field work is still open.
func (r *Repository) LatestCloseTime(ctx context.Context, dispatchID string) (*time.Time, error) {
	const q = `
SELECT MAX(close_requested_at)
FROM field_sessions
WHERE dispatch_id = $1
`
	var at *time.Time
	if err := r.pool.QueryRow(ctx, q, dispatchID).Scan(&at); err != nil {
		return nil, fmt.Errorf("field: latest close time: %w", err)
	}
	return at, nil
}
