package field

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dispatchflow/audit"
	"dispatchflow/auth"
	"dispatchflow/dispatch"
	"dispatchflow/fault"
	"dispatchflow/notify"
)

var (
	// ErrTokenExpired signals the session's hard expiry has passed. There is
	// no grace period and no renewal.
	ErrTokenExpired = fault.Expired("field: session expired")
	// ErrCloseRefused signals a CLOSE posted as a field event. Closing goes
	// through the dispatcher-side cost review, never through a session.
	ErrCloseRefused = fault.Conflict("field: close is not a field event, dispatch closure requires cost review")
)

// Session expiry bounds, in minutes.
const (
	DefaultSessionMinutes = 240
	MinSessionMinutes     = 5
	MaxSessionMinutes     = 1440
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	InsertSession(ctx context.Context, tx pgx.Tx, dispatchID, tokenHash string, expiresAt time.Time) (Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	LockSession(ctx context.Context, tx pgx.Tx, sessionID string) (Session, error)
	LockDispatchStatus(ctx context.Context, tx pgx.Tx, dispatchID string) (string, error)
	SetSessionTimestamp(ctx context.Context, tx pgx.Tx, sessionID, column string, at time.Time) error
	ApplyDispatchTransition(ctx context.Context, tx pgx.Tx, dispatchID, status, column string, at time.Time) error
	InsertEvent(ctx context.Context, tx pgx.Tx, sessionID string, eventType EventType, meta map[string]any, occurredAt time.Time) (string, error)
	InsertGPSPoints(ctx context.Context, tx pgx.Tx, sessionID string, samples []GPSSample) error
}

// Rooms is the chat collaborator: milestone events leave a system message in
// the dispatch's room when one exists.
type Rooms interface {
	RoomID(ctx context.Context, tx pgx.Tx, dispatchID string) (string, error)
	AppendSystemMessage(ctx context.Context, tx pgx.Tx, roomID, systemType string) (string, error)
}

// eventEffect maps a milestone to its idempotent timestamp columns and the
// dispatch status it always drives to.
type eventEffect struct {
	sessionColumn  string
	dispatchColumn string
	target         dispatch.Status
	auditType      string
}

var effects = map[EventType]eventEffect{
	EventStartTrip: {
		sessionColumn:  "started_at",
		dispatchColumn: "field_started_at",
		target:         dispatch.StatusInTransit,
		auditType:      "FIELD_STARTED",
	},
	EventArriveOnSite: {
		sessionColumn:  "arrived_at",
		dispatchColumn: "field_arrived_at",
		target:         dispatch.StatusOnSite,
		auditType:      "FIELD_ARRIVED",
	},
	EventRequestClose: {
		sessionColumn: "close_requested_at",
		target:        dispatch.StatusCloseRequested,
		auditType:     "FIELD_CLOSE_REQUESTED",
	},
}

// Service owns field-session issuance, token authentication, milestone
// events and GPS ingestion.
type Service struct {
	pool           TxBeginner
	repo           Store
	rooms          Rooms
	ledger         *audit.Ledger
	emitter        *notify.Emitter
	salt           string
	linkBase       string
	defaultMinutes int
	now            func() time.Time
}

func NewService(pool TxBeginner, repo Store, rooms Rooms, ledger *audit.Ledger, emitter *notify.Emitter, tokenSalt string) *Service {
	if ledger == nil {
		ledger = audit.NewLedger()
	}
	if emitter == nil {
		emitter = notify.NewEmitter(nil, nil)
	}
	return &Service{
		pool:           pool,
		repo:           repo,
		rooms:          rooms,
		ledger:         ledger,
		emitter:        emitter,
		salt:           tokenSalt,
		defaultMinutes: DefaultSessionMinutes,
		now:            time.Now,
	}
}

// WithDefaultExpiry overrides the session lifetime applied when a request
// does not name one.
func (s *Service) WithDefaultExpiry(minutes int) *Service {
	if minutes > 0 {
		s.defaultMinutes = minutes
	}
	return s
}

// WithLinkBase sets the base URL embedded into shareable session links.
func (s *Service) WithLinkBase(base string) *Service {
	s.linkBase = base
	return s
}

// WithClock overrides the wall-clock source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateSession issues a field session for an approved dispatch. The raw
// token appears only in the returned link and cannot be recovered later.
func (s *Service) CreateSession(ctx context.Context, actor auth.User, req CreateSessionRequest) (IssuedSession, error) {
	if err := auth.RequireRole(actor, auth.RoleKovi); err != nil {
		return IssuedSession{}, err
	}
	if req.DispatchID == "" {
		return IssuedSession{}, fault.InvalidInput("field: dispatch id is required")
	}
	if req.AllowClose {
		return IssuedSession{}, fault.InvalidInput("field: close-capable sessions cannot be issued")
	}
	minutes := req.ExpiresMinutes
	if minutes == 0 {
		minutes = s.defaultMinutes
	}
	if minutes < MinSessionMinutes || minutes > MaxSessionMinutes {
		return IssuedSession{}, fault.Newf(fault.KindInvalidInput, "field: expiry must be between %d and %d minutes", MinSessionMinutes, MaxSessionMinutes)
	}

	token, err := NewToken()
	if err != nil {
		return IssuedSession{}, err
	}

	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("field: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := s.repo.LockDispatchStatus(ctx, tx, req.DispatchID)
	if err != nil {
		return IssuedSession{}, err
	}
	if ds := dispatch.Status(status); !ds.Approved() || ds.Terminal() {
		return IssuedSession{}, fault.Newf(fault.KindConflict, "field: cannot issue session for dispatch in status %s", status)
	}

	session, err := s.repo.InsertSession(ctx, tx, req.DispatchID, Digest(s.salt, token), now.Add(time.Duration(minutes)*time.Minute))
	if err != nil {
		return IssuedSession{}, err
	}

	if err := s.ledger.Append(ctx, tx, audit.UserEntry(req.DispatchID, actor.ID, "FIELD_SESSION_CREATED", map[string]any{
		"fieldSessionId": session.ID,
		"expiresAt":      session.ExpiresAt,
	})); err != nil {
		return IssuedSession{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return IssuedSession{}, fmt.Errorf("field: commit tx: %w", err)
	}

	return IssuedSession{
		Session: session,
		Token:   token,
		Link:    s.linkBase + "/field/" + token,
	}, nil
}

// Authenticate resolves a raw token to its session, checking the digest and
// the hard expiry fresh on every call.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, fault.Unauthenticated("field: missing session token")
	}
	session, err := s.repo.GetByTokenHash(ctx, Digest(s.salt, token))
	if err != nil {
		return Session{}, err
	}
	if session.Expired(s.now().UTC()) {
		return Session{}, ErrTokenExpired
	}
	return session, nil
}

// RecordEvent applies one field milestone. The timestamp write is idempotent
// but every call appends a new event, audit entry and system chat message,
// and always drives the dispatch to the event's target status.
func (s *Service) RecordEvent(ctx context.Context, token string, eventType EventType, meta map[string]any) (Event, error) {
	if eventType == "CLOSE" {
		return Event{}, ErrCloseRefused
	}
	effect, ok := effects[eventType]
	if !ok {
		return Event{}, fault.Newf(fault.KindInvalidInput, "field: unknown event type %q", eventType)
	}

	session, err := s.Authenticate(ctx, token)
	if err != nil {
		return Event{}, err
	}

	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("field: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.repo.LockSession(ctx, tx, session.ID); err != nil {
		return Event{}, err
	}
	prev, err := s.repo.LockDispatchStatus(ctx, tx, session.DispatchID)
	if err != nil {
		return Event{}, err
	}
	if dispatch.Status(prev).Terminal() {
		return Event{}, fault.Newf(fault.KindConflict, "field: dispatch is %s, no further field events", prev)
	}

	if err := s.repo.SetSessionTimestamp(ctx, tx, session.ID, effect.sessionColumn, now); err != nil {
		return Event{}, err
	}
	if err := s.repo.ApplyDispatchTransition(ctx, tx, session.DispatchID, string(effect.target), effect.dispatchColumn, now); err != nil {
		return Event{}, err
	}

	eventID, err := s.repo.InsertEvent(ctx, tx, session.ID, eventType, meta, now)
	if err != nil {
		return Event{}, err
	}

	if err := s.ledger.Append(ctx, tx, audit.FieldEntry(session.DispatchID, session.ID, effect.auditType, map[string]any{
		"fieldEventId": eventID,
		"type":         string(eventType),
	})); err != nil {
		return Event{}, err
	}

	roomID, err := s.rooms.RoomID(ctx, tx, session.DispatchID)
	if err != nil {
		return Event{}, err
	}
	if roomID != "" {
		if _, err := s.rooms.AppendSystemMessage(ctx, tx, roomID, effect.auditType); err != nil {
			return Event{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Event{}, fmt.Errorf("field: commit tx: %w", err)
	}

	s.emitter.Emit(session.DispatchID, notify.EventFieldEvent, map[string]any{
		"type":       string(eventType),
		"occurredAt": now,
		"meta":       meta,
	})
	s.emitter.StatusChanged(session.DispatchID, prev, string(effect.target))

	return Event{ID: eventID, FieldSessionID: session.ID, Type: eventType, Meta: meta, OccurredAt: now}, nil
}

// IngestGPS appends a batch of location samples under the session. Samples
// may arrive out of temporal order; readers sort by recorded_at.
func (s *Service) IngestGPS(ctx context.Context, token string, samples []GPSSample) error {
	if len(samples) == 0 {
		return fault.InvalidInput("field: at least one gps sample is required")
	}
	for _, p := range samples {
		if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
			return fault.Newf(fault.KindInvalidInput, "field: coordinates (%f, %f) out of range", p.Latitude, p.Longitude)
		}
		if p.RecordedAt.IsZero() {
			return fault.InvalidInput("field: gps sample missing recorded_at")
		}
	}

	session, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("field: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.InsertGPSPoints(ctx, tx, session.ID, samples); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("field: commit tx: %w", err)
	}
	return nil
}

var _ Store = (*Repository)(nil)
