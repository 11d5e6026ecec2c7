package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"dispatchflow/audit"
	"dispatchflow/auth"
	"dispatchflow/fault"
	"dispatchflow/notify"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, req CreateRequest, plate, createdByID string) (Dispatch, error)
	InsertPendingQuotes(ctx context.Context, tx pgx.Tx, dispatchID string, supplierIDs []string) ([]string, error)
	LockForUpdate(ctx context.Context, tx pgx.Tx, dispatchID string) (LockedDispatch, error)
	LockQuote(ctx context.Context, tx pgx.Tx, quoteID string) (LockedQuote, error)
	AcceptQuote(ctx context.Context, tx pgx.Tx, dispatchID, quoteID string) error
	MarkApproved(ctx context.Context, tx pgx.Tx, dispatchID, quoteID, supplierCompanyID, approvedByID string, at time.Time) error
	MarkRejected(ctx context.Context, tx pgx.Tx, dispatchID, reason, rejectedByID string, at time.Time) error
	GetByID(ctx context.Context, id string) (Dispatch, error)
	List(ctx context.Context, limit int) ([]Dispatch, error)
	ListForSupplier(ctx context.Context, supplierCompanyID string, limit int) ([]Dispatch, error)
	SupplierInvited(ctx context.Context, dispatchID, supplierCompanyID string) (bool, error)
}

// SupplierDirectory resolves which of the requested supplier companies are
// currently active, inside the creation transaction.
type SupplierDirectory interface {
	ActiveIDs(ctx context.Context, tx pgx.Tx, ids []string) ([]string, error)
}

// RoomEnsurer creates (or idempotently reuses) the dispatch's chat room.
type RoomEnsurer interface {
	EnsureRoom(ctx context.Context, tx pgx.Tx, dispatchID string) (string, error)
}

// Service owns every dispatch status transition.
type Service struct {
	pool      TxBeginner
	repo      Store
	suppliers SupplierDirectory
	rooms     RoomEnsurer
	ledger    *audit.Ledger
	emitter   *notify.Emitter
	now       func() time.Time
}

// NewService wires the dispatch state machine. A nil emitter disables
// notifications.
func NewService(pool TxBeginner, repo Store, suppliers SupplierDirectory, rooms RoomEnsurer, ledger *audit.Ledger, emitter *notify.Emitter) *Service {
	if ledger == nil {
		ledger = audit.NewLedger()
	}
	if emitter == nil {
		emitter = notify.NewEmitter(nil, nil)
	}
	return &Service{
		pool:      pool,
		repo:      repo,
		suppliers: suppliers,
		rooms:     rooms,
		ledger:    ledger,
		emitter:   emitter,
		now:       time.Now,
	}
}

// WithClock overrides the wall-clock source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create opens a dispatch in QUOTING and fans out one PENDING quote per
// requested active supplier company.
func (s *Service) Create(ctx context.Context, actor auth.User, req CreateRequest) (Dispatch, error) {
	if err := auth.RequireRole(actor, auth.RoleKovi); err != nil {
		return Dispatch{}, err
	}

	plate := NormalizePlate(req.Plate)
	if plate == "" {
		return Dispatch{}, fault.InvalidInput("dispatch: plate has no alphanumeric characters")
	}
	if strings.TrimSpace(req.Address) == "" {
		return Dispatch{}, fault.InvalidInput("dispatch: address is required")
	}
	if !req.Reason.Valid() {
		return Dispatch{}, fault.Newf(fault.KindInvalidInput, "dispatch: unknown reason %q", req.Reason)
	}
	if req.Reason == ReasonOther && (req.ReasonDetails == nil || strings.TrimSpace(*req.ReasonDetails) == "") {
		return Dispatch{}, fault.InvalidInput("dispatch: reason OTHER requires details")
	}

	supplierIDs := dedupe(req.SupplierCompanyIDs)
	if len(supplierIDs) == 0 {
		return Dispatch{}, fault.InvalidInput("dispatch: at least one supplier company is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	active, err := s.suppliers.ActiveIDs(ctx, tx, supplierIDs)
	if err != nil {
		return Dispatch{}, err
	}
	if len(active) != len(supplierIDs) {
		activeSet := make(map[string]struct{}, len(active))
		for _, id := range active {
			activeSet[id] = struct{}{}
		}
		for _, id := range supplierIDs {
			if _, ok := activeSet[id]; !ok {
				return Dispatch{}, fault.Newf(fault.KindInvalidInput, "dispatch: supplier company %s is unknown or inactive", id)
			}
		}
	}

	d, err := s.repo.Insert(ctx, tx, req, plate, actor.ID)
	if err != nil {
		return Dispatch{}, err
	}
	quoteIDs, err := s.repo.InsertPendingQuotes(ctx, tx, d.ID, supplierIDs)
	if err != nil {
		return Dispatch{}, err
	}

	if err := s.ledger.Append(ctx, tx, audit.UserEntry(d.ID, actor.ID, "DISPATCH_CREATED", map[string]any{
		"plate":  plate,
		"reason": string(req.Reason),
	})); err != nil {
		return Dispatch{}, err
	}
	if err := s.ledger.Append(ctx, tx, audit.UserEntry(d.ID, actor.ID, "QUOTES_CREATED", map[string]any{
		"supplierCompanyIds": supplierIDs,
		"quoteIds":           quoteIDs,
	})); err != nil {
		return Dispatch{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: commit tx: %w", err)
	}
	return d, nil
}

// ApproveQuote accepts one quote and rejects every sibling in a single
// transaction. Dispatch and quote are re-read under row locks so two
// concurrent approvals serialize to exactly one winner; the loser observes
// the already-advanced status and fails with Conflict.
func (s *Service) ApproveQuote(ctx context.Context, actor auth.User, dispatchID, quoteID string) (Dispatch, error) {
	if err := auth.RequireRole(actor, auth.RoleKovi); err != nil {
		return Dispatch{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.LockForUpdate(ctx, tx, dispatchID)
	if err != nil {
		return Dispatch{}, err
	}
	if locked.Status != StatusQuoting {
		return Dispatch{}, fault.Newf(fault.KindConflict, "dispatch: cannot approve in status %s", locked.Status)
	}

	quote, err := s.repo.LockQuote(ctx, tx, quoteID)
	if err != nil {
		return Dispatch{}, err
	}
	if quote.DispatchID != dispatchID {
		return Dispatch{}, ErrQuoteNotFound
	}
	if quote.Status != "SUBMITTED" {
		return Dispatch{}, fault.Newf(fault.KindConflict, "dispatch: quote is %s, only SUBMITTED quotes can win", quote.Status)
	}

	now := s.now().UTC()
	if err := s.repo.AcceptQuote(ctx, tx, dispatchID, quoteID); err != nil {
		return Dispatch{}, err
	}
	if err := s.repo.MarkApproved(ctx, tx, dispatchID, quoteID, quote.SupplierCompanyID, actor.ID, now); err != nil {
		return Dispatch{}, err
	}

	roomID, err := s.rooms.EnsureRoom(ctx, tx, dispatchID)
	if err != nil {
		return Dispatch{}, err
	}

	if err := s.ledger.Append(ctx, tx, audit.UserEntry(dispatchID, actor.ID, "DISPATCH_APPROVED", map[string]any{
		"quoteId":           quoteID,
		"supplierCompanyId": quote.SupplierCompanyID,
	})); err != nil {
		return Dispatch{}, err
	}
	if err := s.ledger.Append(ctx, tx, audit.UserEntry(dispatchID, actor.ID, "CHAT_CREATED", map[string]any{
		"chatRoomId": roomID,
	})); err != nil {
		return Dispatch{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: commit tx: %w", err)
	}

	s.emitter.StatusChanged(dispatchID, string(StatusQuoting), string(StatusApproved))

	return s.repo.GetByID(ctx, dispatchID)
}

// Reject moves a QUOTING dispatch to REJECTED and retires its open quotes.
func (s *Service) Reject(ctx context.Context, actor auth.User, dispatchID, reason string) (Dispatch, error) {
	if err := auth.RequireRole(actor, auth.RoleKovi); err != nil {
		return Dispatch{}, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) < 3 {
		return Dispatch{}, fault.InvalidInput("dispatch: reject reason must be at least 3 characters")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.LockForUpdate(ctx, tx, dispatchID)
	if err != nil {
		return Dispatch{}, err
	}
	if locked.Status != StatusQuoting {
		return Dispatch{}, fault.Newf(fault.KindConflict, "dispatch: cannot reject in status %s", locked.Status)
	}

	now := s.now().UTC()
	if err := s.repo.MarkRejected(ctx, tx, dispatchID, reason, actor.ID, now); err != nil {
		return Dispatch{}, err
	}
	if err := s.ledger.Append(ctx, tx, audit.UserEntry(dispatchID, actor.ID, "DISPATCH_REJECTED", map[string]any{
		"reason": reason,
	})); err != nil {
		return Dispatch{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: commit tx: %w", err)
	}

	s.emitter.StatusChanged(dispatchID, string(StatusQuoting), string(StatusRejected))

	return s.repo.GetByID(ctx, dispatchID)
}

// Get returns one dispatch. Suppliers may only see dispatches their company
// was invited to quote on.
func (s *Service) Get(ctx context.Context, actor auth.User, dispatchID string) (Dispatch, error) {
	if actor.Role == auth.RoleSupplier {
		if actor.SupplierCompanyID == nil {
			return Dispatch{}, fault.Forbidden("dispatch: supplier user has no company affiliation")
		}
		invited, err := s.repo.SupplierInvited(ctx, dispatchID, *actor.SupplierCompanyID)
		if err != nil {
			return Dispatch{}, err
		}
		if !invited {
			return Dispatch{}, fault.Forbidden("dispatch: supplier company is not part of this dispatch")
		}
	}
	return s.repo.GetByID(ctx, dispatchID)
}

// List returns the dispatches visible to the actor, newest first.
func (s *Service) List(ctx context.Context, actor auth.User, limit int) ([]Dispatch, error) {
	if actor.Role == auth.RoleSupplier {
		if actor.SupplierCompanyID == nil {
			return nil, fault.Forbidden("dispatch: supplier user has no company affiliation")
		}
		return s.repo.ListForSupplier(ctx, *actor.SupplierCompanyID, limit)
	}
	return s.repo.List(ctx, limit)
}

var _ Store = (*Repository)(nil)
