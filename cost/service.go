package cost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dispatchflow/audit"
	"dispatchflow/auth"
	"dispatchflow/fault"
	"dispatchflow/field"
	"dispatchflow/geo"
	"dispatchflow/notify"
	"dispatchflow/supplier"
)

// ErrNotApprovedSupplier signals a supplier submitting a claim on a dispatch
// another company won.
var ErrNotApprovedSupplier = fault.Forbidden("cost: claim must come from the approved supplier company")

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	LockDispatch(ctx context.Context, tx pgx.Tx, dispatchID string) (DispatchState, error)
	Upsert(ctx context.Context, tx pgx.Tx, req SubmitRequest, outcome Outcome, submittedByID string, at time.Time) (Breakdown, error)
	LockByDispatch(ctx context.Context, tx pgx.Tx, dispatchID string) (Breakdown, error)
	MarkReviewed(ctx context.Context, tx pgx.Tx, dispatchID, reviewedByID string, approve bool, note string, at time.Time) error
	CloseDispatch(ctx context.Context, tx pgx.Tx, dispatchID, closedByID string, at time.Time) error
	GetByDispatch(ctx context.Context, dispatchID string) (Breakdown, error)
}

// Telemetry supplies the measured ground truth for reconciliation.
type Telemetry interface {
	TrailForDispatch(ctx context.Context, dispatchID string) ([]field.GPSPoint, error)
	LatestCloseTime(ctx context.Context, dispatchID string) (*time.Time, error)
}

// Allowances resolves the approved supplier's contractual free allowance.
type Allowances interface {
	GetByID(ctx context.Context, id string) (supplier.Company, error)
}

// Service owns claim submission and dispatcher review.
type Service struct {
	pool       TxBeginner
	repo       Store
	telemetry  Telemetry
	allowances Allowances
	ledger     *audit.Ledger
	emitter    *notify.Emitter
	now        func() time.Time
}

func NewService(pool TxBeginner, repo Store, telemetry Telemetry, allowances Allowances, ledger *audit.Ledger, emitter *notify.Emitter) *Service {
	if ledger == nil {
		ledger = audit.NewLedger()
	}
	if emitter == nil {
		emitter = notify.NewEmitter(nil, nil)
	}
	return &Service{
		pool:       pool,
		repo:       repo,
		telemetry:  telemetry,
		allowances: allowances,
		ledger:     ledger,
		emitter:    emitter,
		now:        time.Now,
	}
}

// WithClock overrides the wall-clock source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit reconciles and upserts the dispatch's cost claim. The dispatch
// status never changes here; closure is the reviewer's call.
func (s *Service) Submit(ctx context.Context, actor auth.User, req SubmitRequest) (Breakdown, error) {
	if req.DispatchID == "" {
		return Breakdown{}, fault.InvalidInput("cost: dispatch id is required")
	}
	if req.ExitValueCents < 0 || req.ExtraKm < 0 || req.ExtraHourMinutes < 0 {
		return Breakdown{}, fault.InvalidInput("cost: declared values cannot be negative")
	}
	for _, line := range req.Reimbursements {
		if line.AmountCents < 0 {
			return Breakdown{}, fault.InvalidInput("cost: reimbursement amounts cannot be negative")
		}
	}

	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Breakdown{}, fmt.Errorf("cost: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.repo.LockDispatch(ctx, tx, req.DispatchID)
	if err != nil {
		return Breakdown{}, err
	}
	if state.Status == "REJECTED" || state.Status == "CLOSED" {
		return Breakdown{}, fault.Newf(fault.KindConflict, "cost: cannot submit claim for %s dispatch", state.Status)
	}
	if state.ApprovedSupplierCompanyID == nil {
		return Breakdown{}, fault.Conflict("cost: dispatch has no approved supplier yet")
	}
	if actor.Role == auth.RoleSupplier {
		if actor.SupplierCompanyID == nil || *actor.SupplierCompanyID != *state.ApprovedSupplierCompanyID {
			return Breakdown{}, ErrNotApprovedSupplier
		}
	}

	trail, err := s.telemetry.TrailForDispatch(ctx, req.DispatchID)
	if err != nil {
		return Breakdown{}, err
	}
	closedAt, err := s.telemetry.LatestCloseTime(ctx, req.DispatchID)
	if err != nil {
		return Breakdown{}, err
	}
	company, err := s.allowances.GetByID(ctx, *state.ApprovedSupplierCompanyID)
	if err != nil {
		return Breakdown{}, err
	}

	points := make([]geo.Point, len(trail))
	for i, p := range trail {
		points[i] = geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}
	}

	outcome := Reconcile(Input{
		DeclaredExtraKm:      req.ExtraKm,
		DeclaredExtraMinutes: req.ExtraHourMinutes,
		Trail:                points,
		FieldStartedAt:       state.FieldStartedAt,
		FieldClosedAt:        closedAt,
		IncludedKm:           company.IncludedKm,
		IncludedMinutes:      company.IncludedMinutes,
		HasEvidence:          len(req.EvidenceAttachmentIDs) > 0,
		Now:                  now,
	})

	breakdown, err := s.repo.Upsert(ctx, tx, req, outcome, actor.ID, now)
	if err != nil {
		return Breakdown{}, err
	}

	if err := s.ledger.Append(ctx, tx, audit.UserEntry(req.DispatchID, actor.ID, "COST_SUBMITTED", map[string]any{
		"validationFlag":   string(outcome.Flag),
		"extraKm":          req.ExtraKm,
		"extraHourMinutes": req.ExtraHourMinutes,
		"exitValueCents":   req.ExitValueCents,
	})); err != nil {
		return Breakdown{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Breakdown{}, fmt.Errorf("cost: commit tx: %w", err)
	}
	return breakdown, nil
}

// Review records the dispatcher's verdict. Review metadata is written
// unconditionally; the dispatch closes only when the claim is approved and
// forceClose holds (the default).
func (s *Service) Review(ctx context.Context, actor auth.User, req ReviewRequest) (Breakdown, error) {
	if err := auth.RequireRole(actor, auth.RoleKovi); err != nil {
		return Breakdown{}, err
	}
	if req.DispatchID == "" {
		return Breakdown{}, fault.InvalidInput("cost: dispatch id is required")
	}
	forceClose := true
	if req.ForceClose != nil {
		forceClose = *req.ForceClose
	}

	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Breakdown{}, fmt.Errorf("cost: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.repo.LockDispatch(ctx, tx, req.DispatchID)
	if err != nil {
		return Breakdown{}, err
	}
	if state.Status == "REJECTED" || state.Status == "CLOSED" {
		return Breakdown{}, fault.Newf(fault.KindConflict, "cost: cannot review claim for %s dispatch", state.Status)
	}

	if _, err := s.repo.LockByDispatch(ctx, tx, req.DispatchID); err != nil {
		if errors.Is(err, ErrNoBreakdown) {
			return Breakdown{}, fault.Conflict("cost: review requires a submitted breakdown")
		}
		return Breakdown{}, err
	}

	if err := s.repo.MarkReviewed(ctx, tx, req.DispatchID, actor.ID, req.Approve, req.ReviewNote, now); err != nil {
		return Breakdown{}, err
	}
	if err := s.ledger.Append(ctx, tx, audit.UserEntry(req.DispatchID, actor.ID, "COST_REVIEWED", map[string]any{
		"approve":    req.Approve,
		"forceClose": forceClose,
	})); err != nil {
		return Breakdown{}, err
	}

	closing := req.Approve && forceClose
	if closing {
		if err := s.repo.CloseDispatch(ctx, tx, req.DispatchID, actor.ID, now); err != nil {
			return Breakdown{}, err
		}
		if err := s.ledger.Append(ctx, tx, audit.UserEntry(req.DispatchID, actor.ID, "DISPATCH_CLOSED", map[string]any{
			"via": "cost_review",
		})); err != nil {
			return Breakdown{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Breakdown{}, fmt.Errorf("cost: commit tx: %w", err)
	}

	if closing {
		s.emitter.StatusChanged(req.DispatchID, state.Status, "CLOSED")
	}

	return s.repo.GetByDispatch(ctx, req.DispatchID)
}

// GetByDispatch returns the dispatch's claim. Dispatch-level visibility is
// the caller's concern; handlers resolve it before reaching here.
func (s *Service) GetByDispatch(ctx context.Context, dispatchID string) (Breakdown, error) {
	return s.repo.GetByDispatch(ctx, dispatchID)
}

var _ Store = (*Repository)(nil)
var _ Telemetry = (*field.Repository)(nil)
