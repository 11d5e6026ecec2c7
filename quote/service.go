package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dispatchflow/audit"
	"dispatchflow/auth"
	"dispatchflow/fault"
)

var (
	// ErrWindowElapsed signals the quote's submission window passed; the
	// quote has been flipped to EXPIRED.
	ErrWindowElapsed = fault.Expired("quote: submission window elapsed")
	// ErrNotOwnQuote signals a supplier touching another company's quote.
	ErrNotOwnQuote = fault.Forbidden("quote: quote belongs to another supplier company")
)

// DefaultSubmitWindow bounds how long a supplier has to submit a bid,
// measured from quote creation.
const DefaultSubmitWindow = 120 * time.Minute

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	LockForSubmit(ctx context.Context, tx pgx.Tx, quoteID string) (LockedQuote, error)
	MarkSubmitted(ctx context.Context, tx pgx.Tx, quoteID string, etaMinutes int, note *string, at time.Time) error
	MarkExpired(ctx context.Context, tx pgx.Tx, quoteID string) error
	GetByID(ctx context.Context, id string) (Quote, error)
	ListByDispatch(ctx context.Context, dispatchID string) ([]Quote, error)
}

// Service owns supplier-side quote operations.
type Service struct {
	pool   TxBeginner
	repo   Store
	ledger *audit.Ledger
	window time.Duration
	now    func() time.Time
}

func NewService(pool TxBeginner, repo Store, ledger *audit.Ledger) *Service {
	if ledger == nil {
		ledger = audit.NewLedger()
	}
	return &Service{
		pool:   pool,
		repo:   repo,
		ledger: ledger,
		window: DefaultSubmitWindow,
		now:    time.Now,
	}
}

// WithWindow overrides the submission window.
func (s *Service) WithWindow(window time.Duration) *Service {
	if window > 0 {
		s.window = window
	}
	return s
}

// WithClock overrides the wall-clock source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit records a supplier's bid on a PENDING quote. A quote older than the
// submission window is flipped to EXPIRED and the submission fails with
// Expired; the expiry check and the submission timestamp use the same
// wall-clock read.
func (s *Service) Submit(ctx context.Context, actor auth.User, req SubmitRequest) (Quote, error) {
	if req.QuoteID == "" {
		return Quote{}, fault.InvalidInput("quote: quote id is required")
	}
	if req.EtaMinutes < 1 || req.EtaMinutes > 600 {
		return Quote{}, fault.InvalidInput("quote: eta must be between 1 and 600 minutes")
	}
	if actor.SupplierCompanyID == nil {
		return Quote{}, fault.Forbidden("quote: caller has no supplier company affiliation")
	}

	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.LockForSubmit(ctx, tx, req.QuoteID)
	if err != nil {
		return Quote{}, err
	}
	if locked.SupplierCompanyID != *actor.SupplierCompanyID {
		return Quote{}, ErrNotOwnQuote
	}

	if locked.Status == StatusPending && now.Sub(locked.CreatedAt) > s.window {
		// The flip commits even though the submission fails, so the lazy
		// expiry is observable to later readers.
		if err := s.repo.MarkExpired(ctx, tx, req.QuoteID); err != nil {
			return Quote{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Quote{}, fmt.Errorf("quote: commit expiry: %w", err)
		}
		return Quote{}, ErrWindowElapsed
	}

	if locked.Status != StatusPending {
		return Quote{}, fault.Newf(fault.KindConflict, "quote: cannot submit in status %s", locked.Status)
	}
	if locked.DispatchStatus != "QUOTING" {
		return Quote{}, fault.Newf(fault.KindConflict, "quote: dispatch is %s, no longer quoting", locked.DispatchStatus)
	}

	if err := s.repo.MarkSubmitted(ctx, tx, req.QuoteID, req.EtaMinutes, req.SupplierNote, now); err != nil {
		return Quote{}, err
	}
	if err := s.ledger.Append(ctx, tx, audit.UserEntry(locked.DispatchID, actor.ID, "QUOTE_SUBMITTED", map[string]any{
		"quoteId":           req.QuoteID,
		"supplierCompanyId": locked.SupplierCompanyID,
		"etaMinutes":        req.EtaMinutes,
	})); err != nil {
		return Quote{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Quote{}, fmt.Errorf("quote: commit tx: %w", err)
	}

	return s.repo.GetByID(ctx, req.QuoteID)
}

// ListByDispatch returns the quotes visible to the actor under a dispatch.
// Suppliers see only their own company's quote.
func (s *Service) ListByDispatch(ctx context.Context, actor auth.User, dispatchID string) ([]Quote, error) {
	quotes, err := s.repo.ListByDispatch(ctx, dispatchID)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleSupplier {
		return quotes, nil
	}
	if actor.SupplierCompanyID == nil {
		return nil, fault.Forbidden("quote: caller has no supplier company affiliation")
	}
	own := make([]Quote, 0, 1)
	for _, q := range quotes {
		if q.SupplierCompanyID == *actor.SupplierCompanyID {
			own = append(own, q)
		}
	}
	return own, nil
}

var _ Store = (*Repository)(nil)
