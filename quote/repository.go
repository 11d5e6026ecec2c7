package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchflow/fault"
)

// ErrNotFound signals the quote id does not resolve.
var ErrNotFound = fault.NotFound("quote: not found")

const quoteColumns = `
id, dispatch_id::text, supplier_company_id::text, status,
eta_minutes, supplier_note, submitted_at, created_at`

// Repository owns SQL access for quotes. Submission writes take the caller's
// transaction.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LockedQuote is the submission-relevant state read under FOR UPDATE,
// together with the owning dispatch's status.
type LockedQuote struct {
	ID                string
	DispatchID        string
	SupplierCompanyID string
	Status            Status
	CreatedAt         time.Time
	DispatchStatus    string
}

// LockForSubmit reads the quote and its dispatch status holding a row lock
// on the quote for the rest of the transaction.
func (r *Repository) LockForSubmit(ctx context.Context, tx pgx.Tx, quoteID string) (LockedQuote, error) {
	// Lock the quote row only; the dispatch status read rides along without
	// taking the dispatch lock so submissions on sibling quotes don't
	// serialize against each other.
	const q = `
SELECT q.id, q.dispatch_id::text, q.supplier_company_id::text, q.status, q.created_at,
       (SELECT d.status FROM dispatches d WHERE d.id = q.dispatch_id)
FROM quotes q
WHERE q.id = $1
FOR UPDATE OF q
`
	var lq LockedQuote
	err := tx.QueryRow(ctx, q, quoteID).Scan(&lq.ID, &lq.DispatchID, &lq.SupplierCompanyID, &lq.Status, &lq.CreatedAt, &lq.DispatchStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockedQuote{}, ErrNotFound
		}
		return LockedQuote{}, fmt.Errorf("quote: lock for submit: %w", err)
	}
	return lq, nil
}

// MarkSubmitted records the supplier's bid.
func (r *Repository) MarkSubmitted(ctx context.Context, tx pgx.Tx, quoteID string, etaMinutes int, note *string, at time.Time) error {
	const q = `
UPDATE quotes
SET status = 'SUBMITTED', eta_minutes = $2, supplier_note = $3, submitted_at = $4
WHERE id = $1
`
	if _, err := tx.Exec(ctx, q, quoteID, etaMinutes, note, at); err != nil {
		return fmt.Errorf("quote: mark submitted: %w", err)
	}
	return nil
}

// MarkExpired retires a quote whose submission window elapsed.
func (r *Repository) MarkExpired(ctx context.Context, tx pgx.Tx, quoteID string) error {
	if _, err := tx.Exec(ctx, `UPDATE quotes SET status = 'EXPIRED' WHERE id = $1`, quoteID); err != nil {
		return fmt.Errorf("quote: mark expired: %w", err)
	}
	return nil
}

// GetByID fetches one quote.
func (r *Repository) GetByID(ctx context.Context, id string) (Quote, error) {
	q := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`
	var out Quote
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&out.ID, &out.DispatchID, &out.SupplierCompanyID, &out.Status,
		&out.EtaMinutes, &out.SupplierNote, &out.SubmittedAt, &out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrNotFound
		}
		return Quote{}, fmt.Errorf("quote: query by id: %w", err)
	}
	return out, nil
}

// ListByDispatch returns every quote under a dispatch in creation order.
func (r *Repository) ListByDispatch(ctx context.Context, dispatchID string) ([]Quote, error) {
	q := `SELECT ` + quoteColumns + ` FROM quotes WHERE dispatch_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("quote: list by dispatch: %w", err)
	}
	defer rows.Close()

	out := make([]Quote, 0, 8)
	for rows.Next() {
		var item Quote
		if err := rows.Scan(
			&item.ID, &item.DispatchID, &item.SupplierCompanyID, &item.Status,
			&item.EtaMinutes, &item.SupplierNote, &item.SubmittedAt, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("quote: scan: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quote: iterate: %w", err)
	}
	return out, nil
}
