package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchflow/fault"
)

var (
	// ErrNotFound signals the dispatch id does not resolve.
	ErrNotFound = fault.NotFound("dispatch: not found")
	// ErrQuoteNotFound signals the quote id does not resolve under the dispatch.
	ErrQuoteNotFound = fault.NotFound("dispatch: quote not found")
)

const dispatchColumns = `
id, status, plate, vehicle_model, vehicle_color, vehicle_year,
address, latitude, longitude, driver_name, reason, reason_details,
created_by_id::text, approved_quote_id::text, approved_supplier_company_id::text,
approved_at, approved_by_id::text, rejected_at, rejected_by_id::text, reject_reason,
field_started_at, field_arrived_at, closed_at, closed_by_id::text,
created_at, updated_at`

// Repository owns SQL access for dispatches and the quote rows created by
// dispatch fan-out. Transition writes take the caller's transaction so the
// surrounding locks serialize concurrent commands.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispatch(row rowScanner) (Dispatch, error) {
	var d Dispatch
	err := row.Scan(
		&d.ID, &d.Status, &d.Plate, &d.VehicleModel, &d.VehicleColor, &d.VehicleYear,
		&d.Address, &d.Latitude, &d.Longitude, &d.DriverName, &d.Reason, &d.ReasonDetails,
		&d.CreatedByID, &d.ApprovedQuoteID, &d.ApprovedSupplierCompanyID,
		&d.ApprovedAt, &d.ApprovedByID, &d.RejectedAt, &d.RejectedByID, &d.RejectReason,
		&d.FieldStartedAt, &d.FieldArrivedAt, &d.ClosedAt, &d.ClosedByID,
		&d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}

// Insert creates the dispatch row in QUOTING.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, req CreateRequest, plate, createdByID string) (Dispatch, error) {
	const q = `
INSERT INTO dispatches (
	status, plate, vehicle_model, vehicle_color, vehicle_year,
	address, latitude, longitude, driver_name, reason, reason_details, created_by_id
)
VALUES ('QUOTING', $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + dispatchColumns

	d, err := scanDispatch(tx.QueryRow(ctx, q,
		plate, req.VehicleModel, req.VehicleColor, req.VehicleYear,
		req.Address, req.Latitude, req.Longitude, req.DriverName,
		req.Reason, req.ReasonDetails, createdByID,
	))
	if err != nil {
		return Dispatch{}, fmt.Errorf("dispatch: insert: %w", err)
	}
	return d, nil
}

// InsertPendingQuotes fans out one PENDING quote per supplier company and
// returns the created quote ids in supplier order.
func (r *Repository) InsertPendingQuotes(ctx context.Context, tx pgx.Tx, dispatchID string, supplierIDs []string) ([]string, error) {
	ids := make([]string, 0, len(supplierIDs))
	const q = `
INSERT INTO quotes (dispatch_id, supplier_company_id, status)
VALUES ($1, $2, 'PENDING')
RETURNING id
`
	for _, supplierID := range supplierIDs {
		var id string
		if err := tx.QueryRow(ctx, q, dispatchID, supplierID).Scan(&id); err != nil {
			return nil, fmt.Errorf("dispatch: insert pending quote: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LockedDispatch is the slice of dispatch state read under FOR UPDATE.
type LockedDispatch struct {
	ID     string
	Status Status
}

// LockForUpdate reads the dispatch's transition-relevant state holding a row
// lock for the rest of the transaction.
func (r *Repository) LockForUpdate(ctx context.Context, tx pgx.Tx, dispatchID string) (LockedDispatch, error) {
	const q = `SELECT id, status FROM dispatches WHERE id = $1 FOR UPDATE`
	var d LockedDispatch
	if err := tx.QueryRow(ctx, q, dispatchID).Scan(&d.ID, &d.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockedDispatch{}, ErrNotFound
		}
		return LockedDispatch{}, fmt.Errorf("dispatch: lock dispatch: %w", err)
	}
	return d, nil
}

// LockedQuote is the quote state read under FOR UPDATE during arbitration.
type LockedQuote struct {
	ID                string
	DispatchID        string
	SupplierCompanyID string
	Status            string
}

// LockQuote reads a quote's arbitration-relevant state holding a row lock.
func (r *Repository) LockQuote(ctx context.Context, tx pgx.Tx, quoteID string) (LockedQuote, error) {
	const q = `
SELECT id, dispatch_id::text, supplier_company_id::text, status
FROM quotes
WHERE id = $1
FOR UPDATE
`
	var lq LockedQuote
	if err := tx.QueryRow(ctx, q, quoteID).Scan(&lq.ID, &lq.DispatchID, &lq.SupplierCompanyID, &lq.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockedQuote{}, ErrQuoteNotFound
		}
		return LockedQuote{}, fmt.Errorf("dispatch: lock quote: %w", err)
	}
	return lq, nil
}

// AcceptQuote marks the winner ACCEPTED and every sibling REJECTED,
// including siblings still PENDING.
func (r *Repository) AcceptQuote(ctx context.Context, tx pgx.Tx, dispatchID, quoteID string) error {
	if _, err := tx.Exec(ctx, `UPDATE quotes SET status = 'ACCEPTED' WHERE id = $1`, quoteID); err != nil {
		return fmt.Errorf("dispatch: accept quote: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE quotes SET status = 'REJECTED'
WHERE dispatch_id = $1 AND id <> $2
`, dispatchID, quoteID); err != nil {
		return fmt.Errorf("dispatch: reject sibling quotes: %w", err)
	}
	return nil
}

// MarkApproved records the arbitration outcome on the dispatch row.
func (r *Repository) MarkApproved(ctx context.Context, tx pgx.Tx, dispatchID, quoteID, supplierCompanyID, approvedByID string, at time.Time) error {
	const q = `
UPDATE dispatches
SET status = 'APPROVED',
    approved_quote_id = $2,
    approved_supplier_company_id = $3,
    approved_at = $4,
    approved_by_id = $5,
    updated_at = $4
WHERE id = $1
`
	if _, err := tx.Exec(ctx, q, dispatchID, quoteID, supplierCompanyID, at, approvedByID); err != nil {
		return fmt.Errorf("dispatch: mark approved: %w", err)
	}
	return nil
}

// MarkRejected records a dispatcher rejection and retires every quote still
// open under the dispatch.
func (r *Repository) MarkRejected(ctx context.Context, tx pgx.Tx, dispatchID, reason, rejectedByID string, at time.Time) error {
	const q = `
UPDATE dispatches
SET status = 'REJECTED',
    reject_reason = $2,
    rejected_at = $3,
    rejected_by_id = $4,
    updated_at = $3
WHERE id = $1
`
	if _, err := tx.Exec(ctx, q, dispatchID, reason, at, rejectedByID); err != nil {
		return fmt.Errorf("dispatch: mark rejected: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE quotes SET status = 'REJECTED'
WHERE dispatch_id = $1 AND status IN ('PENDING','SUBMITTED')
`, dispatchID); err != nil {
		return fmt.Errorf("dispatch: retire open quotes: %w", err)
	}
	return nil
}

// GetByID fetches one dispatch.
func (r *Repository) GetByID(ctx context.Context, id string) (Dispatch, error) {
	q := `SELECT ` + dispatchColumns + ` FROM dispatches WHERE id = $1`
	d, err := scanDispatch(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispatch{}, ErrNotFound
		}
		return Dispatch{}, fmt.Errorf("dispatch: query by id: %w", err)
	}
	return d, nil
}

// List returns recent dispatches, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Dispatch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT ` + dispatchColumns + ` FROM dispatches ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("dispatch: list: %w", err)
	}
	defer rows.Close()
	return collectDispatches(rows, limit)
}

// ListForSupplier returns dispatches the supplier company was invited to
// quote on, newest first.
func (r *Repository) ListForSupplier(ctx context.Context, supplierCompanyID string, limit int) ([]Dispatch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `
SELECT ` + dispatchColumns + `
FROM dispatches
WHERE id IN (SELECT dispatch_id FROM quotes WHERE supplier_company_id = $1)
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.pool.Query(ctx, q, supplierCompanyID, limit)
	if err != nil {
		return nil, fmt.Errorf("dispatch: list for supplier: %w", err)
	}
	defer rows.Close()
	return collectDispatches(rows, limit)
}

// SupplierInvited reports whether the company holds a quote on the dispatch.
func (r *Repository) SupplierInvited(ctx context.Context, dispatchID, supplierCompanyID string) (bool, error) {
	var invited bool
	const q = `SELECT EXISTS (SELECT 1 FROM quotes WHERE dispatch_id = $1 AND supplier_company_id = $2)`
	if err := r.pool.QueryRow(ctx, q, dispatchID, supplierCompanyID).Scan(&invited); err != nil {
		return false, fmt.Errorf("dispatch: supplier invited: %w", err)
	}
	return invited, nil
}

func collectDispatches(rows pgx.Rows, capHint int) ([]Dispatch, error) {
	out := make([]Dispatch, 0, capHint)
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("dispatch: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch: iterate: %w", err)
	}
	return out, nil
}
