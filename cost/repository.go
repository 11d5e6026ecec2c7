package cost

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

// ErrNoBreakdown signals no claim has been submitted for the dispatch.
var ErrNoBreakdown = fault.NotFound("cost: no breakdown for dispatch")

const breakdownColumns = `
id, dispatch_id::text, exit_value_cents, extra_km, extra_hour_minutes,
reimbursements, measured_km, measured_minutes, validation_flag, validation_notes,
submitted_by_user_id::text, submitted_at, reviewed_at, reviewed_by_user_id::text,
review_approved, review_note`

// Repository owns SQL access for cost breakdowns and the review-side
// dispatch writes.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanBreakdown(row pgx.Row) (Breakdown, error) {
	var (
		b    Breakdown
		body []byte
	)
	err := row.Scan(
		&b.ID, &b.DispatchID, &b.ExitValueCents, &b.ExtraKm, &b.ExtraHourMinutes,
		&body, &b.MeasuredKm, &b.MeasuredMinutes, &b.ValidationFlag, &b.ValidationNotes,
		&b.SubmittedByUserID, &b.SubmittedAt, &b.ReviewedAt, &b.ReviewedByUserID,
		&b.ReviewApproved, &b.ReviewNote,
	)
	if err != nil {
		return Breakdown{}, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &b.Reimbursements); err != nil {
			return Breakdown{}, fmt.Errorf("cost: decode reimbursements: %w", err)
		}
	}
	return b, nil
}

// DispatchState is the review- and submission-relevant dispatch state read
// under FOR UPDATE.
type DispatchState struct {
	ID                        string
	Status                    string
	ApprovedSupplierCompanyID *string
	FieldStartedAt            *time.Time
}

// LockDispatch reads the dispatch state holding a row lock.
func (r *Repository) LockDispatch(ctx context.Context, tx pgx.Tx, dispatchID string) (DispatchState, error) {
	const q = `
SELECT id, status, approved_supplier_company_id::text, field_started_at
FROM dispatches
WHERE id = $1
FOR UPDATE
`
	var d DispatchState
	if err := tx.QueryRow(ctx, q, dispatchID).Scan(&d.ID, &d.Status, &d.ApprovedSupplierCompanyID, &d.FieldStartedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DispatchState{}, fault.NotFound("cost: dispatch not found")
		}
		return DispatchState{}, fmt.Errorf("cost: lock dispatch: %w", err)
	}
	return d, nil
}

// Upsert writes the dispatch's single breakdown row. Re-submission fully
// replaces declared and derived values and clears any earlier review, so a
// fresh claim always awaits a fresh verdict.
func (r *Repository) Upsert(ctx context.Context, tx pgx.Tx, req SubmitRequest, outcome Outcome, submittedByID string, at time.Time) (Breakdown, error) {
	reimb := req.Reimbursements
	if reimb == nil {
		reimb = []Reimbursement{}
	}
	body, err := json.Marshal(reimb)
	if err != nil {
		return Breakdown{}, fmt.Errorf("cost: marshal reimbursements: %w", err)
	}

	var notes *string
	if outcome.Notes != "" {
		notes = &outcome.Notes
	}

	q := `
INSERT INTO cost_breakdowns (
	dispatch_id, exit_value_cents, extra_km, extra_hour_minutes, reimbursements,
	measured_km, measured_minutes, validation_flag, validation_notes,
	submitted_by_user_id, submitted_at
)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11)
ON CONFLICT (dispatch_id) DO UPDATE SET
	exit_value_cents = EXCLUDED.exit_value_cents,
	extra_km = EXCLUDED.extra_km,
	extra_hour_minutes = EXCLUDED.extra_hour_minutes,
	reimbursements = EXCLUDED.reimbursements,
	measured_km = EXCLUDED.measured_km,
	measured_minutes = EXCLUDED.measured_minutes,
	validation_flag = EXCLUDED.validation_flag,
	validation_notes = EXCLUDED.validation_notes,
	submitted_by_user_id = EXCLUDED.submitted_by_user_id,
	submitted_at = EXCLUDED.submitted_at,
	reviewed_at = NULL,
	reviewed_by_user_id = NULL,
	review_approved = NULL,
	review_note = NULL
RETURNING ` + breakdownColumns

	b, err := scanBreakdown(tx.QueryRow(ctx, q,
		req.DispatchID, req.ExitValueCents, req.ExtraKm, req.ExtraHourMinutes, body,
		outcome.MeasuredKm, outcome.MeasuredMinutes, outcome.Flag, notes,
		submittedByID, at,
	))
	if err != nil {
		return Breakdown{}, fmt.Errorf("cost: upsert breakdown: %w", err)
	}
	return b, nil
}

// LockByDispatch reads the breakdown under a row lock for review.
func (r *Repository) LockByDispatch(ctx context.Context, tx pgx.Tx, dispatchID string) (Breakdown, error) {
	q := `SELECT ` + breakdownColumns + ` FROM cost_breakdowns WHERE dispatch_id = $1 FOR UPDATE`
	b, err := scanBreakdown(tx.QueryRow(ctx, q, dispatchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Breakdown{}, ErrNoBreakdown
		}
		return Breakdown{}, fmt.Errorf("cost: lock breakdown: %w", err)
	}
	return b, nil
}

// MarkReviewed records the verdict metadata on the breakdown.
func (r *Repository) MarkReviewed(ctx context.Context, tx pgx.Tx, dispatchID, reviewedByID string, approve bool, note string, at time.Time) error {
	var notePtr *string
	if note != "" {
		notePtr = &note
	}
	const q = `
UPDATE cost_breakdowns
SET reviewed_at = $2, reviewed_by_user_id = $3, review_approved = $4, review_note = $5
WHERE dispatch_id = $1
`
	if _, err := tx.Exec(ctx, q, dispatchID, at, reviewedByID, approve, notePtr); err != nil {
		return fmt.Errorf("cost: mark reviewed: %w", err)
	}
	return nil
}

// CloseDispatch moves the dispatch to CLOSED as part of an approving review.
func (r *Repository) CloseDispatch(ctx context.Context, tx pgx.Tx, dispatchID, closedByID string, at time.Time) error {
	const q = `
UPDATE dispatches
SET status = 'CLOSED', closed_at = $2, closed_by_id = $3, updated_at = $2
WHERE id = $1
`
	if _, err := tx.Exec(ctx, q, dispatchID, at, closedByID); err != nil {
		return fmt.Errorf("cost: close dispatch: %w", err)
	}
	return nil
}

// GetByDispatch fetches the dispatch's breakdown.
func (r *Repository) GetByDispatch(ctx context.Context, dispatchID string) (Breakdown, error) {
	q := `SELECT ` + breakdownColumns + ` FROM cost_breakdowns WHERE dispatch_id = $1`
	b, err := scanBreakdown(r.pool.QueryRow(ctx, q, dispatchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Breakdown{}, ErrNoBreakdown
		}
		return Breakdown{}, fmt.Errorf("cost: query by dispatch: %w", err)
	}
	return b, nil
}
