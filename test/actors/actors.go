package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuoteSubmitter flips PENDING quotes on the dispatch to SUBMITTED with a
// random ETA, mimicking suppliers racing to answer a request.
func QuoteSubmitter(ctx context.Context, pool *pgxpool.Pool, dispatchID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var quoteID string
		err = tx.QueryRow(ctx, `SELECT id FROM quotes WHERE dispatch_id=$1 AND status='PENDING' LIMIT 1 FOR UPDATE SKIP LOCKED`, dispatchID).Scan(&quoteID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE quotes SET status='SUBMITTED', eta_minutes=$2, submitted_at=NOW() WHERE id=$1`, quoteID, 15+rand.Intn(120))
			if err == nil {
				_, _ = tx.Exec(ctx, `INSERT INTO audit_events (dispatch_id, actor_type, event_type, payload) VALUES ($1,'SYSTEM','QUOTE_SUBMITTED', jsonb_build_object('quoteId',$2::text))`, dispatchID, quoteID)
				_ = tx.Commit(ctx)
				time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
				continue
			}
		}
		_ = tx.Rollback(ctx)
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Approver races other approvers for the same dispatch: lock the dispatch
// row, accept one SUBMITTED quote and retire the rest. Exactly one approver
// may ever win.
func Approver(ctx context.Context, pool *pgxpool.Pool, dispatchID, approverUserID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		err := tryApprove(ctx, pool, dispatchID, approverUserID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23514") {
				return fmt.Errorf("approver constraint violation: %w", err)
			}
			// lost the race or connection chaos, keep going
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

func tryApprove(ctx context.Context, pool *pgxpool.Pool, dispatchID, approverUserID string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM dispatches WHERE id=$1 FOR UPDATE`, dispatchID).Scan(&status); err != nil {
		return err
	}
	if status != "QUOTING" {
		return pgx.ErrNoRows
	}
	var quoteID, supplierID string
	err = tx.QueryRow(ctx, `SELECT id, supplier_company_id FROM quotes WHERE dispatch_id=$1 AND status='SUBMITTED' LIMIT 1 FOR UPDATE`, dispatchID).Scan(&quoteID, &supplierID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE quotes SET status='ACCEPTED' WHERE id=$1`, quoteID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE quotes SET status='REJECTED' WHERE dispatch_id=$1 AND id<>$2 AND status IN ('PENDING','SUBMITTED')`, dispatchID, quoteID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE dispatches SET status='APPROVED', approved_quote_id=$2, approved_supplier_company_id=$3, approved_at=NOW(), approved_by_id=$4, updated_at=NOW() WHERE id=$1`, dispatchID, quoteID, supplierID, approverUserID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO audit_events (dispatch_id, actor_type, actor_user_id, event_type, payload) VALUES ($1,'USER',$2,'DISPATCH_APPROVED', jsonb_build_object('quoteId',$3::text))`, dispatchID, approverUserID, quoteID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FieldReplayer replays field milestones, including repeats of the same
// milestone. Timestamps are written only once per column but events, audit
// entries and the status write always happen.
func FieldReplayer(ctx context.Context, pool *pgxpool.Pool, sessionID, dispatchID string, stop <-chan struct{}) error {
	type step struct {
		eventType     string
		sessionColumn string
		target        string
	}
	steps := []step{
		{"START_TRIP", "started_at", "IN_TRANSIT"},
		{"ARRIVE_ON_SITE", "arrived_at", "ON_SITE"},
		{"REQUEST_CLOSE", "close_requested_at", "CLOSE_REQUESTED"},
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		st := steps[rand.Intn(len(steps))]
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM dispatches WHERE id=$1 FOR UPDATE`, dispatchID).Scan(&status); err != nil {
			_ = tx.Rollback(ctx)
			continue
		}
		if status == "QUOTING" || status == "REJECTED" || status == "CLOSED" {
			_ = tx.Rollback(ctx)
			time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
			continue
		}
		_, _ = tx.Exec(ctx, fmt.Sprintf(`UPDATE field_sessions SET %s = NOW() WHERE id=$1 AND %s IS NULL`, st.sessionColumn, st.sessionColumn), sessionID)
		_, _ = tx.Exec(ctx, `UPDATE dispatches SET status=$2, updated_at=NOW() WHERE id=$1`, dispatchID, st.target)
		_, _ = tx.Exec(ctx, `INSERT INTO field_events (field_session_id, type) VALUES ($1,$2)`, sessionID, st.eventType)
		_, _ = tx.Exec(ctx, `INSERT INTO audit_events (dispatch_id, actor_type, actor_field_session_id, event_type) VALUES ($1,'FIELD_SESSION',$2,$3)`, dispatchID, sessionID, "FIELD_"+st.eventType)
		_ = tx.Commit(ctx)
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// GPSWriter streams location samples with jittered timestamps, some of them
// out of order.
func GPSWriter(ctx context.Context, pool *pgxpool.Pool, sessionID string, stop <-chan struct{}) error {
	lat, lng := -23.56, -46.65
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		lat += (rand.Float64() - 0.5) * 0.001
		lng += (rand.Float64() - 0.5) * 0.001
		skew := time.Duration(rand.Intn(5000)) * time.Millisecond
		_, _ = pool.Exec(ctx, `INSERT INTO gps_points (field_session_id, latitude, longitude, recorded_at) VALUES ($1,$2,$3,$4)`,
			sessionID, lat, lng, time.Now().Add(-skew))
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// CostSubmitter repeatedly upserts the supplier's cost claim. Every
// resubmission must land on the same single row.
func CostSubmitter(ctx context.Context, pool *pgxpool.Pool, dispatchID, supplierUserID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var status string
		_ = pool.QueryRow(ctx, `SELECT status FROM dispatches WHERE id=$1`, dispatchID).Scan(&status)
		if status != "QUOTING" && status != "REJECTED" && status != "CLOSED" && status != "" {
			_, err := pool.Exec(ctx, `
INSERT INTO cost_breakdowns (dispatch_id, exit_value_cents, extra_km, extra_hour_minutes, validation_flag, submitted_by_user_id)
VALUES ($1, $2, $3, $4, 'NEEDS_REVIEW', $5)
ON CONFLICT (dispatch_id) DO UPDATE SET
    exit_value_cents = EXCLUDED.exit_value_cents,
    extra_km = EXCLUDED.extra_km,
    extra_hour_minutes = EXCLUDED.extra_hour_minutes,
    submitted_at = NOW()`,
				dispatchID, 10000+rand.Intn(50000), rand.Intn(40), rand.Intn(120), supplierUserID)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return fmt.Errorf("cost upsert violated uniqueness: %w", err)
				}
			}
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}
