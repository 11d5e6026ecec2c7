package cost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dispatchflow/auth"
	"dispatchflow/fault"
	"dispatchflow/field"
	"dispatchflow/notify"
	"dispatchflow/supplier"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func kovi() auth.User {
	return auth.User{ID: "user-kovi", Role: auth.RoleKovi, IsActive: true}
}

func approvedSupplier(companyID string) auth.User {
	return auth.User{ID: "user-sup", Role: auth.RoleSupplier, SupplierCompanyID: &companyID, IsActive: true}
}

func approvedState() DispatchState {
	sup := "sup-1"
	started := fixedNow.Add(-2 * time.Hour)
	return DispatchState{ID: "d1", Status: "CLOSE_REQUESTED", ApprovedSupplierCompanyID: &sup, FieldStartedAt: &started}
}

func newTestService(store *fakeStore, rec *notify.Recorder) (*Service, *fakePool) {
	pool := &fakePool{}
	var emitter *notify.Emitter
	if rec != nil {
		emitter = notify.NewEmitter(rec, nil)
	}
	svc := NewService(pool, store, &fakeTelemetry{}, &fakeAllowances{}, nil, emitter).
		WithClock(func() time.Time { return fixedNow })
	return svc, pool
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newTestService(&fakeStore{state: approvedState()}, nil)

	_, err := svc.Submit(context.Background(), kovi(), SubmitRequest{})
	if !fault.IsKind(err, fault.KindInvalidInput) {
		t.Fatalf("expected InvalidInput for missing dispatch id, got %v", err)
	}

	_, err = svc.Submit(context.Background(), kovi(), SubmitRequest{DispatchID: "d1", ExtraKm: -1})
	if !fault.IsKind(err, fault.KindInvalidInput) {
		t.Fatalf("expected InvalidInput for negative extraKm, got %v", err)
	}
}

func TestSubmit_DispatchPreconditions(t *testing.T) {
	t.Run("terminal dispatch", func(t *testing.T) {
		for _, status := range []string{"REJECTED", "CLOSED"} {
			state := approvedState()
			state.Status = status
			svc, pool := newTestService(&fakeStore{state: state}, nil)
			_, err := svc.Submit(context.Background(), kovi(), SubmitRequest{DispatchID: "d1"})
			if !fault.IsKind(err, fault.KindConflict) {
				t.Fatalf("status %s: expected Conflict, got %v", status, err)
			}
			if pool.tx.committed {
				t.Errorf("status %s: expected rollback", status)
			}
		}
	})

	t.Run("no approved supplier", func(t *testing.T) {
		svc, _ := newTestService(&fakeStore{state: DispatchState{ID: "d1", Status: "QUOTING"}}, nil)
		_, err := svc.Submit(context.Background(), kovi(), SubmitRequest{DispatchID: "d1"})
		if !fault.IsKind(err, fault.KindConflict) {
			t.Fatalf("expected Conflict, got %v", err)
		}
	})

	t.Run("wrong supplier company", func(t *testing.T) {
		svc, _ := newTestService(&fakeStore{state: approvedState()}, nil)
		_, err := svc.Submit(context.Background(), approvedSupplier("sup-other"), SubmitRequest{DispatchID: "d1"})
		if !errors.Is(err, ErrNotApprovedSupplier) {
			t.Fatalf("expected ErrNotApprovedSupplier, got %v", err)
		}
	})
}

func TestSubmit_ReconcilesAndUpserts(t *testing.T) {
	store := &fakeStore{state: approvedState()}
	svc, pool := newTestService(store, nil)

	b, err := svc.Submit(context.Background(), approvedSupplier("sup-1"), SubmitRequest{
		DispatchID:     "d1",
		ExitValueCents: 15000,
		ExtraKm:        10,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// No trail and no evidence while 10 extra km are declared.
	if store.upserted.Flag != FlagMissingEvidence {
		t.Errorf("expected MISSING_EVIDENCE outcome, got %s", store.upserted.Flag)
	}
	if b.DispatchID != "d1" {
		t.Errorf("unexpected breakdown %v", b)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if store.closed {
		t.Errorf("submission must never change dispatch status")
	}
}

func TestReview_Preconditions(t *testing.T) {
	t.Run("requires dispatcher role", func(t *testing.T) {
		svc, _ := newTestService(&fakeStore{state: approvedState(), hasBreakdown: true}, nil)
		_, err := svc.Review(context.Background(), approvedSupplier("sup-1"), ReviewRequest{DispatchID: "d1", Approve: true})
		if !fault.IsKind(err, fault.KindForbidden) {
			t.Fatalf("expected Forbidden, got %v", err)
		}
	})

	t.Run("terminal dispatch", func(t *testing.T) {
		state := approvedState()
		state.Status = "CLOSED"
		svc, _ := newTestService(&fakeStore{state: state, hasBreakdown: true}, nil)
		_, err := svc.Review(context.Background(), kovi(), ReviewRequest{DispatchID: "d1", Approve: true})
		if !fault.IsKind(err, fault.KindConflict) {
			t.Fatalf("expected Conflict, got %v", err)
		}
	})

	t.Run("no breakdown yet", func(t *testing.T) {
		svc, pool := newTestService(&fakeStore{state: approvedState()}, nil)
		_, err := svc.Review(context.Background(), kovi(), ReviewRequest{DispatchID: "d1", Approve: true})
		if !fault.IsKind(err, fault.KindConflict) {
			t.Fatalf("expected Conflict, got %v", err)
		}
		if pool.tx.committed {
			t.Errorf("expected rollback")
		}
	})
}

func TestReview_ApproveDefaultsToClose(t *testing.T) {
	store := &fakeStore{state: approvedState(), hasBreakdown: true}
	rec := &notify.Recorder{}
	svc, pool := newTestService(store, rec)

	_, err := svc.Review(context.Background(), kovi(), ReviewRequest{DispatchID: "d1", Approve: true, ReviewNote: "all good"})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !store.reviewed {
		t.Errorf("expected review metadata write")
	}
	if !store.closed {
		t.Errorf("approve with default forceClose must close the dispatch")
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	changed := rec.ByEvent(notify.EventStatusChanged)
	if len(changed) != 1 || changed[0].Payload["to"] != "CLOSED" {
		t.Errorf("expected statusChanged to CLOSED, got %v", changed)
	}
}

func TestReview_ApproveWithoutClose(t *testing.T) {
	store := &fakeStore{state: approvedState(), hasBreakdown: true}
	rec := &notify.Recorder{}
	svc, _ := newTestService(store, rec)

	noClose := false
	_, err := svc.Review(context.Background(), kovi(), ReviewRequest{DispatchID: "d1", Approve: true, ForceClose: &noClose})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if store.closed {
		t.Errorf("forceClose=false must not close the dispatch")
	}
	if len(rec.Facts) != 0 {
		t.Errorf("no status change, no facts expected, got %v", rec.Facts)
	}
}

func TestReview_RejectNeverChangesStatus(t *testing.T) {
	store := &fakeStore{state: approvedState(), hasBreakdown: true}
	rec := &notify.Recorder{}
	svc, pool := newTestService(store, rec)

	_, err := svc.Review(context.Background(), kovi(), ReviewRequest{DispatchID: "d1", Approve: false, ReviewNote: "mileage off"})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !store.reviewed {
		t.Errorf("review metadata must be recorded even on reject")
	}
	if store.closed {
		t.Errorf("reject must never change dispatch status")
	}
	if !pool.tx.committed {
		t.Errorf("the reject review itself must still commit")
	}
	if len(rec.Facts) != 0 {
		t.Errorf("no facts expected on reject, got %v", rec.Facts)
	}
}

type fakeStore struct {
	state        DispatchState
	hasBreakdown bool

	upserted Outcome
	reviewed bool
	closed   bool
}

func (f *fakeStore) LockDispatch(ctx context.Context, tx pgx.Tx, dispatchID string) (DispatchState, error) {
	if f.state.ID == "" {
		return DispatchState{}, fault.NotFound("cost: dispatch not found")
	}
	return f.state, nil
}

func (f *fakeStore) Upsert(ctx context.Context, tx pgx.Tx, req SubmitRequest, outcome Outcome, submittedByID string, at time.Time) (Breakdown, error) {
	f.upserted = outcome
	f.hasBreakdown = true
	var notes *string
	if outcome.Notes != "" {
		notes = &outcome.Notes
	}
	return Breakdown{
		ID:                "cb1",
		DispatchID:        req.DispatchID,
		ExitValueCents:    req.ExitValueCents,
		ExtraKm:           req.ExtraKm,
		ExtraHourMinutes:  req.ExtraHourMinutes,
		MeasuredKm:        outcome.MeasuredKm,
		MeasuredMinutes:   outcome.MeasuredMinutes,
		ValidationFlag:    outcome.Flag,
		ValidationNotes:   notes,
		SubmittedByUserID: submittedByID,
		SubmittedAt:       at,
	}, nil
}

func (f *fakeStore) LockByDispatch(ctx context.Context, tx pgx.Tx, dispatchID string) (Breakdown, error) {
	if !f.hasBreakdown {
		return Breakdown{}, ErrNoBreakdown
	}
	return Breakdown{ID: "cb1", DispatchID: dispatchID}, nil
}

func (f *fakeStore) MarkReviewed(ctx context.Context, tx pgx.Tx, dispatchID, reviewedByID string, approve bool, note string, at time.Time) error {
	f.reviewed = true
	return nil
}

func (f *fakeStore) CloseDispatch(ctx context.Context, tx pgx.Tx, dispatchID, closedByID string, at time.Time) error {
	f.closed = true
	return nil
}

func (f *fakeStore) GetByDispatch(ctx context.Context, dispatchID string) (Breakdown, error) {
	return Breakdown{ID: "cb1", DispatchID: dispatchID}, nil
}

type fakeTelemetry struct {
	trail    []field.GPSPoint
	closedAt *time.Time
}

func (f *fakeTelemetry) TrailForDispatch(ctx context.Context, dispatchID string) ([]field.GPSPoint, error) {
	return f.trail, nil
}

func (f *fakeTelemetry) LatestCloseTime(ctx context.Context, dispatchID string) (*time.Time, error) {
	return f.closedAt, nil
}

type fakeAllowances struct{}

func (f *fakeAllowances) GetByID(ctx context.Context, id string) (supplier.Company, error) {
	return supplier.Company{ID: id, LegalName: "Acme Towing", IncludedKm: 20, IncludedMinutes: 60, IsActive: true}, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
