package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"dispatchflow/test/actors"
	"dispatchflow/test/chaos"
	"dispatchflow/test/infra"
	"dispatchflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestDispatchConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// suppliers submitting quotes while dispatchers race to approve one
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.QuoteSubmitter(ctx2, pool, seedData.dispatchID, stop)
		})
		g.Go(func() error {
			return actors.Approver(ctx2, pool, seedData.dispatchID, seedData.koviUserID, stop)
		})
	}

	// field agent replaying milestones, possibly out of order
	g.Go(func() error {
		return actors.FieldReplayer(ctx2, pool, seedData.fieldSessionID, seedData.dispatchID, stop)
	})
	// gps stream with skewed timestamps
	g.Go(func() error { return actors.GPSWriter(ctx2, pool, seedData.fieldSessionID, stop) })
	// supplier resubmitting the cost claim
	g.Go(func() error {
		return actors.CostSubmitter(ctx2, pool, seedData.dispatchID, seedData.supplierUserID, stop)
	})
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, "", stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	koviUserID     string
	supplierUserID string
	supplierA      string
	supplierB      string
	dispatchID     string
	fieldSessionID string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs

	if err := pool.QueryRow(ctx, `INSERT INTO supplier_companies (legal_name, included_km, included_minutes) VALUES ($1, 20, 60) RETURNING id`, fmt.Sprintf("Guincho A %d", rand.Int63())).Scan(&s.supplierA); err != nil {
		t.Fatalf("seed supplier a: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO supplier_companies (legal_name, included_km, included_minutes) VALUES ($1, 30, 90) RETURNING id`, fmt.Sprintf("Guincho B %d", rand.Int63())).Scan(&s.supplierB); err != nil {
		t.Fatalf("seed supplier b: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role) VALUES ($1, 'Stress Dispatcher', 'x', 'KOVI') RETURNING id`, fmt.Sprintf("kovi%d@example.com", rand.Int63())).Scan(&s.koviUserID); err != nil {
		t.Fatalf("seed kovi user: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role, supplier_company_id) VALUES ($1, 'Stress Supplier', 'x', 'SUPPLIER', $2) RETURNING id`, fmt.Sprintf("sup%d@example.com", rand.Int63()), s.supplierA).Scan(&s.supplierUserID); err != nil {
		t.Fatalf("seed supplier user: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO dispatches (status, plate, address, reason, created_by_id) VALUES ('QUOTING', 'STR3S55', 'Av. Paulista 1000', 'BREAKDOWN', $1) RETURNING id`, s.koviUserID).Scan(&s.dispatchID); err != nil {
		t.Fatalf("seed dispatch: %v", err)
	}
	for _, supplier := range []string{s.supplierA, s.supplierB} {
		if _, err := pool.Exec(ctx, `INSERT INTO quotes (dispatch_id, supplier_company_id, status) VALUES ($1, $2, 'PENDING')`, s.dispatchID, supplier); err != nil {
			t.Fatalf("seed quote: %v", err)
		}
	}
	if err := pool.QueryRow(ctx, `INSERT INTO field_sessions (dispatch_id, token_hash, expires_at) VALUES ($1, $2, NOW() + interval '4 hours') RETURNING id`, s.dispatchID, fmt.Sprintf("hash-%d", rand.Int63())).Scan(&s.fieldSessionID); err != nil {
		t.Fatalf("seed field session: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"dispatches", `SELECT id, status, approved_quote_id, updated_at FROM dispatches ORDER BY updated_at DESC LIMIT 20`},
		{"quotes", `SELECT id, dispatch_id, status, eta_minutes, submitted_at FROM quotes ORDER BY created_at DESC LIMIT 50`},
		{"field_events", `SELECT id, field_session_id, type, occurred_at FROM field_events ORDER BY occurred_at DESC LIMIT 50`},
		{"audit_events", `SELECT id, dispatch_id, actor_type, event_type, created_at FROM audit_events ORDER BY id DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
