package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_winner",
			SQL: `SELECT dispatch_id, COUNT(*) FROM quotes
                  WHERE status = 'ACCEPTED'
                  GROUP BY dispatch_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_approval_consistency",
			SQL: `SELECT id, status FROM dispatches
                  WHERE (approved_quote_id IS NOT NULL)
                    <> (status IN ('APPROVED','IN_TRANSIT','ON_SITE','CLOSE_REQUESTED','CLOSED'))`,
		},
		{
			Name: "O3_no_live_quotes_after_arbitration",
			SQL: `SELECT q.id, q.status, d.status FROM quotes q
                  JOIN dispatches d ON d.id = q.dispatch_id
                  WHERE d.status <> 'QUOTING' AND q.status IN ('PENDING','SUBMITTED')`,
		},
		{
			Name: "O4_approval_audited",
			SQL: `SELECT d.id FROM dispatches d
                  WHERE d.status IN ('APPROVED','IN_TRANSIT','ON_SITE','CLOSE_REQUESTED','CLOSED')
                    AND NOT EXISTS (
                        SELECT 1 FROM audit_events a
                        WHERE a.dispatch_id = d.id AND a.event_type = 'DISPATCH_APPROVED')`,
		},
		{
			Name: "O5_one_claim_per_dispatch",
			SQL: `SELECT dispatch_id, COUNT(*) FROM cost_breakdowns
                  GROUP BY dispatch_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_no_close_capable_sessions",
			SQL:  `SELECT id FROM field_sessions WHERE allow_close`,
		},
		{
			Name: "O7_closed_have_close_time",
			SQL:  `SELECT id FROM dispatches WHERE status = 'CLOSED' AND closed_at IS NULL`,
		},
		{
			Name: "O8_milestone_before_event",
			SQL: `SELECT s.id FROM field_sessions s
                  WHERE s.started_at IS NOT NULL
                    AND NOT EXISTS (
                        SELECT 1 FROM field_events e
                        WHERE e.field_session_id = s.id AND e.type = 'START_TRIP')`,
		},
		{
			Name: "O9_audit_delete_guard",
			SQL: `SELECT 'missing_immutability_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='no_update_audit_events')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
