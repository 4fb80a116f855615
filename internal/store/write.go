package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/racelab/internal/harness"
)

// WriteRun inserts a finished run with its actor outcomes and trace.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - writing the same run ID
// twice is silently ignored and the first copy is kept.
//
// Everything is written in one transaction, so a run is either stored
// completely or not at all.
func (s *Store) WriteRun(ctx context.Context, res *harness.Result) error {
	params, err := marshalParams(res.Params)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	state, err := marshalState(res.Outcome.State)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	var faultCode string
	if res.Fault != nil {
		faultCode = string(res.Fault.Code)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after Commit

	r, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, scenario, mode, seed, verdict, reason, invariant, timed_out, params, state, fault_code, started_at, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		res.RunID,
		res.Scenario,
		string(res.Mode),
		int64(res.Seed),
		string(res.Verdict),
		normalize(res.Reason),
		normalize(res.Invariant),
		res.TimedOut,
		params,
		state,
		faultCode,
		res.StartedAt.UTC().Format(time.RFC3339Nano),
		int64(res.Elapsed),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if n, err := r.RowsAffected(); err == nil && n == 0 {
		return tx.Commit()
	}

	if err := writeOutcomes(ctx, tx, res); err != nil {
		return err
	}
	if err := writeTrace(ctx, tx, res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}

func writeOutcomes(ctx context.Context, tx *sql.Tx, res *harness.Result) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO actor_outcomes
		(run_id, actor, role, status, reason, last_step, elapsed_ns, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write outcomes: %w", err)
	}
	defer stmt.Close()

	for i, a := range res.Outcome.Actors {
		if _, err := stmt.ExecContext(ctx,
			res.RunID, a.Actor, a.Role, string(a.Status), normalize(a.Reason), a.LastStep, int64(a.Elapsed), i,
		); err != nil {
			return fmt.Errorf("write outcome for %s: %w", a.Actor, err)
		}
	}
	return nil
}

func writeTrace(ctx context.Context, tx *sql.Tx, res *harness.Result) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_events
		(run_id, seq, actor, message, offset_ns)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	defer stmt.Close()

	for _, e := range res.Trace {
		if _, err := stmt.ExecContext(ctx, res.RunID, e.Seq, e.Actor, normalize(e.Message), int64(e.Offset)); err != nil {
			return fmt.Errorf("write trace event %d: %w", e.Seq, err)
		}
	}
	return nil
}
