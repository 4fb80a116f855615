package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

// Run is a stored run without its outcomes and trace.
type Run struct {
	ID        string            `json:"run_id"`
	Scenario  string            `json:"scenario"`
	Mode      variant.Mode      `json:"mode"`
	Seed      uint64            `json:"seed"`
	Verdict   harness.Verdict   `json:"verdict"`
	Reason    string            `json:"reason,omitempty"`
	Invariant string            `json:"invariant"`
	TimedOut  bool              `json:"timed_out"`
	Params    map[string]string `json:"params,omitempty"`
	State     map[string]any    `json:"state,omitempty"`
	FaultCode string            `json:"fault_code,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Elapsed   time.Duration     `json:"elapsed_ns"`
}

// Filter narrows ListRuns. Zero values match everything.
type Filter struct {
	Scenario string
	Verdict  harness.Verdict
	Limit    int
}

const runColumns = `id, scenario, mode, seed, verdict, reason, invariant, timed_out, params, state, fault_code, started_at, elapsed_ns`

// ListRuns returns stored runs, newest first (started_at DESC, id ASC).
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRuns(ctx context.Context, f Filter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1 = 1`
	var args []any
	if f.Scenario != "" {
		query += ` AND scenario = ?`
		args = append(args, f.Scenario)
	}
	if f.Verdict != "" {
		query += ` AND verdict = ?`
		args = append(args, string(f.Verdict))
	}
	query += ` ORDER BY started_at DESC, id COLLATE BINARY ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ReadOutcomes returns a run's actor outcomes in the order the actors were
// declared.
func (s *Store) ReadOutcomes(ctx context.Context, runID string) ([]harness.ActorOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT actor, role, status, reason, last_step, elapsed_ns
		FROM actor_outcomes
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := []harness.ActorOutcome{}
	for rows.Next() {
		var a harness.ActorOutcome
		var status string
		var elapsed int64
		if err := rows.Scan(&a.Actor, &a.Role, &status, &a.Reason, &a.LastStep, &elapsed); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		a.Status = harness.Status(status)
		a.Elapsed = time.Duration(elapsed)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

// ReadTrace returns a run's trace events ordered by seq.
func (s *Store) ReadTrace(ctx context.Context, runID string) ([]trace.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, actor, message, offset_ns
		FROM trace_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	events := []trace.Event{}
	for rows.Next() {
		var e trace.Event
		var offset int64
		if err := rows.Scan(&e.Seq, &e.Actor, &e.Message, &offset); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		e.Offset = time.Duration(offset)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	return events, nil
}

// VerdictCounts tallies stored verdicts for a scenario and mode.
func (s *Store) VerdictCounts(ctx context.Context, scenario string, mode variant.Mode) (map[harness.Verdict]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT verdict, COUNT(*)
		FROM runs
		WHERE scenario = ? AND mode = ?
		GROUP BY verdict
		ORDER BY verdict COLLATE BINARY ASC
	`, scenario, string(mode))
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	counts := make(map[harness.Verdict]int)
	for rows.Next() {
		var v string
		var n int
		if err := rows.Scan(&v, &n); err != nil {
			return nil, fmt.Errorf("scan verdict count: %w", err)
		}
		counts[harness.Verdict(v)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return counts, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var mode, verdict, params, state, started string
	var seed, elapsed int64
	if err := row.Scan(
		&r.ID, &r.Scenario, &mode, &seed, &verdict, &r.Reason, &r.Invariant,
		&r.TimedOut, &params, &state, &r.FaultCode, &started, &elapsed,
	); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	if r.Params, err = unmarshalParams(params); err != nil {
		return Run{}, err
	}
	if r.State, err = unmarshalState(state); err != nil {
		return Run{}, err
	}
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	r.Mode = variant.Mode(mode)
	r.Verdict = harness.Verdict(verdict)
	r.Seed = uint64(seed)
	r.Elapsed = time.Duration(elapsed)
	return r, nil
}
