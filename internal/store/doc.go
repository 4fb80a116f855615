// Package store provides SQLite-backed history of scenario runs.
//
// Each run is written once, in a single transaction, as:
//   - Runs: one row per run with its verdict, seed and parameters
//   - Actor Outcomes: how each actor finished
//   - Trace Events: the run's trace lines in logical-clock order
//
// Rows are never updated. Replaying a run means starting it again with the
// stored seed and parameters; the stored trace is kept for comparison.
//
// # Ordering
//
// Trace events are ordered by seq, the run's logical clock. Runs are listed
// newest first by started_at, with id as the tie-breaker, so listings are
// stable.
//
// # Text
//
// Messages and reasons are NFC-normalized before they are written, so the
// same trace recorded on two machines compares byte for byte.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
