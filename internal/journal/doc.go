// Package journal provides SQLite-backed storage for ripple run records.
//
// The journal is an append-only log with:
//   - Drains: one row per top-level drain (id, starting seq, step count, error)
//   - Runs: one row per unit dispatch (tier, trigger provenance, outcome)
//
// It implements engine.Recorder, so passing a *Journal to engine.WithRecorder
// journals every drain. Queues themselves are never persisted; the journal
// records what ran, not what was pending.
//
// # Ordering
//
// All ordering uses the seq column (the engine's logical clock), never
// timestamps. Every list query ends in ORDER BY seq ASC, id ASC COLLATE
// BINARY so results are identical across reads.
//
// # Idempotency
//
// Run ids are content-addressed (ir.RunID) and inserts use ON CONFLICT DO
// NOTHING, so re-recording the same run or drain is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package journal
