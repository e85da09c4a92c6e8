// Package store provides a SQLite-backed archive of binary traces.
//
// Each archived run keeps the exact trace bytes alongside its decoded events:
//   - runs: one row per distinct trace, with its header counts
//   - events: one row per decoded record, keyed by (run_id, seq)
//
// # Invariants
//
// Content addressing: a run's content_hash is SHA-256 over the trace bytes
// with domain separation. Saving the same bytes twice returns the existing
// run instead of inserting a second one.
//
// Deterministic reads: every query orders by seq ASC. Run seq is assigned at
// insert time; event seq is the record's position in the trace.
//
// Only valid traces are archived: SaveRun decodes before writing and rejects
// anything the decoder rejects.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
