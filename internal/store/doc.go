// Package store provides SQLite-backed durable storage for gridtrace
// trace history.
//
// The store implements an append-only history log with:
//   - Sessions: the explicit session/credential contexts workflows run under
//   - Trace Points: committed start/barrier selections
//   - Trace Runs: submitted traces with their surfaced outcome
//   - Run Layers: per-layer element counts of each run's result
//
// # Critical Patterns
//
// Content-Addressed Identity
//   - Point and run IDs come from internal/network hash functions
//     (canonical JSON, SHA-256 with domain separation)
//   - INSERT ... ON CONFLICT DO NOTHING makes every write idempotent, so
//     re-recording the same history is harmless
//
// Logical Time
//   - All ordering uses seq INTEGER (the workflow's logical clock), never
//     wall-clock timestamps
//
// Deterministic Query Results
//   - All reads order by: seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
