// Package store persists suite run outcomes in SQLite.
//
// Only verdicts are stored: one row per run and one row per check, with the
// check's properties, errors and details as JSON text. Step traces and frames
// are never written.
//
// # Ordering
//
// Runs are numbered by a seq column assigned at write time. Listings order
// by seq only; created_at is informational.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
