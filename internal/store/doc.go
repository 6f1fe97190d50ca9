// Package store provides SQLite-backed durable storage for rehook instances.
//
// Three tables hold everything a host needs to drive an instance across
// process restarts:
//   - instances: app name, props and the last committed seq
//   - hook_states: one row per live hook, canonical JSON
//   - cycles: append-only log of request/response pairs for trace and replay
//
// # Critical Patterns
//
// Logical time only:
//   - All ordering uses seq INTEGER, NEVER timestamps
//   - Queries include ORDER BY seq ASC or ORDER BY id ASC COLLATE BINARY
//
// Atomic commit:
//   - Commit applies a delta, appends the cycle row and advances seq in one
//     transaction
//   - The seq update is conditional on the previous value, so two writers
//     racing on the same instance cannot both win (ErrSeqConflict)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
