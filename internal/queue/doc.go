// Package queue persists pipeline jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, stale-job recovery, and stage transitions. A job records its
// source reference, resolved content key, stage, progress, artifact pointers,
// and descriptive metadata so the scheduler can resume or deduplicate work
// without additional state.
//
// The database is treated as the single source of truth for recovery. Every
// write is a single-row (or single-statement) update so concurrent job
// executions never contend on a global lock; SQLITE_BUSY is retried with a
// short backoff. Schema changes bump the version in schema.go; users clear the
// database to adopt the new schema.
package queue
