// Package daemon coordinates the long-running recap process.
//
// It wires configuration, the job store, and the scheduler into a single
// lifecycle with flock-based locking to prevent multiple instances, writes a
// PID file while processing, and serves the HTTP API. Job submission, queue
// maintenance, and status reporting are exposed as methods so the HTTP API
// and the IPC socket share one implementation.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
