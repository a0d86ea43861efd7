// Package api defines wire-format types and converters shared by the HTTP
// API and the IPC socket. It translates queue jobs and scheduler status into
// transport-friendly DTOs so clients never depend on internal types.
//
// # Key Types
//
// Job: transport representation of a queue job with progress, artifacts, and
// captured video metadata.
//
// SchedulerStatus: running state, active executions, queue counts, pending
// retries, stage backend health, and pool statistics.
//
// DaemonStatus: scheduler status plus process details and dependency checks.
//
// # Converters
//
// FromJob: queue.Job -> Job with RFC3339 timestamps and priority names.
//
// FromStatusSummary: workflow.StatusSummary -> SchedulerStatus.
//
// DTOs use camelCase JSON tags. Stages and priorities are exposed as
// lowercase strings.
package api
