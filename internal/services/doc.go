// Package services defines shared utilities consumed by the pipeline stage
// executors and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let the scheduler
//     decide whether a failure may be retried.
//   - A command runner abstraction that makes external tool invocation
//     testable.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
