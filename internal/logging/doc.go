// Package logging assembles structured zap loggers and field helpers used
// across recap services.
//
// It owns the configurable console/JSON encoders, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with job IDs, stages, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled zap setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
