// Package logging assembles structured slog loggers and formatting helpers used
// by the coordinator and worker processes.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so worker code automatically
// tags log lines with run IDs, worker indexes, tickets and job IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
