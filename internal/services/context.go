package services

import "context"

type contextKey string

const (
	workerKey contextKey = "worker"
	ticketKey contextKey = "ticket"
	jobIDKey  contextKey = "job_id"
	runIDKey  contextKey = "run_id"
)

// WithWorker annotates context with the worker index.
func WithWorker(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, workerKey, index)
}

// WorkerFromContext extracts the worker index if present.
func WorkerFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(workerKey).(int)
	return v, ok
}

// WithTicket annotates context with the dispenser ticket being processed.
func WithTicket(ctx context.Context, ticket int64) context.Context {
	return context.WithValue(ctx, ticketKey, ticket)
}

// TicketFromContext extracts the ticket if present.
func TicketFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(ticketKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext returns the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(jobIDKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRunID annotates context with the run identifier shared by the
// coordinator and its workers.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(runIDKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}
