// Package services defines shared utilities consumed by the coordinator, the
// workers and the identification service integration.
//
// Key responsibilities:
//   - Context helpers that stamp worker indexes, tickets, job identifiers and
//     run identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     fatal (setup, job resolution, service unavailable or crashing) or as a
//     recorded per-job outcome.
//
// Use these helpers when wiring new components so failure handling and
// observability stay uniform across processes.
package services
