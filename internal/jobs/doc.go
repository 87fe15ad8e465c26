// Package jobs turns crawl documents into the deduplicated set of analysis
// jobs for a run.
//
// A job is the pair (source key, source map key); the domain a script was
// found on does not contribute to its identity. Extraction runs one
// goroutine per dataset file (bounded by the worker count) and unions the
// per-file sets.
package jobs
