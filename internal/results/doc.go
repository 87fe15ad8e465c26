// Package results owns the run output: an append-only file of concatenated
// BSON records, one per finished job.
//
// Sink appends records under an exclusive flock so that writers in
// different worker processes never interleave. The ledger helpers read the
// same file back to find finished jobs when a run resumes; they only look at
// the "id" field, so files written by earlier tooling reconcile as well.
package results
