// Package coordinator prepares a run and supervises its worker processes.
//
// Setup happens entirely before the first worker starts: preflight checks,
// the single-run lock, mapping and indexing the archive, extracting jobs,
// reconciling them against the existing output, verifying every job's
// objects exist, and writing the run manifest, ticket counter and config
// snapshot. Only then are workers launched. The coordinator forwards
// cancellation to every worker, samples progress while they run, and
// summarizes the output file once they have all exited.
package coordinator
