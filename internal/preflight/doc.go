// Package preflight validates a run before any worker is spawned.
//
// Every failed check is a setup failure: the coordinator prints the results
// and exits non-zero without touching the output file. Checks cover the run
// and log directories, each input file, whether the archive fits in physical
// memory with the configured headroom, and whether the identification
// service command can be found.
package preflight
