// Package worker runs the claim-resolve-identify-record loop of one worker
// process.
//
// A worker owns exactly one identification service instance. It claims
// tickets from the shared dispenser until none remain, resolves each job's
// source and source map from the shared object store, optionally answers
// from the request cache, and appends exactly one record per job to the
// result sink. Individual job failures become error records; only a missing
// object (dataset and archive out of step), a service that never becomes
// ready, or an exhausted restart budget stop the worker.
package worker
