// Package identify manages one private instance of the external
// identification service and the HTTP calls made to it.
//
// A Handle spawns the service command in its own process group with PORT set
// to the worker's port, polls GET /alive until it answers, and then serves
// POST requests of the form {"source": ..., "map": ...}. Responses are
// classified as success (2xx), ignored (501) or failed (anything else). When
// a request fails at the transport level and the process has exited, the
// handle restarts it, up to a fixed budget; exhausting the budget is fatal
// for the owning worker.
//
// Lifecycle:
//
//	Spawned -> HealthChecking -> Ready -> Serving <-> Crashed -> Terminated
package identify
