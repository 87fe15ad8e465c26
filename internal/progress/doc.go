// Package progress reports how far a run has got by sampling the ticket
// dispenser.
//
// On a terminal the monitor drives a progress bar; otherwise it emits
// bucketed log lines through logging.ProgressSampler. Polling ends when the
// dispenser is exhausted, when every worker has exited, or when the context
// is cancelled.
package progress
