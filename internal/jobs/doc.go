// Package jobs implements a cooperative, time-ordered job queue.
//
// The queue replaces a "poll everything every iteration" main loop:
//   - owners create Jobs (period + handler) and keep them alive
//   - the queue orders scheduled jobs by absolute due-time
//   - one driving call per loop iteration (Loop/Drive) fires every due job
//     and re-queues repeating jobs relative to the dispatch cutoff
//
// The queue is single-threaded by contract. It holds no locks; every call must
// come from the goroutine that drives Loop (see internal/runloop).
package jobs
