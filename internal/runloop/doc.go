// Package runloop hosts the single goroutine that owns a jobs.Queue.
//
// The queue is not safe for concurrent use. Runner drives it on a fixed poll
// interval and is the only place queue methods run; other goroutines (config
// reload, signal handling) hand work to it with Post or Call.
package runloop
