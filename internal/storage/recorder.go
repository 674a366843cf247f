package storage

import (
	"context"
	"sync/atomic"
	"time"

	logx "flux/pkg/logx"
)

const DefaultRecorderBuffer = 256

// Recorder writes run history from its own goroutine so the run loop never
// waits on disk. Entries are dropped when the buffer is full.
type Recorder struct {
	store Store
	log   logx.Logger
	ch    chan RunEntry

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder returns a recorder for store. A nil store yields a recorder
// that discards everything.
func NewRecorder(store Store, size int, log logx.Logger) *Recorder {
	if size <= 0 {
		size = DefaultRecorderBuffer
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Recorder{store: store, log: log}
	if store != nil {
		r.ch = make(chan RunEntry, size)
	}
	return r
}

func (r *Recorder) Enabled() bool { return r != nil && r.ch != nil }

// Record queues e without blocking. It returns false if e was dropped.
func (r *Recorder) Record(e RunEntry) bool {
	if !r.Enabled() {
		return false
	}
	select {
	case r.ch <- e:
		return true
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.log.Warn("run history buffer full; dropping entries", logx.Uint64("dropped", r.dropped.Load()))
		}
		return false
	}
}

// Run writes queued entries until ctx is canceled, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.Enabled() {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case e := <-r.ch:
			r.write(ctx, e)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case e := <-r.ch:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e RunEntry) {
	if err := r.store.AppendRun(ctx, e); err != nil {
		if r.failed.Add(1)%100 == 1 {
			r.log.Warn("run history write failed", logx.Job(e.Job), logx.Err(err))
		}
		return
	}
	r.written.Add(1)
}

func (r *Recorder) Written() uint64 { return r.written.Load() }
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }
