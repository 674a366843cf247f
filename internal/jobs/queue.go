package jobs

import (
	"sort"
	"time"

	logx "flux/pkg/logx"
)

// DefaultBuffer is the dispatch tolerance: a job due within this window of
// "now" fires on the current pass instead of waiting for the next one.
const DefaultBuffer = 2 * time.Millisecond

// Dispatch describes one fired job. It is passed to the queue observer after
// the handler returned and the job was re-queued (or not).
type Dispatch struct {
	Job      *Job
	Name     string
	Due      uint64
	Cutoff   uint64
	Took     time.Duration
	OneShot  bool
	Requeued bool
	NextDue  uint64
}

// Entry is a scheduled job and its absolute due-time in queue ticks.
type Entry struct {
	Job *Job
	Due uint64
}

type Option func(q *Queue)

// WithClock sets the millisecond source. Defaults to a SystemClock.
func WithClock(c Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.tick = ticker{clock: c}
		}
	}
}

// WithBuffer sets the dispatch tolerance. Negative values are treated as 0.
func WithBuffer(d time.Duration) Option {
	return func(q *Queue) { q.SetBuffer(d) }
}

func WithLogger(log logx.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithObserver installs a hook called after every fired job.
func WithObserver(fn func(Dispatch)) Option {
	return func(q *Queue) { q.observe = fn }
}

// Queue orders jobs by absolute due-time and fires them from Loop.
//
// States: Idle (initial) and Running. Jobs may be added, removed and updated in
// either state; only Running dispatches. Start re-bases every held job to
// now + period so jobs scheduled before the environment was ready don't fire
// against stale timestamps.
type Queue struct {
	tick    ticker
	buffer  uint64
	log     logx.Logger
	observe func(Dispatch)

	entries dueHeap
	index   map[*Job]*entry
	seq     uint64
	running bool

	// Jobs collected by the current pass that have not fired yet.
	dispatching bool
	pending     map[*Job]struct{}
}

func New(opts ...Option) *Queue {
	q := &Queue{
		tick:   ticker{clock: NewSystemClock()},
		buffer: uint64(DefaultBuffer / time.Millisecond),
		index:  map[*Job]*entry{},
	}
	for _, o := range opts {
		o(q)
	}
	if q.log.IsZero() {
		q.log = logx.Nop()
	}
	return q
}

func (q *Queue) SetBuffer(d time.Duration) {
	if d < 0 {
		d = 0
	}
	q.buffer = uint64(d / time.Millisecond)
}

func (q *Queue) Buffer() time.Duration { return time.Duration(q.buffer) * time.Millisecond }

func (q *Queue) SetObserver(fn func(Dispatch)) { q.observe = fn }

// Now reads the clock in queue ticks (milliseconds, wrap-extended).
func (q *Queue) Now() uint64 { return q.tick.now() }

func (q *Queue) Running() bool { return q.running }

// Start switches to Running and re-bases every held job to now + period.
// It is a no-op when already Running.
func (q *Queue) Start() {
	if q.running {
		return
	}
	q.running = true

	held := q.Entries()
	q.entries = nil
	q.index = make(map[*Job]*entry, len(held))
	for _, e := range held {
		q.AddJob(e.Job)
	}
	q.log.Debug("queue started", logx.Int("jobs", len(held)))
}

// Stop switches to Idle. Scheduled jobs are kept.
func (q *Queue) Stop() {
	if !q.running {
		return
	}
	q.running = false
	q.log.Debug("queue stopped", logx.Int("jobs", q.Len()))
}

// AddJob schedules j at now + period. It is a no-op when j is already
// scheduled or its period is 0.
func (q *Queue) AddJob(j *Job) {
	if j == nil {
		return
	}
	if _, ok := q.index[j]; ok {
		return
	}
	p := j.periodMillis()
	if p == 0 {
		return
	}
	q.insert(j, q.tick.now()+p)
}

// RemoveJob unschedules j. It is a no-op when j is not scheduled.
//
// A job collected by the running pass but not fired yet is dropped from that
// pass too. The job whose handler is currently running is not affected.
func (q *Queue) RemoveJob(j *Job) {
	if j == nil {
		return
	}
	if q.pending != nil {
		delete(q.pending, j)
	}
	e, ok := q.index[j]
	if !ok {
		return
	}
	removeEntry(&q.entries, e)
	delete(q.index, j)
	q.log.Trace("job removed", logx.Job(j.name))
}

// UpdateJob recomputes j's due-time from now. Call it after SetPeriod.
func (q *Queue) UpdateJob(j *Job) {
	q.RemoveJob(j)
	q.AddJob(j)
}

// Loop is the per-iteration driving call. See DispatchJobs.
func (q *Queue) Loop() { q.DispatchJobs() }

// DispatchJobs fires every job due at or before now + buffer and returns how
// many handlers ran.
//
// Due jobs are collected first, then fired earliest-due first. Repeating jobs
// are re-queued at cutoff + period, so jobs of one pass share the same base
// instant regardless of how long earlier handlers took.
//
// Handler panics are not recovered. Before the panic propagates, jobs
// collected but not yet fired are put back at their original due-time and a
// repeating job whose handler panicked is re-queued at cutoff + period, as if
// it had returned. A panicking one-shot job is spent.
func (q *Queue) DispatchJobs() int {
	if !q.running || q.dispatching {
		return 0
	}
	cutoff := q.tick.now() + q.buffer

	var due []*entry
	for e := q.entries.peek(); e != nil && e.due <= cutoff; e = q.entries.peek() {
		popEntry(&q.entries)
		delete(q.index, e.job)
		due = append(due, e)
	}
	if len(due) == 0 {
		return 0
	}

	q.dispatching = true
	q.pending = make(map[*Job]struct{}, len(due))
	for _, e := range due {
		q.pending[e.job] = struct{}{}
	}
	var firing *Job
	defer func() {
		if firing != nil {
			q.log.Error("job handler panicked",
				logx.Job(firing.name),
				logx.Bool("one_shot", firing.oneShot),
			)
			if !firing.oneShot {
				q.insert(firing, cutoff+firing.periodMillis())
			}
		}
		for _, e := range due {
			if _, ok := q.pending[e.job]; ok {
				q.insert(e.job, e.due)
			}
		}
		q.pending = nil
		q.dispatching = false
	}()

	fired := 0
	for _, e := range due {
		j := e.job
		if _, ok := q.pending[j]; !ok {
			continue
		}
		delete(q.pending, j)

		start := time.Now()
		firing = j
		j.CallHandler()
		firing = nil
		d := Dispatch{
			Job:     j,
			Name:    j.name,
			Due:     e.due,
			Cutoff:  cutoff,
			Took:    time.Since(start),
			OneShot: j.oneShot,
		}
		if !j.oneShot {
			q.insert(j, cutoff+j.periodMillis())
		}
		if ne, ok := q.index[j]; ok {
			d.Requeued = true
			d.NextDue = ne.due
		}
		fired++

		if q.log.Enabled(logx.LevelTrace) {
			q.log.Trace("job dispatched",
				logx.Job(d.Name),
				logx.Due(d.Due),
				logx.Cutoff(d.Cutoff),
				logx.Took(d.Took),
				logx.Bool("requeued", d.Requeued),
			)
		}
		if q.observe != nil {
			q.observe(d)
		}
	}
	return fired
}

// Len returns the number of scheduled jobs.
func (q *Queue) Len() int { return len(q.entries) }

// Scheduled reports whether j currently has an entry.
func (q *Queue) Scheduled(j *Job) bool {
	_, ok := q.index[j]
	return ok
}

// DueAt returns j's absolute due-time in queue ticks.
func (q *Queue) DueAt(j *Job) (uint64, bool) {
	e, ok := q.index[j]
	if !ok {
		return 0, false
	}
	return e.due, true
}

// Entries returns the scheduled jobs in dispatch order.
func (q *Queue) Entries() []Entry {
	sorted := make([]*entry, len(q.entries))
	copy(sorted, q.entries)
	sort.Slice(sorted, func(i, k int) bool {
		if sorted[i].due != sorted[k].due {
			return sorted[i].due < sorted[k].due
		}
		return sorted[i].seq < sorted[k].seq
	})
	out := make([]Entry, len(sorted))
	for i, e := range sorted {
		out[i] = Entry{Job: e.job, Due: e.due}
	}
	return out
}

// insert adds an entry at an explicit due-time, keeping at most one entry per job.
func (q *Queue) insert(j *Job, due uint64) {
	if _, ok := q.index[j]; ok {
		return
	}
	if j.periodMillis() == 0 {
		return
	}
	q.seq++
	e := &entry{due: due, seq: q.seq, job: j}
	pushEntry(&q.entries, e)
	q.index[j] = e
}
