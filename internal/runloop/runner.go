package runloop

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"flux/internal/jobs"
	logx "flux/pkg/logx"
)

const (
	DefaultPoll = 5 * time.Millisecond

	slowWarnEvery = 10 * time.Second
	slowWarnBurst = 3
)

var (
	ErrRunning = errors.New("run loop already running")
	ErrStopped = errors.New("run loop stopped")
)

type Config struct {
	// Poll is how often the queue is driven. Dispatch latency is bounded by it.
	Poll time.Duration
	// SlowCallback logs a warning when a handler runs at least this long.
	// 0 disables the check.
	SlowCallback time.Duration
}

type Stats struct {
	Passes     uint64
	Dispatched uint64
	Slow       uint64
	Panics     uint64
	Pending    int
}

type Runner struct {
	q   *jobs.Queue
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	posts   []func()
	stopped bool

	wake    chan struct{}
	running atomic.Bool

	warn *rate.Limiter

	passes     atomic.Uint64
	dispatched atomic.Uint64
	slow       atomic.Uint64
	panics     atomic.Uint64
}

func New(q *jobs.Queue, cfg Config, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		q:    q,
		log:  log,
		cfg:  normalize(cfg),
		wake: make(chan struct{}, 1),
		warn: rate.NewLimiter(rate.Every(slowWarnEvery), slowWarnBurst),
	}
}

func normalize(cfg Config) Config {
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.SlowCallback < 0 {
		cfg.SlowCallback = 0
	}
	return cfg
}

// Apply updates the loop settings. The poll interval takes effect on the next
// pass. Safe to call from any goroutine.
func (r *Runner) Apply(cfg Config) {
	r.mu.Lock()
	r.cfg = normalize(cfg)
	r.mu.Unlock()
	r.signal()
}

func (r *Runner) config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Post queues fn to run on the loop goroutine before the next dispatch pass.
// It never blocks and returns false once the runner has stopped.
func (r *Runner) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.posts = append(r.posts, fn)
	r.mu.Unlock()
	r.signal()
	return true
}

// Call runs fn on the loop goroutine and waits for it to return.
// It must not be called from the loop goroutine itself.
func (r *Runner) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !r.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run starts the queue and drives it until ctx is canceled. The queue is
// stopped (entries kept) on return. A Runner runs at most once.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.mu.Unlock()

	r.q.Start()
	cfg := r.config()
	t := time.NewTicker(cfg.Poll)
	defer t.Stop()
	r.log.Info("run loop started", logx.Duration("poll", cfg.Poll), logx.Int("jobs", r.q.Len()))

	for {
		r.pass()

		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case <-r.wake:
		case <-t.C:
		}

		if next := r.config(); next.Poll != cfg.Poll {
			t.Reset(next.Poll)
			r.log.Debug("poll interval changed", logx.Duration("from", cfg.Poll), logx.Duration("to", next.Poll))
			cfg = next
		}
	}
}

func (r *Runner) shutdown() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	// Work posted before the stop still runs.
	r.runPosts()
	r.q.Stop()
	st := r.Stats()
	r.log.Info("run loop stopped",
		logx.Uint64("passes", st.Passes),
		logx.Uint64("dispatched", st.Dispatched),
		logx.Int("jobs", r.q.Len()),
	)
}

func (r *Runner) pass() {
	r.runPosts()
	r.passes.Add(1)
	r.safely("dispatch", r.q.Drive)
}

func (r *Runner) runPosts() {
	r.mu.Lock()
	posts := r.posts
	r.posts = nil
	r.mu.Unlock()
	for _, fn := range posts {
		r.safely("post", fn)
	}
}

// safely runs fn and recovers a panic so one bad handler doesn't take the
// loop down. By then the queue has put back the jobs that didn't fire and
// re-queued the panicking job if it repeats.
func (r *Runner) safely(what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.panics.Add(1)
			r.log.Error("panic in run loop",
				logx.String("in", what),
				logx.Any("panic", p),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	fn()
}

// Observe is the queue observer hook. It runs on the loop goroutine.
func (r *Runner) Observe(d jobs.Dispatch) {
	r.dispatched.Add(1)
	slow := r.config().SlowCallback
	if slow <= 0 || d.Took < slow {
		return
	}
	r.slow.Add(1)
	if !r.warn.Allow() {
		return
	}
	r.log.Warn("slow job handler stalls the loop",
		logx.Job(d.Name),
		logx.Took(d.Took),
		logx.Duration("threshold", slow),
	)
}

func (r *Runner) Stats() Stats {
	r.mu.Lock()
	pending := len(r.posts)
	r.mu.Unlock()
	return Stats{
		Passes:     r.passes.Load(),
		Dispatched: r.dispatched.Load(),
		Slow:       r.slow.Load(),
		Panics:     r.panics.Load(),
		Pending:    pending,
	}
}
