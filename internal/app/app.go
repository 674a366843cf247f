// Package app wires the daemon together: config, logging, run history, the
// job queue and its run loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"flux/internal/config"
	"flux/internal/jobs"
	"flux/internal/runloop"
	"flux/internal/runtime/supervisor"
	"flux/internal/storage"
	"flux/internal/watchdog"
	logx "flux/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log    logx.Logger
	jobLog logx.Logger
	logs   *logx.Service

	store storage.Store
	rec   *storage.Recorder

	q      *jobs.Queue
	runner *runloop.Runner
	wd     *watchdog.Notifier
	// notify gates sd_notify messages; it follows watchdog.enabled.
	notify atomic.Bool

	// Loop goroutine only.
	bindings   map[string]*binding
	wdEnabled  bool
	lastConfig *config.Config
}

// New loads the config and builds every component. Jobs are bound and armed
// but nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, root := logx.New(mapLogConfig(cfg))
	log := root.With(logx.Comp("app"))

	loop, err := cfg.LoopSettings()
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		store, err = storage.Open(sc, root.With(logx.Comp("storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		log.Info("run history enabled", logx.String("driver", sc.Driver))
	}

	q := jobs.New(
		jobs.WithBuffer(loop.Buffer),
		jobs.WithLogger(root.With(logx.Comp("queue"))),
	)
	a := &App{
		cfgm:       cfgm,
		log:        log,
		jobLog:     root.With(logx.Comp("job")),
		logs:       logSvc,
		store:      store,
		rec:        storage.NewRecorder(store, 0, root.With(logx.Comp("history"))),
		q:          q,
		runner:     runloop.New(q, runloop.Config{Poll: loop.Poll, SlowCallback: loop.SlowCallback}, root.With(logx.Comp("runloop"))),
		wd:         watchdog.New(root.With(logx.Comp("watchdog"))),
		bindings:   map[string]*binding{},
		lastConfig: cfg,
	}
	q.SetObserver(a.observe)

	if err := a.bindAll(cfg); err != nil {
		_ = a.closeStore()
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("jobs bound", logx.Int("jobs", len(a.bindings)), logx.Duration("buffer", loop.Buffer), logx.Duration("poll", loop.Poll))
	return a, nil
}

// observe runs on the loop goroutine after every dispatch.
func (a *App) observe(d jobs.Dispatch) {
	a.runner.Observe(d)
	a.rec.Record(storage.EntryFromDispatch(d, time.Now()))
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.Comp("config")))

	a.sup.Go("runloop", a.runner.Run)
	a.sup.Go("history", a.rec.Run)

	enabled := a.lastConfig.Watchdog.Enabled
	a.runner.Post(func() {
		a.setWatchdog(enabled)
		if enabled {
			a.wd.Ready()
			a.wd.Status(fmt.Sprintf("%d jobs scheduled", a.q.Len()))
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// setWatchdog installs or removes the ping job. Loop goroutine only.
func (a *App) setWatchdog(enabled bool) {
	if enabled == a.wdEnabled {
		return
	}
	a.wdEnabled = enabled
	a.notify.Store(enabled)
	if enabled {
		a.wd.Install(a.q)
		return
	}
	a.wd.Remove(a.q)
}

// Jobs returns the scheduled jobs in dispatch order.
func (a *App) Jobs(ctx context.Context) ([]JobStatus, error) {
	var out []JobStatus
	err := a.runner.Call(ctx, func() { out = a.jobStatus() })
	return out, err
}

func (a *App) Stats() runloop.Stats { return a.runner.Stats() }

// State is a point-in-time view of the daemon.
type State struct {
	Jobs       []JobStatus
	Loop       runloop.Stats
	Goroutines []supervisor.Stats
}

// State collects the job list on the loop goroutine plus loop and goroutine
// stats. Goroutines is empty before Start.
func (a *App) State(ctx context.Context) (State, error) {
	js, err := a.Jobs(ctx)
	if err != nil {
		return State{}, err
	}
	st := State{Jobs: js, Loop: a.runner.Stats()}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	return st, nil
}

// LogState writes State to the log, one line per job and goroutine. fluxd
// calls it on SIGUSR1.
func (a *App) LogState(ctx context.Context) error {
	st, err := a.State(ctx)
	if err != nil {
		return err
	}
	a.log.Info("state",
		logx.Int("jobs", len(st.Jobs)),
		logx.Uint64("passes", st.Loop.Passes),
		logx.Uint64("dispatched", st.Loop.Dispatched),
		logx.Uint64("slow", st.Loop.Slow),
		logx.Uint64("panics", st.Loop.Panics),
	)
	for _, j := range st.Jobs {
		a.log.Info("state job",
			logx.Job(j.Name),
			logx.String("schedule", j.Schedule),
			logx.Bool("one_shot", j.OneShot),
			logx.Duration("in", j.In),
		)
	}
	for _, g := range st.Goroutines {
		a.log.Info("state goroutine",
			logx.String("name", g.Name),
			logx.Int("active", g.Active),
			logx.Uint64("restarts", g.Restarts),
			logx.Uint64("panics", g.Panics),
			logx.String("last_err", g.LastErr),
		)
	}
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStore()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.notify.Load() {
		a.wd.Stopping()
	}

	// Cancel first so every loop starts unwinding. The run loop stops the
	// queue and the recorder flushes what it holds.
	a.sup.Cancel()
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.closeStore() })

	st := a.runner.Stats()
	a.log.Info("stopped",
		logx.Uint64("passes", st.Passes),
		logx.Uint64("dispatched", st.Dispatched),
		logx.Uint64("history_written", a.rec.Written()),
		logx.Uint64("history_dropped", a.rec.Dropped()),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// step runs one shutdown step with an upper bound so a single component
// can't stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Took(time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}

// reloadLoop applies published configs until ctx is done.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(cfg)
		}
	}
}

// applyConfig hot-applies a validated config. Queue changes are posted to the
// loop goroutine.
func (a *App) applyConfig(cfg *config.Config) {
	prev := a.lastConfig
	a.lastConfig = cfg

	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)

	a.logs.Apply(mapLogConfig(cfg))

	loop, err := cfg.LoopSettings()
	if err != nil {
		a.log.Warn("invalid loop config; keeping previous", logx.Err(err))
	} else {
		a.runner.Apply(runloop.Config{Poll: loop.Poll, SlowCallback: loop.SlowCallback})
	}

	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}

	diff := config.DiffJobs(prev.EnabledJobs(), cfg.EnabledJobs())
	wdEnabled := cfg.Watchdog.Enabled
	posted := a.runner.Post(func() {
		if err == nil {
			a.q.SetBuffer(loop.Buffer)
		}
		a.applyJobs(diff)
		a.setWatchdog(wdEnabled)
	})
	if !posted {
		a.log.Warn("run loop stopped; config changes to jobs not applied")
	}
	a.log.Info("config reloaded", fields...)
}
