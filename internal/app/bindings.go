package app

import (
	"fmt"
	"time"

	"flux/internal/actions"
	"flux/internal/config"
	"flux/internal/jobs"
	"flux/internal/schedule"
	logx "flux/pkg/logx"
)

// binding is a configured job attached to the queue. Bindings are only
// touched on the loop goroutine (or before the loop starts).
type binding struct {
	cfg  config.JobConfig
	trig schedule.Trigger
}

func actionSpec(a config.ActionConfig) (actions.Spec, error) {
	timeout, err := config.ParseDurationField("action.timeout", a.Timeout)
	if err != nil {
		return actions.Spec{}, err
	}
	return actions.Spec{
		Kind:    a.Kind,
		Message: a.Message,
		Level:   a.Level,
		Command: a.Command,
		Unit:    a.Unit,
		Op:      a.Op,
		Timeout: timeout,
	}, nil
}

func (a *App) bind(jc config.JobConfig) (*binding, error) {
	spec, err := schedule.ParseSchedule(jc.Schedule)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", jc.Name, err)
	}
	as, err := actionSpec(jc.Action)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", jc.Name, err)
	}
	fn, err := actions.Build(jc.Name, as, a.jobLog)
	if err != nil {
		return nil, err
	}
	trig := schedule.Bind(jc.Name, spec, jc.OneShot, fn, a.q, time.Now)
	return &binding{cfg: jc, trig: trig}, nil
}

// bindAll binds and arms every enabled job. Used once before the loop starts.
func (a *App) bindAll(cfg *config.Config) error {
	for _, jc := range cfg.EnabledJobs() {
		b, err := a.bind(jc)
		if err != nil {
			return err
		}
		b.trig.Arm()
		a.bindings[jc.Name] = b
	}
	return nil
}

// applyJobs reconciles the queue with a job diff. It runs on the loop
// goroutine. A job that fails to bind keeps its previous binding.
func (a *App) applyJobs(d config.JobDiff) {
	for _, jc := range d.Removed {
		if b, ok := a.bindings[jc.Name]; ok {
			b.trig.Disarm()
			delete(a.bindings, jc.Name)
			a.log.Info("job removed", logx.Job(jc.Name))
		}
	}

	for _, jc := range d.Added {
		b, err := a.bind(jc)
		if err != nil {
			a.log.Warn("job not added", logx.Job(jc.Name), logx.Err(err))
			continue
		}
		b.trig.Arm()
		a.bindings[jc.Name] = b
		a.log.Info("job added", logx.Job(jc.Name), logx.String("schedule", jc.Schedule))
	}

	for _, ch := range d.Changed {
		name := ch.New.Name
		old, ok := a.bindings[name]
		if ok && ch.ScheduleOnly() {
			if spec, err := schedule.ParseSchedule(ch.New.Schedule); err == nil && old.trig.Retime(spec) {
				old.cfg = ch.New
				a.log.Info("job retimed", logx.Job(name), logx.String("schedule", ch.New.Schedule))
				continue
			}
		}
		b, err := a.bind(ch.New)
		if err != nil {
			a.log.Warn("job change rejected; keeping previous", logx.Job(name), logx.Err(err))
			continue
		}
		if ok {
			old.trig.Disarm()
		}
		b.trig.Arm()
		a.bindings[name] = b
		a.log.Info("job rebound", logx.Job(name), logx.String("schedule", ch.New.Schedule))
	}
}

// JobStatus describes one scheduled job.
type JobStatus struct {
	Name     string
	Schedule string
	Period   time.Duration
	OneShot  bool
	// In is the time until the job is due on the queue clock.
	In time.Duration
}

// jobStatus lists scheduled jobs in dispatch order. It runs on the loop
// goroutine.
func (a *App) jobStatus() []JobStatus {
	now := a.q.Now()
	schedules := make(map[*jobs.Job]string, len(a.bindings))
	for _, b := range a.bindings {
		schedules[b.trig.Job()] = b.cfg.Schedule
	}
	out := make([]JobStatus, 0, a.q.Len())
	for _, e := range a.q.Entries() {
		st := JobStatus{
			Name:     e.Job.Name(),
			Schedule: schedules[e.Job],
			Period:   e.Job.Period(),
			OneShot:  e.Job.OneShot(),
		}
		if e.Due > now {
			st.In = time.Duration(e.Due-now) * time.Millisecond
		}
		out = append(out, st)
	}
	return out
}
