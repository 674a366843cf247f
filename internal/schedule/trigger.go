package schedule

import (
	"time"

	"flux/internal/jobs"
)

// Trigger binds a handler to a schedule on a jobs.Scheduler.
//
// All methods must be called from the goroutine that drives the queue.
type Trigger interface {
	Job() *jobs.Job
	Spec() ParsedSpec
	// Arm schedules the job. Arming an armed trigger is a no-op.
	Arm()
	// Disarm cancels the job.
	Disarm()
	// Retime switches to a new spec of the same kind and recomputes the next
	// due-time from now. It returns false when the kind differs; rebind then.
	Retime(spec ParsedSpec) bool
}

// Bind returns the trigger for spec. now is the wall clock used for cron
// activations; nil means time.Now.
func Bind(name string, spec ParsedSpec, oneShot bool, fn func(), sched jobs.Scheduler, now func() time.Time) Trigger {
	if spec.Kind == SpecCron {
		return NewCronTrigger(name, spec, oneShot, fn, sched, now)
	}
	var j *jobs.Job
	if oneShot {
		j = jobs.NewOneShot(name, spec.Every, fn)
	} else {
		j = jobs.NewJob(name, spec.Every, fn)
	}
	return &intervalTrigger{job: j, spec: spec, sched: sched}
}

type intervalTrigger struct {
	job   *jobs.Job
	spec  ParsedSpec
	sched jobs.Scheduler
}

func (t *intervalTrigger) Job() *jobs.Job   { return t.job }
func (t *intervalTrigger) Spec() ParsedSpec { return t.spec }
func (t *intervalTrigger) Arm()             { t.sched.ScheduleJob(t.job) }
func (t *intervalTrigger) Disarm()          { t.sched.CancelJob(t.job) }

func (t *intervalTrigger) Retime(spec ParsedSpec) bool {
	if spec.Kind != SpecInterval {
		return false
	}
	t.spec = spec
	t.job.SetPeriod(spec.Every)
	t.sched.RescheduleJob(t.job)
	return true
}

// CronTrigger runs a handler on cron activations.
//
// The underlying job is one-shot: each time it fires, the handler runs and
// the trigger re-arms it with the delay until the following activation.
type CronTrigger struct {
	job     *jobs.Job
	spec    ParsedSpec
	sched   jobs.Scheduler
	now     func() time.Time
	fn      func()
	oneShot bool

	armed bool
	next  time.Time
}

func NewCronTrigger(name string, spec ParsedSpec, oneShot bool, fn func(), sched jobs.Scheduler, now func() time.Time) *CronTrigger {
	if now == nil {
		now = time.Now
	}
	t := &CronTrigger{spec: spec, sched: sched, now: now, fn: fn, oneShot: oneShot}
	t.job = jobs.NewOneShot(name, 0, t.fire)
	return t
}

func (t *CronTrigger) Job() *jobs.Job   { return t.job }
func (t *CronTrigger) Spec() ParsedSpec { return t.spec }

// Next is the activation the job is currently armed for.
func (t *CronTrigger) Next() time.Time { return t.next }

func (t *CronTrigger) Arm() {
	if t.armed {
		return
	}
	t.armed = true
	t.rearm(t.now())
}

func (t *CronTrigger) Disarm() {
	t.armed = false
	t.next = time.Time{}
	t.sched.CancelJob(t.job)
}

func (t *CronTrigger) Retime(spec ParsedSpec) bool {
	if spec.Kind != SpecCron {
		return false
	}
	t.spec = spec
	if t.armed {
		t.rearm(t.now())
	}
	return true
}

func (t *CronTrigger) fire() {
	// The queue may fire up to its buffer early; base the next activation on
	// the one we were armed for so it isn't picked again.
	base := t.now()
	if t.next.After(base) {
		base = t.next
	}
	// Deferred so a panicking handler still gets its next activation.
	defer t.after(base)
	if t.fn != nil {
		t.fn()
	}
}

func (t *CronTrigger) after(base time.Time) {
	if t.oneShot || !t.armed {
		t.armed = false
		t.next = time.Time{}
		return
	}
	t.rearm(base)
}

func (t *CronTrigger) rearm(from time.Time) {
	next := t.spec.Next(from)
	if next.IsZero() {
		// No future activation (e.g. an impossible date).
		t.armed = false
		t.next = time.Time{}
		t.sched.CancelJob(t.job)
		return
	}
	d := next.Sub(t.now())
	if d < time.Millisecond {
		d = time.Millisecond
	}
	t.next = next
	t.job.SetPeriod(d)
	t.sched.RescheduleJob(t.job)
}
