package jobs

import (
	"fmt"
	"time"
)

// Job is a periodic or delayed callback owned by the component that created it.
//
// The queue only stores the pointer: identity is the *Job, never its name or
// values, and the owner must keep the Job alive while it may be scheduled.
type Job struct {
	name    string
	period  time.Duration
	handler func()
	oneShot bool
}

// NewJob returns a repeating job. A period <= 0 leaves the job disabled:
// scheduling it is a no-op until SetPeriod gives it a positive period.
func NewJob(name string, period time.Duration, handler func()) *Job {
	if period < 0 {
		period = 0
	}
	return &Job{name: name, period: period, handler: handler}
}

// NewOneShot returns a job that fires once per ScheduleJob call.
func NewOneShot(name string, delay time.Duration, handler func()) *Job {
	j := NewJob(name, delay, handler)
	j.oneShot = true
	return j
}

func (j *Job) Name() string        { return j.name }
func (j *Job) SetName(name string) { j.name = name }

func (j *Job) Period() time.Duration { return j.period }

// SetPeriod changes the period. Requests <= 0 are ignored so a bad call can't
// silently disable a job. A scheduled job keeps its current due-time; use
// RescheduleJob to recompute it from now.
func (j *Job) SetPeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	j.period = d
}

func (j *Job) OneShot() bool            { return j.oneShot }
func (j *Job) SetOneShot(oneShot bool) { j.oneShot = oneShot }

// SetHandler binds the callback, replacing any previous one. Method values
// (e.g. s.poll) bind their receiver.
func (j *Job) SetHandler(fn func()) { j.handler = fn }

// CallHandler runs the bound callback. It is a no-op when none is bound.
// Panics are not recovered here.
func (j *Job) CallHandler() {
	if j.handler == nil {
		return
	}
	j.handler()
}

func (j *Job) String() string {
	kind := "periodic"
	if j.oneShot {
		kind = "one-shot"
	}
	return fmt.Sprintf("%s(%s, %s)", j.name, kind, j.period)
}

// periodMillis is the scheduling period in whole milliseconds. Positive
// periods below one millisecond round up to 1.
func (j *Job) periodMillis() uint64 {
	if j.period <= 0 {
		return 0
	}
	ms := uint64(j.period / time.Millisecond)
	if ms == 0 {
		return 1
	}
	return ms
}
