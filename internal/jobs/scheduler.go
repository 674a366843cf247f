package jobs

// Scheduler is what collaborators (timers, sync components, device pollers)
// depend on. The composition root owns the Queue and injects it.
//
// All three calls are idempotent: schedule an already scheduled or disabled
// job, cancel an absent one, reschedule either; none of them fail.
type Scheduler interface {
	// ScheduleJob registers j for dispatch at now + period.
	ScheduleJob(j *Job)
	// RescheduleJob recomputes j's due-time from now, typically after SetPeriod.
	RescheduleJob(j *Job)
	// CancelJob stops j from being dispatched.
	CancelJob(j *Job)
}

var _ Scheduler = (*Queue)(nil)

func (q *Queue) ScheduleJob(j *Job)   { q.AddJob(j) }
func (q *Queue) RescheduleJob(j *Job) { q.UpdateJob(j) }
func (q *Queue) CancelJob(j *Job)     { q.RemoveJob(j) }

// Drive must be called once per iteration of the embedding loop. How often it
// is called bounds dispatch latency.
func (q *Queue) Drive() { q.Loop() }
