package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flux/internal/jobs"
)

// simClock drives both the queue's millisecond counter and the wall clock.
type simClock struct {
	ms    uint32
	epoch time.Time
}

func (c *simClock) Millis() uint32 { return c.ms }
func (c *simClock) Now() time.Time { return c.epoch.Add(time.Duration(c.ms) * time.Millisecond) }

func newSim(t *testing.T, buffer time.Duration) (*jobs.Queue, *simClock) {
	t.Helper()
	c := &simClock{epoch: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)}
	q := jobs.New(jobs.WithClock(c), jobs.WithBuffer(buffer))
	q.Start()
	return q, c
}

func mustParse(t *testing.T, raw string) ParsedSpec {
	t.Helper()
	p, err := ParseSchedule(raw)
	require.NoError(t, err)
	return p
}

func TestIntervalTrigger(t *testing.T) {
	t.Parallel()
	q, c := newSim(t, 0)
	calls := 0
	tr := Bind("poll", mustParse(t, "10s"), false, func() { calls++ }, q, c.Now)
	tr.Arm()
	tr.Arm()
	assert.Equal(t, 1, q.Len())

	c.ms = 10_000
	q.Drive()
	assert.Equal(t, 1, calls)

	require.True(t, tr.Retime(mustParse(t, "1s")))
	due, ok := q.DueAt(tr.Job())
	require.True(t, ok)
	assert.Equal(t, uint64(11_000), due)
	assert.False(t, tr.Retime(mustParse(t, "@daily")))

	tr.Disarm()
	assert.False(t, q.Scheduled(tr.Job()))
}

func TestIntervalTriggerOneShot(t *testing.T) {
	t.Parallel()
	q, c := newSim(t, 0)
	tr := Bind("once", mustParse(t, "interval:1s"), true, nil, q, c.Now)
	tr.Arm()
	c.ms = 1000
	q.Drive()
	assert.False(t, q.Scheduled(tr.Job()))
}

func TestCronTriggerRearms(t *testing.T) {
	t.Parallel()
	q, c := newSim(t, 0)
	var fired []time.Time
	tr := NewCronTrigger("tick", mustParse(t, "*/5 * * * * *"), false, func() { fired = append(fired, c.Now()) }, q, c.Now)
	tr.Arm()

	due, ok := q.DueAt(tr.Job())
	require.True(t, ok)
	assert.Equal(t, uint64(4000), due)
	assert.Equal(t, c.epoch.Add(4*time.Second), tr.Next())

	c.ms = 4000
	q.Drive()
	require.Len(t, fired, 1)
	due, ok = q.DueAt(tr.Job())
	require.True(t, ok)
	assert.Equal(t, uint64(9000), due)
}

func TestCronTriggerEarlyFireDoesNotRepeatActivation(t *testing.T) {
	t.Parallel()
	q, c := newSim(t, 2*time.Millisecond)
	calls := 0
	tr := NewCronTrigger("tick", mustParse(t, "*/5 * * * * *"), false, func() { calls++ }, q, c.Now)
	tr.Arm()

	c.ms = 3998
	q.Drive()
	assert.Equal(t, 1, calls)
	due, _ := q.DueAt(tr.Job())
	assert.Equal(t, uint64(9000), due)

	c.ms = 4001
	q.Drive()
	assert.Equal(t, 1, calls)
}

func TestCronTriggerRearmsAfterPanic(t *testing.T) {
	t.Parallel()
	q, c := newSim(t, 0)
	calls := 0
	tr := NewCronTrigger("flaky", mustParse(t, "*/5 * * * * *"), false, func() {
		calls++
		if calls == 1 {
			panic("first run")
		}
	}, q, c.Now)
	tr.Arm()

	c.ms = 4000
	require.Panics(t, func() { q.Drive() })
	due, ok := q.DueAt(tr.Job())
	require.True(t, ok)
	assert.Equal(t, uint64(9000), due)

	c.ms = 9000
	q.Drive()
	assert.Equal(t, 2, calls)
	assert.True(t, q.Scheduled(tr.Job()))
}

func TestCronTriggerOneShotAndDisarm(t *testing.T) {
	t.Parallel()
	q, c := newSim(t, 0)
	calls := 0
	once := Bind("once", mustParse(t, "*/5 * * * * *"), true, func() { calls++ }, q, c.Now)
	once.Arm()
	c.ms = 4000
	q.Drive()
	assert.Equal(t, 1, calls)
	assert.False(t, q.Scheduled(once.Job()))

	rep := Bind("rep", mustParse(t, "*/5 * * * * *"), false, func() { calls++ }, q, c.Now)
	rep.Arm()
	require.True(t, q.Scheduled(rep.Job()))
	rep.Disarm()
	assert.False(t, q.Scheduled(rep.Job()))
	c.ms = 60_000
	q.Drive()
	assert.Equal(t, 1, calls)
}

func TestCronTriggerRetime(t *testing.T) {
	t.Parallel()
	q, c := newSim(t, 0)
	tr := NewCronTrigger("tick", mustParse(t, "*/5 * * * * *"), false, nil, q, c.Now)
	tr.Arm()
	require.True(t, tr.Retime(mustParse(t, "*/2 * * * * *")))
	due, _ := q.DueAt(tr.Job())
	assert.Equal(t, uint64(1000), due)
	assert.False(t, tr.Retime(mustParse(t, "5s")))
}
