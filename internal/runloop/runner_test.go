package runloop

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flux/internal/jobs"
	logx "flux/pkg/logx"
)

func startRunner(t *testing.T, r *Runner) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return func() {
		cancelCtx()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("run loop did not stop")
		}
	}
}

func TestRunnerDispatchesJobs(t *testing.T) {
	q := jobs.New(jobs.WithBuffer(0))
	r := New(q, Config{Poll: time.Millisecond}, logx.Nop())
	q.SetObserver(r.Observe)

	var calls atomic.Int64
	j := jobs.NewJob("tick", 2*time.Millisecond, func() { calls.Add(1) })
	q.ScheduleJob(j)

	stop := startRunner(t, r)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	stop()

	assert.False(t, q.Running())
	assert.True(t, q.Scheduled(j), "stop keeps entries")
	st := r.Stats()
	assert.GreaterOrEqual(t, st.Dispatched, uint64(3))
	assert.Greater(t, st.Passes, uint64(0))
}

func TestRunnerPostAndCall(t *testing.T) {
	q := jobs.New()
	r := New(q, Config{Poll: 50 * time.Millisecond}, logx.Nop())
	stop := startRunner(t, r)

	j := jobs.NewJob("late", time.Hour, nil)
	require.True(t, r.Post(func() { q.ScheduleJob(j) }))

	var scheduled bool
	require.NoError(t, r.Call(context.Background(), func() { scheduled = q.Scheduled(j) }))
	assert.True(t, scheduled)

	stop()
	assert.False(t, r.Post(func() {}))
	assert.ErrorIs(t, r.Call(context.Background(), func() {}), ErrStopped)
	assert.False(t, r.Post(nil))
}

func TestRunnerRecoversHandlerPanic(t *testing.T) {
	q := jobs.New(jobs.WithBuffer(0))
	var buf bytes.Buffer
	r := New(q, Config{Poll: time.Millisecond}, logx.NewJSON(&buf, "error"))

	var good atomic.Int64
	q.ScheduleJob(jobs.NewOneShot("bad", time.Millisecond, func() { panic("boom") }))
	q.ScheduleJob(jobs.NewJob("good", time.Millisecond, func() { good.Add(1) }))

	stop := startRunner(t, r)
	require.Eventually(t, func() bool { return good.Load() >= 2 }, 2*time.Second, time.Millisecond)
	stop()

	assert.Equal(t, uint64(1), r.Stats().Panics)
	assert.Contains(t, buf.String(), "panic in run loop")
}

func TestRunnerKeepsRepeatingJobAfterPanic(t *testing.T) {
	var buf bytes.Buffer
	log := logx.NewJSON(&buf, "error")
	q := jobs.New(jobs.WithBuffer(0), jobs.WithLogger(log))
	r := New(q, Config{Poll: time.Millisecond}, log)

	var calls atomic.Int64
	j := jobs.NewJob("flaky", 5*time.Millisecond, func() {
		if calls.Add(1) == 1 {
			panic("first run")
		}
	})
	q.ScheduleJob(j)

	stop := startRunner(t, r)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	var scheduled bool
	require.NoError(t, r.Call(context.Background(), func() { scheduled = q.Scheduled(j) }))
	stop()

	assert.True(t, scheduled)
	assert.Equal(t, uint64(1), r.Stats().Panics)
	assert.Contains(t, buf.String(), "job handler panicked")
	assert.Contains(t, buf.String(), `"job":"flaky"`)
}

func TestRunnerRunsOnce(t *testing.T) {
	q := jobs.New()
	r := New(q, Config{}, logx.Nop())
	stop := startRunner(t, r)
	var running bool
	require.NoError(t, r.Call(context.Background(), func() { running = q.Running() }))
	assert.True(t, running)
	assert.ErrorIs(t, r.Run(context.Background()), ErrRunning)
	stop()
}

func TestObserveWarnsOnSlowHandler(t *testing.T) {
	var buf bytes.Buffer
	r := New(jobs.New(), Config{SlowCallback: 10 * time.Millisecond}, logx.NewJSON(&buf, "warn"))

	r.Observe(jobs.Dispatch{Name: "fast", Took: time.Millisecond})
	assert.Zero(t, buf.Len())

	for i := 0; i < 10; i++ {
		r.Observe(jobs.Dispatch{Name: "slow", Took: 50 * time.Millisecond})
	}
	st := r.Stats()
	assert.Equal(t, uint64(11), st.Dispatched)
	assert.Equal(t, uint64(10), st.Slow)
	assert.Equal(t, slowWarnBurst, bytes.Count(buf.Bytes(), []byte("slow job handler")))
}

func TestApplyNormalizes(t *testing.T) {
	r := New(jobs.New(), Config{}, logx.Nop())
	assert.Equal(t, DefaultPoll, r.config().Poll)
	r.Apply(Config{Poll: 20 * time.Millisecond, SlowCallback: -1})
	assert.Equal(t, Config{Poll: 20 * time.Millisecond}, r.config())
}
