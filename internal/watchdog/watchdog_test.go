package watchdog

import (
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flux/internal/jobs"
	logx "flux/pkg/logx"
)

type fakeClock struct{ ms uint32 }

func (c *fakeClock) Millis() uint32 { return c.ms }

func newTestNotifier(every time.Duration) (*Notifier, *[]string) {
	var sent []string
	n := New(logx.Nop())
	n.notify = func(state string) (bool, error) {
		sent = append(sent, state)
		return true, nil
	}
	n.interval = func() (time.Duration, error) { return every, nil }
	return n, &sent
}

func TestReadyAndStopping(t *testing.T) {
	n, sent := newTestNotifier(0)
	assert.True(t, n.Ready())
	assert.True(t, n.Status("3 jobs"))
	assert.True(t, n.Stopping())
	assert.Equal(t, []string{daemon.SdNotifyReady, "STATUS=3 jobs", daemon.SdNotifyStopping}, *sent)
}

func TestNotifyErrorReportsFalse(t *testing.T) {
	n := New(logx.Nop())
	n.notify = func(string) (bool, error) { return false, errors.New("socket gone") }
	assert.False(t, n.Ready())
}

func TestInstallWithoutWatchdog(t *testing.T) {
	n, _ := newTestNotifier(0)
	q := jobs.New()
	j, ok := n.Install(q)
	assert.False(t, ok)
	assert.Nil(t, j)
	assert.Zero(t, q.Len())
}

func TestInstallSchedulesPing(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	q := jobs.New(jobs.WithClock(clk), jobs.WithBuffer(0))
	q.Start()

	n, sent := newTestNotifier(10 * time.Second)
	j, ok := n.Install(q)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, j.Period())
	assert.True(t, q.Scheduled(j))

	again, ok := n.Install(q)
	assert.True(t, ok)
	assert.Same(t, j, again)
	assert.Equal(t, 1, q.Len())

	clk.ms = 6000
	q.Drive()
	assert.Equal(t, []string{daemon.SdNotifyWatchdog}, *sent)

	n.Remove(q)
	assert.False(t, q.Scheduled(j))
	assert.Zero(t, q.Len())
}
