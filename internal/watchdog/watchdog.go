// Package watchdog reports service state to systemd.
//
// The watchdog ping runs as an ordinary queue job, so a loop stalled by a
// slow handler stops pinging and systemd restarts the service.
package watchdog

import (
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"flux/internal/jobs"
	logx "flux/pkg/logx"
)

const JobName = "watchdog"

type Notifier struct {
	log logx.Logger

	notify   func(state string) (bool, error)
	interval func() (time.Duration, error)

	job *jobs.Job
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		log:      log,
		notify:   func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		interval: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) },
	}
}

func (n *Notifier) send(state string) bool {
	ok, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return ok
}

// Ready tells systemd startup is complete. It returns false when not running
// under systemd.
func (n *Notifier) Ready() bool {
	ok := n.send(daemon.SdNotifyReady)
	if ok {
		n.log.Info("notified systemd: ready")
	}
	return ok
}

func (n *Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Status(msg string) bool { return n.send(fmt.Sprintf("STATUS=%s", msg)) }

// Install schedules the watchdog ping job when systemd expects pings.
// It must run on the loop goroutine.
func (n *Notifier) Install(s jobs.Scheduler) (*jobs.Job, bool) {
	if n.job != nil {
		return n.job, true
	}
	every, err := n.interval()
	if err != nil {
		n.log.Warn("watchdog check failed", logx.Err(err))
		return nil, false
	}
	if every <= 0 {
		return nil, false
	}
	period := every / 2
	if period < time.Millisecond {
		period = time.Millisecond
	}
	n.job = jobs.NewJob(JobName, period, func() { n.send(daemon.SdNotifyWatchdog) })
	s.ScheduleJob(n.job)
	n.log.Info("watchdog enabled", logx.Duration("timeout", every), logx.Duration("ping", period))
	return n.job, true
}

// Remove cancels the ping job. It must run on the loop goroutine.
func (n *Notifier) Remove(s jobs.Scheduler) {
	if n.job == nil {
		return
	}
	s.CancelJob(n.job)
	n.job = nil
}
