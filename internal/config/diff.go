package config

import (
	"sort"
	"strings"

	logx "flux/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Commands are never logged.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Loop != newCfg.Loop {
		changed = append(changed, "loop")
		attrs = append(attrs,
			logx.String("loop.poll", strings.TrimSpace(newCfg.Loop.Poll)),
			logx.String("loop.buffer", strings.TrimSpace(newCfg.Loop.Buffer)),
			logx.String("loop.slow_callback", strings.TrimSpace(newCfg.Loop.SlowCallback)),
		)
	}

	// Storage is opened once at startup; a change only takes effect on restart.
	oS, _ := oldCfg.StorageSettings()
	nS, _ := newCfg.StorageSettings()
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nS.Driver),
			logx.Duration("storage.retention", nS.Retention),
			logx.Bool("storage.restart_required", true),
		)
	}

	if oldCfg.Watchdog != newCfg.Watchdog {
		changed = append(changed, "watchdog")
		attrs = append(attrs, logx.Bool("watchdog.enabled", newCfg.Watchdog.Enabled))
	}

	if d := DiffJobs(oldCfg.EnabledJobs(), newCfg.EnabledJobs()); !d.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.added", len(d.Added)),
			logx.Int("jobs.removed", len(d.Removed)),
			logx.Int("jobs.changed", len(d.Changed)),
			logx.Int("jobs.enabled_count", len(newCfg.EnabledJobs())),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

type JobChange struct {
	Old JobConfig
	New JobConfig
}

// ScheduleOnly reports whether only the schedule string differs, so the
// running trigger can be retimed instead of rebuilt.
func (c JobChange) ScheduleOnly() bool {
	o, n := c.Old, c.New
	o.Schedule, n.Schedule = "", ""
	return o == n && c.Old.Schedule != c.New.Schedule
}

// JobDiff lists job definition changes by name. Each list is sorted by name.
type JobDiff struct {
	Added   []JobConfig
	Removed []JobConfig
	Changed []JobChange
}

func (d JobDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffJobs compares two job lists by name. Pass EnabledJobs to treat
// disabled jobs as absent.
func DiffJobs(oldJobs, newJobs []JobConfig) JobDiff {
	oldM := make(map[string]JobConfig, len(oldJobs))
	for _, j := range oldJobs {
		oldM[j.Name] = j
	}
	newM := make(map[string]JobConfig, len(newJobs))
	for _, j := range newJobs {
		newM[j.Name] = j
	}

	var d JobDiff
	for name, n := range newM {
		o, ok := oldM[name]
		switch {
		case !ok:
			d.Added = append(d.Added, n)
		case o != n:
			d.Changed = append(d.Changed, JobChange{Old: o, New: n})
		}
	}
	for name, o := range oldM {
		if _, ok := newM[name]; !ok {
			d.Removed = append(d.Removed, o)
		}
	}

	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].Name < d.Added[j].Name })
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].Name < d.Removed[j].Name })
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].New.Name < d.Changed[j].New.Name })
	return d
}
