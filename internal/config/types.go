package config

// Config is the fluxd configuration file.
//
// All durations are Go duration strings (e.g. "5ms", "10s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Loop     LoopConfig     `json:"loop"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Watchdog WatchdogConfig `json:"watchdog"`
	Jobs     []JobConfig    `json:"jobs" validate:"dive"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoopConfig controls the run loop that drives the job queue.
//
// Defaults (when fields are omitted):
//   - poll: "5ms"
//   - buffer: "2ms" ("0s" makes dispatch exact)
//   - slow_callback: "250ms" ("0s" disables the warning)
type LoopConfig struct {
	Poll         string `json:"poll,omitempty"`
	Buffer       string `json:"buffer,omitempty"`
	SlowCallback string `json:"slow_callback,omitempty"`
}

// StorageConfig controls the optional run history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./flux_store.db", "retention": "168h" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	Retention   string `json:"retention,omitempty"`    // sqlite; "0s" keeps everything
}

type WatchdogConfig struct {
	Enabled bool `json:"enabled"`
}

// JobConfig declares one scheduled job.
//
// Schedule accepts intervals ("10s", "01:30", "interval:45s", "@every 1m")
// and cron expressions ("*/5 * * * *", "cron:0 3 * * *", "@hourly").
type JobConfig struct {
	Name     string       `json:"name" validate:"required,max=64"`
	Schedule string       `json:"schedule" validate:"required"`
	OneShot  bool         `json:"one_shot,omitempty"`
	Disabled bool         `json:"disabled,omitempty"`
	Action   ActionConfig `json:"action"`
}

// ActionConfig is what a job does when it fires. The systemd kind runs
// systemctl <op> <unit>; op defaults to restart.
type ActionConfig struct {
	Kind    string `json:"kind" validate:"required,oneof=log exec systemd"`
	Message string `json:"message,omitempty"`
	Level   string `json:"level,omitempty" validate:"omitempty,oneof=trace debug info warn warning error"`
	Command string `json:"command,omitempty" validate:"required_if=Kind exec"`
	Unit    string `json:"unit,omitempty" validate:"required_if=Kind systemd"`
	Op      string `json:"op,omitempty" validate:"omitempty,oneof=start stop restart reload"`
	Timeout string `json:"timeout,omitempty"`
}

// EnabledJobs returns the jobs that are not disabled, in file order.
func (c *Config) EnabledJobs() []JobConfig {
	if c == nil {
		return nil
	}
	out := make([]JobConfig, 0, len(c.Jobs))
	for _, j := range c.Jobs {
		if !j.Disabled {
			out = append(out, j)
		}
	}
	return out
}
