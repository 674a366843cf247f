package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"flux/internal/schedule"
)

const (
	DefaultPoll         = 5 * time.Millisecond
	DefaultBuffer       = 2 * time.Millisecond
	DefaultSlowCallback = 250 * time.Millisecond
	DefaultStoragePath  = "./flux_store"
)

var validate = validator.New()

// Validate checks struct tags first, then what tags can't express:
// durations, schedules and unique job names.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if _, err := cfg.LoopSettings(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.StorageSettings(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]int, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name != j.Name {
			errs = append(errs, fmt.Errorf("%s.name: surrounding whitespace in %q", path, j.Name))
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s.name: %q already used by jobs[%d]", path, name, prev))
		} else {
			seen[name] = i
		}
		if _, err := schedule.ParseSchedule(j.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s.schedule: %w", path, err))
		}
		if _, err := ParseDurationField(path+".action.timeout", j.Action.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LoopSettings struct {
	Poll         time.Duration
	Buffer       time.Duration
	SlowCallback time.Duration
}

// LoopSettings resolves the loop section. Omitted fields take defaults; an
// explicit "0s" buffer or slow_callback is kept as zero.
func (c *Config) LoopSettings() (LoopSettings, error) {
	poll, err := durationField("loop.poll", c.Loop.Poll, defaultIfZero, DefaultPoll)
	if err != nil {
		return LoopSettings{}, err
	}
	buf, err := durationField("loop.buffer", c.Loop.Buffer, defaultIfUnset, DefaultBuffer)
	if err != nil {
		return LoopSettings{}, err
	}
	slow, err := durationField("loop.slow_callback", c.Loop.SlowCallback, defaultIfUnset, DefaultSlowCallback)
	if err != nil {
		return LoopSettings{}, err
	}
	return LoopSettings{Poll: poll, Buffer: buf, SlowCallback: slow}, nil
}

type StorageSettings struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
	Retention   time.Duration
}

// StorageSettings resolves the storage section. A nil section disables storage.
func (c *Config) StorageSettings() (StorageSettings, error) {
	if c.Storage == nil {
		return StorageSettings{Driver: "none"}, nil
	}
	s := StorageSettings{
		Driver: strings.ToLower(strings.TrimSpace(c.Storage.Driver)),
		Path:   strings.TrimSpace(c.Storage.Path),
	}
	if s.Driver == "" {
		s.Driver = "none"
	}
	if s.Path == "" {
		s.Path = DefaultStoragePath
	}
	var err error
	if s.BusyTimeout, err = ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return StorageSettings{}, err
	}
	if s.Retention, err = ParseDurationField("storage.retention", c.Storage.Retention); err != nil {
		return StorageSettings{}, err
	}
	return s, nil
}
