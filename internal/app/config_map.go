package app

import (
	"fmt"
	"time"

	"flux/internal/config"
	"flux/internal/storage"
	logx "flux/pkg/logx"
)

const defaultBusyTimeout = time.Second

// mapStorageConfig returns the storage config and whether history is enabled.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil {
		return storage.Config{}, false, nil
	}
	s, err := cfg.StorageSettings()
	if err != nil {
		return storage.Config{}, false, err
	}
	switch s.Driver {
	case "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: s.Path}, true, nil
	case "sqlite", "sqlite3":
		busy := s.BusyTimeout
		if busy <= 0 {
			busy = defaultBusyTimeout
		}
		return storage.Config{Driver: "sqlite", Path: s.Path, BusyTimeout: busy, Retention: s.Retention}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", s.Driver)
	}
}

// mapLogConfig maps the logging section onto the log service.
func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
