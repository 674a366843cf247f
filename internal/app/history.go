package app

import (
	"context"
	"fmt"

	"flux/internal/config"
	"flux/internal/storage"
	logx "flux/pkg/logx"
)

// QueryHistory opens the run history configured in cfgPath and returns up to
// limit entries for job, newest first. An empty job matches every job.
func QueryHistory(ctx context.Context, cfgPath, job string, limit int) ([]storage.RunEntry, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.RecentRuns(ctx, job, limit)
}
