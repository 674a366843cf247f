package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	logx "flux/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	retention  time.Duration
	opCount    atomic.Uint64
	pruneEvery uint64
	now        func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{
		db:         db,
		log:        log,
		retention:  cfg.Retention,
		pruneEvery: 500,
		now:        time.Now,
	}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := st.prune(context.Background()); err != nil {
		log.Warn("run history prune failed", logx.Err(err))
	}
	log.Debug("run history opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, job, due_ms, cutoff_ms, took_ms, one_shot, requeued, next_ms)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.UnixMilli(), e.Job, int64(e.DueMS), int64(e.CutoffMS), e.TookMS,
		boolInt(e.OneShot), boolInt(e.Requeued), int64(e.NextMS),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Debug("run history prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, job string, limit int) ([]RunEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}

	q := `SELECT at, job, due_ms, cutoff_ms, took_ms, one_shot, requeued, next_ms FROM runs`
	args := []any{}
	if job != "" {
		q += ` WHERE job = ?`
		args = append(args, job)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var (
			e                    RunEntry
			at, due, cutoff, nxt int64
			oneShot, requeued    int
		)
		if err := rows.Scan(&at, &e.Job, &due, &cutoff, &e.TookMS, &oneShot, &requeued, &nxt); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(at)
		e.DueMS, e.CutoffMS, e.NextMS = uint64(due), uint64(cutoff), uint64(nxt)
		e.OneShot, e.Requeued = oneShot != 0, requeued != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// prune drops entries older than the retention window.
func (s *sqliteStore) prune(ctx context.Context) error {
	if s == nil || s.db == nil || s.retention <= 0 {
		return nil
	}
	cutoff := s.now().Add(-s.retention).UnixMilli()
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE at < ?`, cutoff)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
