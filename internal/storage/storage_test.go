package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flux/internal/jobs"
	logx "flux/pkg/logx"
)

func openTestStore(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "history.db")}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoresRecentRuns(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			st := openTestStore(t, driver)
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				job := "a"
				if i%2 == 1 {
					job = "b"
				}
				require.NoError(t, st.AppendRun(ctx, RunEntry{
					At:       base.Add(time.Duration(i) * time.Second),
					Job:      job,
					DueMS:    uint64(100 * i),
					CutoffMS: uint64(100*i + 2),
					TookMS:   int64(i),
					Requeued: job == "a",
					NextMS:   uint64(100*i + 500),
				}))
			}

			all, err := st.RecentRuns(ctx, "", 3)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []uint64{400, 300, 200}, []uint64{all[0].DueMS, all[1].DueMS, all[2].DueMS})

			a, err := st.RecentRuns(ctx, "a", 10)
			require.NoError(t, err)
			require.Len(t, a, 3)
			assert.Equal(t, uint64(400), a[0].DueMS)
			assert.Equal(t, uint64(0), a[2].DueMS)
			assert.True(t, a[0].Requeued)
			assert.True(t, a[0].At.Equal(base.Add(4*time.Second)))
			assert.Equal(t, uint64(402), a[0].CutoffMS)
			assert.Equal(t, uint64(900), a[0].NextMS)

			none, err := st.RecentRuns(ctx, "missing", 10)
			require.NoError(t, err)
			assert.Empty(t, none)

			zero, err := st.RecentRuns(ctx, "", 0)
			require.NoError(t, err)
			assert.Empty(t, zero)
		})
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func TestSQLiteRetentionPrunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := openSQLite(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, st.AppendRun(ctx, RunEntry{At: now.Add(-48 * time.Hour), Job: "old"}))
	require.NoError(t, st.AppendRun(ctx, RunEntry{At: now, Job: "new"}))
	require.NoError(t, st.Close())

	st, err = openSQLite(Config{Path: path, Retention: 24 * time.Hour}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.RecentRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].Job)
}

func TestEntryFromDispatch(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	e := EntryFromDispatch(jobs.Dispatch{
		Name:     "hb",
		Due:      1000,
		Cutoff:   1002,
		Took:     1500 * time.Microsecond,
		Requeued: true,
		NextDue:  2002,
	}, at)
	assert.Equal(t, RunEntry{At: at, Job: "hb", DueMS: 1000, CutoffMS: 1002, TookMS: 1, Requeued: true, NextMS: 2002}, e)
}

func TestRecorderWritesAndFlushes(t *testing.T) {
	st := openTestStore(t, "file")
	rec := NewRecorder(st, 16, logx.Nop())
	require.True(t, rec.Enabled())

	for i := 0; i < 5; i++ {
		require.True(t, rec.Record(RunEntry{Job: fmt.Sprintf("j%d", i), At: time.Now()}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	assert.Equal(t, uint64(5), rec.Written())
	runs, err := st.RecentRuns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 5)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	st := openTestStore(t, "file")
	rec := NewRecorder(st, 2, logx.Nop())

	assert.True(t, rec.Record(RunEntry{Job: "a"}))
	assert.True(t, rec.Record(RunEntry{Job: "b"}))
	assert.False(t, rec.Record(RunEntry{Job: "c"}))
	assert.Equal(t, uint64(1), rec.Dropped())
}

func TestRecorderWithoutStore(t *testing.T) {
	rec := NewRecorder(nil, 0, logx.Nop())
	assert.False(t, rec.Enabled())
	assert.False(t, rec.Record(RunEntry{Job: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rec.Run(ctx))
}
