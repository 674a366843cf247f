package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	assert.False(t, l.Enabled(LevelError))
	assert.NotPanics(t, func() { l.Error("dropped", String("k", "v")) })
	assert.False(t, Nop().IsZero())
}

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, "debug").With(Comp("queue"))
	l.Info("job dispatched", Job("poll"), Due(42), Took(0), Err(nil))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "job dispatched", m["message"])
	assert.Equal(t, "queue", m["comp"])
	assert.Equal(t, "poll", m["job"])
	assert.EqualValues(t, 42, m["due"])
	assert.NotContains(t, m, "err")
	assert.True(t, strings.HasPrefix(m["caller"].(string), "logger_test.go:"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, "warn")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, l.Enabled(LevelDebug))
	assert.True(t, l.Enabled(LevelError))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   LevelTrace,
		" DEBUG ": LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in, LevelInfo), in)
	}
}

func TestServiceApplySwitchesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flux.log")
	svc, log := New(Config{Level: "info", Console: true})
	t.Cleanup(func() { _ = svc.Close() })

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("after apply", String("k", "v"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"after apply"`)
	assert.Contains(t, string(b), `"k":"v"`)
}

func TestServiceKeepsFileAcrossApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flux.log")
	cfg := Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}
	svc, log := New(cfg)
	t.Cleanup(func() { _ = svc.Close() })

	first := svc.file
	require.NotNil(t, first)
	svc.Apply(Config{Level: "warn", File: cfg.File})
	assert.Same(t, first, svc.file)

	log.Info("filtered")
	log.Warn("kept", Job("backup"))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "filtered")
	assert.Contains(t, string(b), `"job":"backup"`)

	svc.Apply(Config{Level: "warn", Console: true})
	assert.Nil(t, svc.file)
}
