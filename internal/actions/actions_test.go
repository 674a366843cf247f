package actions

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "flux/pkg/logx"
)

func TestBuildLogAction(t *testing.T) {
	tests := []struct {
		name  string
		spec  Spec
		want  string
		level string
	}{
		{name: "default level", spec: Spec{Kind: "log", Message: "alive"}, want: "alive", level: "info"},
		{name: "warn", spec: Spec{Kind: "LOG", Message: "careful", Level: "warn"}, want: "careful", level: "warn"},
		{name: "empty message", spec: Spec{Kind: "log"}, want: "job fired", level: "info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			fn, err := Build("hb", tt.spec, logx.NewJSON(&buf, "trace"))
			require.NoError(t, err)
			fn()
			out := buf.String()
			assert.Contains(t, out, `"message":"`+tt.want+`"`)
			assert.Contains(t, out, `"level":"`+tt.level+`"`)
			assert.Contains(t, out, `"job":"hb"`)
		})
	}
}

func TestBuildRejectsBadSpecs(t *testing.T) {
	_, err := Build("x", Spec{Kind: "webhook"}, logx.Nop())
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Build("x", Spec{Kind: "exec", Command: `echo "unterminated`}, logx.Nop())
	assert.Error(t, err)

	_, err = Build("x", Spec{Kind: "exec", Command: "   "}, logx.Nop())
	assert.Error(t, err)

	_, err = Build("x", Spec{Kind: "systemd", Op: "mask", Unit: "a.service"}, logx.Nop())
	assert.Error(t, err)

	_, err = Build("x", Spec{Kind: "systemd", Op: "restart"}, logx.Nop())
	assert.Error(t, err)

	fn, err := Build("x", Spec{Kind: "systemd", Unit: "a.service"}, logx.Nop())
	assert.NoError(t, err)
	assert.NotNil(t, fn)
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	requireSh(t)

	res := Run(context.Background(), []string{"sh", "-c", "echo hello; exit 3"}, time.Second)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "hello", res.Output)
	assert.Error(t, res.Err)

	res = Run(context.Background(), []string{"sh", "-c", "echo ok"}, time.Second)
	assert.NoError(t, res.Err)
	assert.Zero(t, res.ExitCode)
	assert.Equal(t, "ok", res.Output)
}

func TestRunTimesOut(t *testing.T) {
	requireSh(t)

	res := Run(context.Background(), []string{"sh", "-c", "sleep 5"}, 50*time.Millisecond)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, res.Took, 5*time.Second)
}

func TestExecActionLogsFailure(t *testing.T) {
	requireSh(t)

	var buf bytes.Buffer
	fn, err := Build("sync", Spec{Kind: "exec", Command: `sh -c "echo 'out put'; exit 1"`}, logx.NewJSON(&buf, "debug"))
	require.NoError(t, err)
	fn()

	out := buf.String()
	assert.Contains(t, out, "command failed")
	assert.Contains(t, out, `"exit":1`)
	assert.Contains(t, out, `"output":"out put"`)
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", maxOutput+10)
	got := truncate(long)
	assert.Len(t, got, maxOutput+3)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "short", truncate("short"))
}
