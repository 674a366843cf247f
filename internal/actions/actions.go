// Package actions turns configured job actions into queue handlers.
package actions

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	logx "flux/pkg/logx"
	"flux/pkg/systemd"
)

const (
	KindLog     = "log"
	KindExec    = "exec"
	KindSystemd = "systemd"

	DefaultExecTimeout = 10 * time.Second

	maxOutput = 512
)

var ErrUnknownKind = errors.New("unknown action kind")

// Spec describes what a job does when it fires.
type Spec struct {
	Kind    string
	Message string
	Level   string
	Command string
	Unit    string
	Op      string
	Timeout time.Duration
}

// Build returns the handler for spec. The handler runs on the loop goroutine.
func Build(name string, spec Spec, log logx.Logger) (func(), error) {
	log = log.With(logx.Job(name))
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case KindLog:
		return logAction(spec, log), nil
	case KindExec:
		return execAction(spec, log)
	case KindSystemd:
		return systemdAction(spec, log)
	default:
		return nil, fmt.Errorf("job %q: %w: %q", name, ErrUnknownKind, spec.Kind)
	}
}

func logAction(spec Spec, log logx.Logger) func() {
	msg := spec.Message
	if msg == "" {
		msg = "job fired"
	}
	switch logx.ParseLevel(spec.Level, logx.LevelInfo) {
	case logx.LevelTrace:
		return func() { log.Trace(msg) }
	case logx.LevelDebug:
		return func() { log.Debug(msg) }
	case logx.LevelWarn:
		return func() { log.Warn(msg) }
	case logx.LevelError:
		return func() { log.Error(msg) }
	default:
		return func() { log.Info(msg) }
	}
}

func execAction(spec Spec, log logx.Logger) (func(), error) {
	argv, err := shellquote.Split(spec.Command)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("exec action needs a command")
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	return func() {
		res := Run(context.Background(), argv, timeout)
		fields := []logx.Field{
			logx.String("cmd", argv[0]),
			logx.Int("exit", res.ExitCode),
			logx.Took(res.Took),
		}
		if res.Output != "" {
			fields = append(fields, logx.String("output", res.Output))
		}
		if res.Err != nil {
			log.Warn("command failed", append(fields, logx.Err(res.Err))...)
			return
		}
		log.Debug("command finished", fields...)
	}, nil
}

func systemdAction(spec Spec, log logx.Logger) (func(), error) {
	op, err := systemd.ParseOp(spec.Op)
	if err != nil {
		return nil, err
	}
	unit := strings.TrimSpace(spec.Unit)
	if unit == "" {
		return nil, errors.New("systemd action needs a unit")
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		err := systemd.Run(ctx, op, unit)
		fields := []logx.Field{
			logx.String("unit", unit),
			logx.String("op", string(op)),
			logx.Took(time.Since(start)),
		}
		if err != nil {
			log.Warn("systemctl failed", append(fields, logx.Err(err))...)
			return
		}
		log.Info("systemctl done", fields...)
	}, nil
}

type Result struct {
	ExitCode int
	Output   string
	Took     time.Duration
	Err      error
}

// Run executes argv synchronously and waits at most timeout.
// Output is combined stdout and stderr, trimmed and truncated.
func Run(ctx context.Context, argv []string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	res := Result{Output: truncate(strings.TrimSpace(string(out))), Took: time.Since(start)}
	if err == nil {
		return res
	}
	res.ExitCode = -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
	}
	if ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
	}
	res.Err = err
	return res
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return s[:maxOutput] + "..."
}
