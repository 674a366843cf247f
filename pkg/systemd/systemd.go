// Package systemd drives systemd units through systemctl.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrUnknownOp = errors.New("unknown systemctl operation")

type Op string

const (
	OpStart   Op = "start"
	OpStop    Op = "stop"
	OpRestart Op = "restart"
	OpReload  Op = "reload"
)

// systemctl is the binary invoked; tests point it elsewhere.
var systemctl = "systemctl"

func ParseOp(s string) (Op, error) {
	switch op := Op(strings.ToLower(strings.TrimSpace(s))); op {
	case OpStart, OpStop, OpRestart, OpReload:
		return op, nil
	case "":
		return OpRestart, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOp, s)
	}
}

// Run applies op to unit and waits for systemctl to return.
func Run(ctx context.Context, op Op, unit string) error {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return errors.New("unit name required")
	}
	out, err := exec.CommandContext(ctx, systemctl, string(op), unit).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("systemctl %s %s: %w: %s", op, unit, err, msg)
		}
		return fmt.Errorf("systemctl %s %s: %w", op, unit, err)
	}
	return nil
}

func IsActive(ctx context.Context, unit string) (bool, error) {
	out, err := exec.CommandContext(ctx, systemctl, "is-active", unit).CombinedOutput()
	// is-active exits non-zero when inactive; only the output matters.
	if err != nil && len(out) == 0 {
		return false, err
	}
	return strings.TrimSpace(string(out)) == "active", nil
}
