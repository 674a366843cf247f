package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations are written as Go duration strings ("250ms", "1h"). An empty
// string means the field was left out.

// unsetRule says what an omitted or zero duration resolves to.
type unsetRule uint8

const (
	// zeroIfUnset: omitted is 0.
	zeroIfUnset unsetRule = iota
	// defaultIfUnset: omitted takes the default, an explicit "0s" stays 0.
	defaultIfUnset
	// defaultIfZero: both omitted and "0s" take the default.
	defaultIfZero
)

// durationField parses one config duration. Negative values are rejected;
// path names the field in the error.
func durationField(path, raw string, rule unsetRule, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		if rule == zeroIfUnset {
			return 0, nil
		}
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: %s is negative", path, s)
	}
	if d == 0 && rule == defaultIfZero {
		return def, nil
	}
	return d, nil
}

// ParseDurationField parses an optional duration such as an action timeout.
// Omitted is 0 and the caller applies its own default.
func ParseDurationField(path, raw string) (time.Duration, error) {
	return durationField(path, raw, zeroIfUnset, 0)
}
