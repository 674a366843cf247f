package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "cron with seconds", raw: "*/10 * * * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "every descriptor", raw: "@every 90s", kind: SpecInterval, source: "duration", duration: 90 * time.Second},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "milliseconds", raw: "250ms", kind: SpecInterval, source: "duration", duration: 250 * time.Millisecond},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every prefix", raw: "every: 02:00", kind: SpecInterval, source: "hhmm", duration: 2 * time.Hour},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.source, got.Source)
			if tt.kind == SpecInterval {
				assert.Equal(t, tt.duration, got.Every)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "0s", "-5m", "cron:", "cron:61 * * * *", "00:00", "01:75", "interval:abc"} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, raw)
	}
}

func TestParsedSpecNext(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 10, 7, 0, 0, time.UTC)

	c, err := ParseSchedule("*/15 * * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC), c.Next(base))

	i, err := ParseSchedule("5m")
	require.NoError(t, err)
	assert.Equal(t, base.Add(5*time.Minute), i.Next(base))
}

func TestSpecKindString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "cron", SpecCron.String())
	assert.Equal(t, "interval", SpecInterval.String())
	assert.Equal(t, "SpecKind(7)", SpecKind(7).String())
}
