// Package schedule turns schedule strings into queue jobs.
//
// Interval schedules ("10s", "01:30", "@every 1m") map directly onto a periodic
// jobs.Job. Cron schedules (robfig/cron) become a one-shot job that re-arms
// itself with the delay until the next activation each time it fires.
package schedule
