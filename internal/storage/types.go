package storage

import (
	"errors"
	"time"

	"flux/internal/jobs"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retention   time.Duration // sqlite only; 0 keeps everything
}

// RunEntry records one dispatch. Times in ms are on the queue clock.
type RunEntry struct {
	At       time.Time `json:"at"`
	Job      string    `json:"job"`
	DueMS    uint64    `json:"due_ms"`
	CutoffMS uint64    `json:"cutoff_ms"`
	TookMS   int64     `json:"took_ms"`
	OneShot  bool      `json:"one_shot,omitempty"`
	Requeued bool      `json:"requeued,omitempty"`
	NextMS   uint64    `json:"next_ms,omitempty"`
}

// EntryFromDispatch converts a queue dispatch report observed at wall time at.
func EntryFromDispatch(d jobs.Dispatch, at time.Time) RunEntry {
	return RunEntry{
		At:       at,
		Job:      d.Name,
		DueMS:    d.Due,
		CutoffMS: d.Cutoff,
		TookMS:   d.Took.Milliseconds(),
		OneShot:  d.OneShot,
		Requeued: d.Requeued,
		NextMS:   d.NextDue,
	}
}
