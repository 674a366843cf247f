package logx

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to an event. Fields apply in order, so a repeated key
// keeps its last value.
type Field func(e *zerolog.Event)

func String(k, v string) Field { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Uint64(k string, v uint64) Field {
	return func(e *zerolog.Event) { e.Uint64(k, v) }
}
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err adds the error under "err". A nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Stack adds a goroutine stack. Blank stacks are skipped.
func Stack(stack string) Field {
	return func(e *zerolog.Event) {
		if strings.TrimSpace(stack) != "" {
			e.Str("stack", stack)
		}
	}
}

// Keys shared by every component, so log queries don't depend on who wrote
// the line.
const (
	KeyComp   = "comp"
	KeyJob    = "job"
	KeyDue    = "due"
	KeyCutoff = "cutoff"
	KeyTook   = "took"
)

// Comp tags a component logger: log.With(logx.Comp("queue")).
func Comp(name string) Field { return String(KeyComp, name) }

// Job names the job a line is about.
func Job(name string) Field { return String(KeyJob, name) }

// Due is a job due-time in queue ticks (wrap-extended milliseconds).
func Due(ticks uint64) Field { return Uint64(KeyDue, ticks) }

// Cutoff is the dispatch cutoff of a pass in queue ticks.
func Cutoff(ticks uint64) Field { return Uint64(KeyCutoff, ticks) }

// Took is how long a handler or step ran.
func Took(d time.Duration) Field { return Duration(KeyTook, d) }
