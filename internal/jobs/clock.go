package jobs

import "time"

// Clock is a wrapping millisecond counter (the shape of Arduino millis()).
// It must be monotonic apart from wrapping past math.MaxUint32.
type Clock interface {
	Millis() uint32
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint32

func (f ClockFunc) Millis() uint32 { return f() }

// SystemClock counts milliseconds since it was created, using the runtime's
// monotonic clock. Like millis() it wraps after ~49.7 days.
type SystemClock struct {
	epoch time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.epoch) / time.Millisecond)
}

// ticker extends a wrapping 32-bit clock into a 64-bit tick count.
//
// A reading lower than the previous one is taken as a wrap. This holds as long
// as the clock is read at least once per wrap period, which the driving loop
// guarantees by polling far more often than every 49 days.
type ticker struct {
	clock Clock
	last  uint32
	wraps uint64
	read  bool
}

func (t *ticker) now() uint64 {
	v := t.clock.Millis()
	if t.read && v < t.last {
		t.wraps++
	}
	t.last = v
	t.read = true
	return t.wraps<<32 | uint64(v)
}
