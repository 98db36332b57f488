package logging

import "time"

// Clock abstracts the time source so timing-dependent components can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
