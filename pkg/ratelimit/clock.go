package ratelimit

import "time"

// Timer is the handle returned by Clock.AfterFunc; Stop cancels the
// pending callback if it has not fired yet.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so SlotQueue's reset/timeout timers can be driven
// deterministically in tests instead of sleeping in real wall-clock time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// realClock is the production Clock backed by the time package.
type realClock struct{}

// RealClock returns the default, wall-clock-backed Clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
