package alerts

import "time"

// Clock abstracts wall time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer. Stop reports whether it
// prevented the callback from running.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// FrozenClock returns a clock stuck at t whose timers never fire. It lets
// a caller run one pass "as of" t and inspect what would be armed.
func FrozenClock(t time.Time) Clock { return frozenClock{t: t} }

type frozenClock struct{ t time.Time }

func (c frozenClock) Now() time.Time { return c.t }

func (frozenClock) AfterFunc(time.Duration, func()) Timer { return inertTimer{} }

type inertTimer struct{}

func (inertTimer) Stop() bool { return true }
