package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dayplan/internal/calendar"
)

// Kind is the offset of an alert relative to the event start.
type Kind int

const (
	KindThirtyBefore Kind = iota
	KindFifteenBefore
	KindAtStart
)

var allKinds = []Kind{KindThirtyBefore, KindFifteenBefore, KindAtStart}

// AllKinds returns every alert kind, earliest first.
func AllKinds() []Kind { return append([]Kind(nil), allKinds...) }

// Offset is how long before the event start the alert fires.
func (k Kind) Offset() time.Duration {
	switch k {
	case KindThirtyBefore:
		return 30 * time.Minute
	case KindFifteenBefore:
		return 15 * time.Minute
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case KindThirtyBefore:
		return "30m"
	case KindFifteenBefore:
		return "15m"
	case KindAtStart:
		return "start"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Label is the human text handed to presenters.
func (k Kind) Label() string {
	switch k {
	case KindThirtyBefore:
		return "in 30 minutes"
	case KindFifteenBefore:
		return "in 15 minutes"
	default:
		return "starting now"
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "30m", "thirty":
		return KindThirtyBefore, nil
	case "15m", "fifteen":
		return KindFifteenBefore, nil
	case "start", "0", "0m":
		return KindAtStart, nil
	default:
		return 0, fmt.Errorf("unknown alert kind %q (want 30m, 15m or start)", s)
	}
}

// ParseKinds parses a configured kind list. Empty input means all kinds;
// duplicates are dropped and the result is ordered earliest first.
func ParseKinds(in []string) ([]Kind, error) {
	if len(in) == 0 {
		return AllKinds(), nil
	}
	var seen [3]bool
	for _, s := range in {
		k, err := ParseKind(s)
		if err != nil {
			return nil, err
		}
		seen[k] = true
	}
	out := make([]Kind, 0, len(allKinds))
	for _, k := range allKinds {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// Key identifies one alert of one event. Equal (event id, kind) pairs
// always produce equal keys.
type Key string

const keySep = "|"

func KeyFor(eventID string, k Kind) Key { return Key(eventID + keySep + k.String()) }

// EventID returns the event component of the key.
func (k Key) EventID() string {
	s := string(k)
	if i := strings.LastIndex(s, keySep); i >= 0 {
		return s[:i]
	}
	return s
}

// Point is one alert instant of an event. Points are recomputed on every
// pass and never mutated.
type Point struct {
	EventID string
	Kind    Kind
	FireAt  time.Time
}

func (p Point) Key() Key { return KeyFor(p.EventID, p.Kind) }

// PointsFor derives the alert points of an event starting at start.
func PointsFor(eventID string, start time.Time, kinds []Kind) []Point {
	out := make([]Point, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, Point{EventID: eventID, Kind: k, FireAt: start.Add(-k.Offset())})
	}
	return out
}

// Source is the calendar read contract the scheduler consumes.
type Source interface {
	EventsForDate(ctx context.Context, date string) ([]calendar.Event, error)
}

// Presenter displays an alert. Errors are logged by the scheduler; the
// alert still counts as fired.
type Presenter interface {
	Present(ctx context.Context, ev calendar.Event, kind Kind, label string) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, ev calendar.Event, kind Kind, label string) error

func (f PresenterFunc) Present(ctx context.Context, ev calendar.Event, kind Kind, label string) error {
	return f(ctx, ev, kind, label)
}

// Config tunes the scheduler. Start from DefaultConfig; zero durations
// fall back to their defaults.
type Config struct {
	PollInterval time.Duration
	// GraceWindow is the exclusive bound on how late a point may be and
	// still fire immediately.
	GraceWindow  time.Duration
	FetchTimeout time.Duration
	Kinds        []Kind
	// Lookahead also fetches tomorrow's events when the earliest alert
	// offset reaches past midnight.
	Lookahead bool
	// Location decides what "today" is. Nil keeps the clock's location.
	Location *time.Location
}

const (
	DefaultPollInterval = 30 * time.Second
	DefaultGraceWindow  = 5 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		GraceWindow:  DefaultGraceWindow,
		FetchTimeout: DefaultFetchTimeout,
		Kinds:        AllKinds(),
		Lookahead:    true,
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = DefaultGraceWindow
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if len(c.Kinds) == 0 {
		c.Kinds = AllKinds()
	} else {
		c.Kinds = append([]Kind(nil), c.Kinds...)
	}
	return c
}

func (c Config) maxOffset() time.Duration {
	var longest time.Duration
	for _, k := range c.Kinds {
		longest = max(longest, k.Offset())
	}
	return longest
}
