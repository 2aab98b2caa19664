package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("calendar: event not found")
	ErrReadOnly     = errors.New("calendar: store is read-only")
	ErrInvalidEvent = errors.New("calendar: invalid event")
)

const (
	DateLayout = "2006-01-02"
	// clockLayoutHM and clockLayoutHMS are the accepted wall-clock formats.
	clockLayoutHM  = "15:04"
	clockLayoutHMS = "15:04:05"
)

// Event is one entry of a day plan. Date and times are local wall clock.
type Event struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Start       string    `json:"start"`
	End         string    `json:"end,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// StartAt combines Date and Start into an instant in loc (time.Local if nil).
func (e Event) StartAt(loc *time.Location) (time.Time, error) {
	return combine(e.Date, e.Start, loc)
}

// EndAt returns the end instant. ok is false when End is empty.
func (e Event) EndAt(loc *time.Location) (t time.Time, ok bool, err error) {
	if strings.TrimSpace(e.End) == "" {
		return time.Time{}, false, nil
	}
	t, err = combine(e.Date, e.End, loc)
	return t, err == nil, err
}

// Validate reports whether the event can be stored. Errors wrap ErrInvalidEvent.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if _, err := ParseDate(e.Date, time.Local); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	start, err := ParseClock(e.Start)
	if err != nil {
		return fmt.Errorf("%w: start: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(e.End) != "" {
		end, err := ParseClock(e.End)
		if err != nil {
			return fmt.Errorf("%w: end: %v", ErrInvalidEvent, err)
		}
		if end < start {
			return fmt.Errorf("%w: end %s is before start %s", ErrInvalidEvent, e.End, e.Start)
		}
	}
	return nil
}

// ParseDate parses "YYYY-MM-DD" as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	layout := clockLayoutHM
	if strings.Count(s, ":") == 2 {
		layout = clockLayoutHMS
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM or HH:MM:SS)", s)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// FormatDate renders t's calendar day in the store's date format.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

func combine(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	off, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	// Build from components so DST days keep wall-clock semantics.
	h := int(off / time.Hour)
	m := int(off % time.Hour / time.Minute)
	sec := int(off % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, sec, 0, day.Location()), nil
}

// SortByStart orders events by (Date, Start, ID); unparseable entries sort last.
func SortByStart(evs []Event) {
	key := func(e Event) (string, time.Duration, bool) {
		off, err := ParseClock(e.Start)
		return e.Date, off, err == nil
	}
	sort.SliceStable(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		da, oa, okA := key(a)
		db, ob, okB := key(b)
		if okA != okB {
			return okA
		}
		if da != db {
			return da < db
		}
		if oa != ob {
			return oa < ob
		}
		return a.ID < b.ID
	})
}

// Op describes a calendar mutation.
type Op string

const (
	OpCreate   Op = "create"
	OpUpdate   Op = "update"
	OpDelete   Op = "delete"
	OpReplace  Op = "replace"
	OpExternal Op = "external"
	OpSync     Op = "sync"
)

// Change is the payload of eventbus.TypeCalendarChanged.
type Change struct {
	Op      Op
	EventID string
	Date    string
}
