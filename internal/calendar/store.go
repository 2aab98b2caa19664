package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	logx "dayplan/pkg/logx"

	"github.com/spf13/afero"
)

// Reader is the read side of a calendar. The alert scheduler depends only on it.
type Reader interface {
	EventsForDate(ctx context.Context, date string) ([]Event, error)
}

// Store is the full calendar API. Read-only backends return ErrReadOnly
// from every write.
type Store interface {
	Reader
	Get(ctx context.Context, id string) (Event, error)
	// Create assigns a new id when ev.ID is empty.
	Create(ctx context.Context, ev Event) (Event, error)
	Update(ctx context.Context, ev Event) error
	Delete(ctx context.Context, id string) error
	// ReplaceDate rewrites the whole plan for date.
	ReplaceDate(ctx context.Context, date string, evs []Event) error
	Close() error
}

// Config configures the calendar backend.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "file": JSON document (atomic rewrite on every change)
//   - "ics": read-only iCalendar sources (URLs or local files)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Sources      []Source      // ics only
	FetchTimeout time.Duration // ics only; 0 means 30s

	// Fs backs the file driver. Defaults to the OS filesystem.
	Fs afero.Fs
}

// Source is one iCalendar feed.
type Source struct {
	Name string
	URL  string
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log = log.With(logx.String("comp", "calendar"), logx.String("driver", driver))

	switch driver {
	case "sqlite", "sqlite3":
		st, err := openSQLite(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "file":
		fs := cfg.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		st, err := OpenFile(fs, cfg.Path, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "ics":
		st := NewICS(cfg.Sources, cfg.FetchTimeout, log)
		if err := st.Sync(ctx); err != nil {
			// Keep the store usable: a later resync may succeed.
			log.Warn("initial ics sync failed", logx.Err(err))
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown calendar driver: %q", cfg.Driver)
	}
}

func normalizeForWrite(ev Event, now time.Time) (Event, error) {
	ev.ID = strings.TrimSpace(ev.ID)
	ev.Date = strings.TrimSpace(ev.Date)
	ev.Start = strings.TrimSpace(ev.Start)
	ev.End = strings.TrimSpace(ev.End)
	ev.Title = strings.TrimSpace(ev.Title)
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	ev.Start = canonicalClock(ev.Start)
	ev.End = canonicalClock(ev.End)
	ev.UpdatedAt = now
	return ev, nil
}

// canonicalClock zero-pads a valid clock string so lexical order matches
// time order ("9:05" -> "09:05"). Invalid or empty input is returned as is.
func canonicalClock(s string) string {
	off, err := ParseClock(s)
	if err != nil || s == "" {
		return s
	}
	t := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(off)
	if t.Second() == 0 {
		return t.Format(clockLayoutHM)
	}
	return t.Format(clockLayoutHMS)
}
