package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverICS    = "ics"
)

// Validate checks structural correctness: durations parse, the calendar
// driver is known and has what it needs, presenter settings are usable.
// Domain-specific checks (alert kinds, cron specs) are layered on top by
// the app through ConfigManager.SetValidator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	s := cfg.Scheduler
	dur("scheduler.poll_interval", s.PollInterval)
	dur("scheduler.grace_window", s.GraceWindow)
	dur("scheduler.fetch_timeout", s.FetchTimeout)
	dur("scheduler.fired_retention", s.FiredRetention)
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	c := cfg.Calendar
	dur("calendar.busy_timeout", c.BusyTimeout)
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case DriverSQLite, DriverFile:
		if strings.TrimSpace(c.Path) == "" {
			add(fmt.Errorf("calendar.path: required for driver %q", c.Driver))
		}
	case DriverICS:
		if c.ICS == nil || len(c.ICS.Sources) == 0 {
			add(errors.New("calendar.ics.sources: at least one source is required"))
		} else {
			dur("calendar.ics.fetch_timeout", c.ICS.FetchTimeout)
			for i, src := range c.ICS.Sources {
				if strings.TrimSpace(src.URL) == "" {
					add(fmt.Errorf("calendar.ics.sources[%d].url: required", i))
				}
			}
		}
	case "":
		add(errors.New("calendar.driver: required"))
	default:
		add(fmt.Errorf("calendar.driver: unknown driver %q", c.Driver))
	}

	if t := cfg.Presenter.Telegram; t != nil && t.Enabled {
		if strings.TrimSpace(t.Token) == "" {
			add(errors.New("presenter.telegram.token: required when enabled"))
		}
		if t.ChatID == 0 {
			add(errors.New("presenter.telegram.chat_id: required when enabled"))
		}
		if t.RatePerSec < 0 {
			add(errors.New("presenter.telegram.rate_per_sec: must be >= 0"))
		}
		if t.RetryMax < 0 {
			add(errors.New("presenter.telegram.retry_max: must be >= 0"))
		}
		dur("presenter.telegram.timeout", t.Timeout)
	}
	if ch := cfg.Presenter.Chime; ch != nil && ch.Enabled {
		dur("presenter.chime.duration", ch.Duration)
		if ch.Volume < 0 || ch.Volume > 1 {
			add(errors.New("presenter.chime.volume: must be within [0, 1]"))
		}
		if ch.FrequencyHz < 0 {
			add(errors.New("presenter.chime.frequency_hz: must be >= 0"))
		}
	}

	return errors.Join(errs...)
}
