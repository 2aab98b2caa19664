package app

import (
	"fmt"
	"strings"
	"time"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	"dayplan/internal/config"
	"dayplan/internal/presenter"
	"dayplan/internal/schedule"
	logx "dayplan/pkg/logx"
)

const (
	defaultRollover       = "0 0 * * *"
	defaultFiredRetention = time.Hour
	defaultResync         = "15m"
	defaultBusyTimeout    = time.Second
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

func mapAlertsConfig(cfg *config.Config) (alerts.Config, error) {
	sc := cfg.Scheduler
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", sc.PollInterval, alerts.DefaultPollInterval)
	if err != nil {
		return alerts.Config{}, err
	}
	grace, err := config.ParseDurationOrDefault("scheduler.grace_window", sc.GraceWindow, alerts.DefaultGraceWindow)
	if err != nil {
		return alerts.Config{}, err
	}
	fetch, err := config.ParseDurationOrDefault("scheduler.fetch_timeout", sc.FetchTimeout, alerts.DefaultFetchTimeout)
	if err != nil {
		return alerts.Config{}, err
	}
	kinds, err := alerts.ParseKinds(sc.Kinds)
	if err != nil {
		return alerts.Config{}, fmt.Errorf("scheduler.kinds: %w", err)
	}
	loc, err := loadLocation(sc.Timezone)
	if err != nil {
		return alerts.Config{}, err
	}
	return alerts.Config{
		PollInterval: poll,
		GraceWindow:  grace,
		FetchTimeout: fetch,
		Kinds:        kinds,
		Lookahead:    sc.Lookahead == nil || *sc.Lookahead,
		Location:     loc,
	}, nil
}

func mapCalendarConfig(cfg *config.Config) (calendar.Config, error) {
	cc := cfg.Calendar
	busy, err := config.ParseDurationOrDefault("calendar.busy_timeout", cc.BusyTimeout, defaultBusyTimeout)
	if err != nil {
		return calendar.Config{}, err
	}
	out := calendar.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cc.Driver)),
		Path:        strings.TrimSpace(cc.Path),
		BusyTimeout: busy,
	}
	if cc.ICS != nil {
		out.FetchTimeout, err = config.ParseDurationField("calendar.ics.fetch_timeout", cc.ICS.FetchTimeout)
		if err != nil {
			return calendar.Config{}, err
		}
		for _, s := range cc.ICS.Sources {
			out.Sources = append(out.Sources, calendar.Source{Name: s.Name, URL: s.URL})
		}
	}
	return out, nil
}

// housekeeping holds the cron side of the scheduler config.
type housekeeping struct {
	Timezone  string
	Rollover  string
	Retention time.Duration
	Resync    string // empty unless the calendar is ics
}

func mapHousekeeping(cfg *config.Config, ac alerts.Config) (housekeeping, error) {
	sc := cfg.Scheduler
	hk := housekeeping{Timezone: sc.Timezone, Rollover: strings.TrimSpace(sc.Rollover)}
	if hk.Rollover == "" {
		hk.Rollover = defaultRollover
	}
	if _, err := schedule.ParseSchedule(hk.Rollover); err != nil {
		return housekeeping{}, fmt.Errorf("scheduler.rollover: %w", err)
	}

	ret, err := config.ParseDurationOrDefault("scheduler.fired_retention", sc.FiredRetention, defaultFiredRetention)
	if err != nil {
		return housekeeping{}, err
	}
	// A fired key dropped while its point could still be re-seen inside the
	// grace window would fire twice.
	hk.Retention = max(ret, ac.GraceWindow+ac.PollInterval)

	if strings.EqualFold(strings.TrimSpace(cfg.Calendar.Driver), config.DriverICS) {
		hk.Resync = defaultResync
		if cfg.Calendar.ICS != nil && strings.TrimSpace(cfg.Calendar.ICS.Resync) != "" {
			hk.Resync = strings.TrimSpace(cfg.Calendar.ICS.Resync)
		}
		if _, err := schedule.ParseSchedule(hk.Resync); err != nil {
			return housekeeping{}, fmt.Errorf("calendar.ics.resync: %w", err)
		}
	}
	return hk, nil
}

func mapTelegramConfig(tc *config.TelegramPresenterConfig) (presenter.TelegramConfig, error) {
	timeout, err := config.ParseDurationField("presenter.telegram.timeout", tc.Timeout)
	if err != nil {
		return presenter.TelegramConfig{}, err
	}
	return presenter.TelegramConfig{
		Token:      tc.Token,
		ChatID:     tc.ChatID,
		ThreadID:   tc.ThreadID,
		RatePerSec: tc.RatePerSec,
		Timeout:    timeout,
		RetryMax:   tc.RetryMax,
	}, nil
}

func mapChimeConfig(cc *config.ChimePresenterConfig) (presenter.ChimeConfig, error) {
	d, err := config.ParseDurationField("presenter.chime.duration", cc.Duration)
	if err != nil {
		return presenter.ChimeConfig{}, err
	}
	return presenter.ChimeConfig{FrequencyHz: cc.FrequencyHz, Duration: d, Volume: cc.Volume}, nil
}

// validate layers the checks that need other packages on top of
// config.Validate. It runs on load and before every hot reload commits.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	ac, err := mapAlertsConfig(cfg)
	if err != nil {
		return err
	}
	if _, err := mapHousekeeping(cfg, ac); err != nil {
		return err
	}
	if _, err := mapCalendarConfig(cfg); err != nil {
		return err
	}
	return nil
}
