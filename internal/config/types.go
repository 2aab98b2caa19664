package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Calendar  CalendarConfig  `json:"calendar"`
	Presenter PresenterConfig `json:"presenter"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the alert scheduler and its cron triggers.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "30s"
//   - grace_window: "5s"
//   - fetch_timeout: "10s"
//   - kinds: ["30m", "15m", "start"]
//   - lookahead: true
//   - rollover: "0 0 * * *"
//   - fired_retention: "1h"
type SchedulerConfig struct {
	PollInterval string   `json:"poll_interval,omitempty"`
	GraceWindow  string   `json:"grace_window,omitempty"`
	FetchTimeout string   `json:"fetch_timeout,omitempty"`
	Kinds        []string `json:"kinds,omitempty"`

	// Lookahead is a pointer so we can distinguish "omitted" (default true)
	// from an explicit false.
	Lookahead *bool `json:"lookahead,omitempty"`

	// Trigger timezone for rollover/resync cron jobs.
	Timezone       string `json:"timezone,omitempty"`
	Rollover       string `json:"rollover,omitempty"`
	FiredRetention string `json:"fired_retention,omitempty"`
}

// CalendarConfig selects the calendar backend.
//
// Example:
//
//	"calendar": { "driver": "sqlite", "path": "./dayplan.db", "watch": true }
type CalendarConfig struct {
	Driver      string     `json:"driver"`
	Path        string     `json:"path,omitempty"`
	BusyTimeout string     `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Watch       bool       `json:"watch,omitempty"`
	ICS         *ICSConfig `json:"ics,omitempty"`
}

// ICSConfig lists read-only iCalendar sources for the "ics" driver.
type ICSConfig struct {
	Sources []ICSSource `json:"sources"`
	// Resync is a schedule spec (cron, @every, duration or HH:MM). Default: "15m".
	Resync       string `json:"resync,omitempty"`
	FetchTimeout string `json:"fetch_timeout,omitempty"`
}

// ICSSource is an http(s) URL or a local file path.
type ICSSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type PresenterConfig struct {
	// Log presents alerts as log lines. Default: true.
	Log      *bool                    `json:"log,omitempty"`
	Telegram *TelegramPresenterConfig `json:"telegram,omitempty"`
	Chime    *ChimePresenterConfig    `json:"chime,omitempty"`
}

func (p PresenterConfig) LogEnabled() bool { return p.Log == nil || *p.Log }

type TelegramPresenterConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	// Timeout is a Go duration string. Default: "10s".
	Timeout string `json:"timeout,omitempty"`
}

type ChimePresenterConfig struct {
	Enabled     bool    `json:"enabled"`
	FrequencyHz int     `json:"frequency_hz,omitempty"` // default 880
	Duration    string  `json:"duration,omitempty"`     // default "400ms"
	Volume      float64 `json:"volume,omitempty"`       // 0..1, default 0.3
}
