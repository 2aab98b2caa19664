package config

import (
	"reflect"
	"sort"
	"strings"

	logx "dayplan/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		s := newCfg.Scheduler
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.poll_interval", strings.TrimSpace(s.PollInterval)),
			logx.String("scheduler.grace_window", strings.TrimSpace(s.GraceWindow)),
			logx.String("scheduler.kinds", strings.Join(s.Kinds, ",")),
			logx.String("scheduler.timezone", strings.TrimSpace(s.Timezone)),
			logx.String("scheduler.rollover", strings.TrimSpace(s.Rollover)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Calendar, newCfg.Calendar) {
		c := newCfg.Calendar
		sources := 0
		if c.ICS != nil {
			sources = len(c.ICS.Sources)
		}
		changed = append(changed, "calendar")
		attrs = append(attrs,
			logx.String("calendar.driver", strings.TrimSpace(c.Driver)),
			logx.Bool("calendar.path_set", strings.TrimSpace(c.Path) != ""),
			logx.Bool("calendar.watch", c.Watch),
			logx.Int("calendar.ics_sources", sources),
		)
	}

	if !reflect.DeepEqual(oldCfg.Presenter, newCfg.Presenter) {
		p := newCfg.Presenter
		changed = append(changed, "presenter")
		attrs = append(attrs,
			logx.Bool("presenter.log", p.LogEnabled()),
			logx.Bool("presenter.telegram", p.Telegram != nil && p.Telegram.Enabled),
			logx.Bool("presenter.chime", p.Chime != nil && p.Chime.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RequiresRestart reports whether a change touches settings that are only
// read at startup (the calendar backend). Those are logged, not applied.
func RequiresRestart(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	o, n := oldCfg.Calendar, newCfg.Calendar
	var oSrc, nSrc []ICSSource
	if o.ICS != nil {
		oSrc = o.ICS.Sources
	}
	if n.ICS != nil {
		nSrc = n.ICS.Sources
	}
	return !reflect.DeepEqual(oSrc, nSrc) || !strings.EqualFold(strings.TrimSpace(o.Driver), strings.TrimSpace(n.Driver)) ||
		strings.TrimSpace(o.Path) != strings.TrimSpace(n.Path) ||
		strings.TrimSpace(o.BusyTimeout) != strings.TrimSpace(n.BusyTimeout)
}
