package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
	SpecDaily
)

// ParsedSpec is a normalized schedule string.
//
// Supported forms:
//   - Cron: "0 0 * * *", "*/15 * * * *", "@midnight", "@every 6h"
//   - Interval duration: "15m", "2h30m"
//   - Daily clock time: "at 00:00", "daily:23:30"
//
// The "cron:" and "every:" prefixes force cron and interval parsing.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "daily"
}

// cronParser accepts 5- and 6-field (seconds) specs plus descriptors.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reClock = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)

	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(low, "daily:"):
		return parseDaily(strings.TrimSpace(s[len("daily:"):]))
	case strings.HasPrefix(low, "at "):
		return parseDaily(strings.TrimSpace(s[len("at "):]))
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	if reClock.MatchString(s) {
		return parseDaily(s)
	}
	if ps, err := parseInterval(s); err == nil {
		return ps, nil
	}
	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '0 0 * * *', a clock time like 'at 00:00', or a duration like '6h')",
		raw,
	)
}

func parseCron(expr string) (ParsedSpec, error) {
	if expr == "" {
		return ParsedSpec{}, fmt.Errorf("cron schedule required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
}

func parseInterval(v string) (ParsedSpec, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid interval %q (use a Go duration like '15m')", v)
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
}

func parseDaily(v string) (ParsedSpec, error) {
	h, m, err := parseHHMM(v)
	if err != nil {
		return ParsedSpec{}, err
	}
	return ParsedSpec{Kind: SpecDaily, Cron: fmt.Sprintf("%d %d * * *", m, h), Source: "daily"}, nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	m := reClock.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	if mm > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, mm, nil
}
