package schedule

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		cron     string
		duration time.Duration
	}{
		{name: "cron", raw: "0 0 * * *", kind: SpecCron, cron: "0 0 * * *"},
		{name: "prefixed cron", raw: "cron:*/5 * * * *", kind: SpecCron, cron: "*/5 * * * *"},
		{name: "descriptor", raw: "@midnight", kind: SpecCron, cron: "@midnight"},
		{name: "duration", raw: "6h", kind: SpecInterval, duration: 6 * time.Hour},
		{name: "prefixed interval", raw: "every:45s", kind: SpecInterval, duration: 45 * time.Second},
		{name: "daily", raw: "at 23:30", kind: SpecDaily, cron: "30 23 * * *"},
		{name: "bare clock", raw: "00:05", kind: SpecDaily, cron: "5 0 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if tt.kind != SpecInterval && got.Cron != tt.cron {
				t.Fatalf("Cron = %q, want %q", got.Cron, tt.cron)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "* * *", "-5m", "at 24:00", "daily:12:60"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := parseHHMM("23:15")
	if err != nil {
		t.Fatalf("parseHHMM error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}
	if _, _, err := parseHHMM("24:00"); err == nil {
		t.Fatal("expected error for invalid hour")
	}
}
