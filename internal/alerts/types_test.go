package alerts

import (
	"testing"
	"time"
)

func TestParseKinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      []string
		want    []Kind
		wantErr bool
	}{
		{in: nil, want: AllKinds()},
		{in: []string{"start", "30m", "start"}, want: []Kind{KindThirtyBefore, KindAtStart}},
		{in: []string{" 15M "}, want: []Kind{KindFifteenBefore}},
		{in: []string{"1h"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseKinds(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseKinds(%v) err = %v", tt.in, err)
		}
		if tt.wantErr {
			continue
		}
		if len(got) != len(tt.want) {
			t.Fatalf("ParseKinds(%v) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("ParseKinds(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
}

func TestKeyEventID(t *testing.T) {
	t.Parallel()
	k := KeyFor("a|b@2025-01-06", KindAtStart)
	if k != "a|b@2025-01-06|start" {
		t.Fatalf("key = %q", k)
	}
	if id := k.EventID(); id != "a|b@2025-01-06" {
		t.Fatalf("EventID = %q", id)
	}
	if KeyFor("x", KindThirtyBefore) == KeyFor("x", KindFifteenBefore) {
		t.Fatal("kinds must produce distinct keys")
	}
}

func TestPointsFor(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	pts := PointsFor("e1", start, AllKinds())
	want := []time.Time{start.Add(-30 * time.Minute), start.Add(-15 * time.Minute), start}
	if len(pts) != 3 {
		t.Fatalf("points = %+v", pts)
	}
	for i, p := range pts {
		if !p.FireAt.Equal(want[i]) || p.EventID != "e1" {
			t.Fatalf("point %d = %+v", i, p)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	c := Config{}.withDefaults()
	if c.PollInterval != DefaultPollInterval || c.GraceWindow != DefaultGraceWindow || len(c.Kinds) != 3 {
		t.Fatalf("defaults = %+v", c)
	}
	if c.maxOffset() != 30*time.Minute {
		t.Fatalf("maxOffset = %v", c.maxOffset())
	}
	c = Config{Kinds: []Kind{KindAtStart}}.withDefaults()
	if c.maxOffset() != 0 {
		t.Fatalf("maxOffset = %v", c.maxOffset())
	}
}
