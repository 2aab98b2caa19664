package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	"dayplan/internal/config"
	"dayplan/internal/presenter"
	logx "dayplan/pkg/logx"

	"github.com/spf13/afero"
)

func TestMapAlertsConfigDefaults(t *testing.T) {
	ac, err := mapAlertsConfig(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if ac.PollInterval != alerts.DefaultPollInterval || ac.GraceWindow != alerts.DefaultGraceWindow || ac.FetchTimeout != alerts.DefaultFetchTimeout {
		t.Fatalf("durations = %+v", ac)
	}
	if len(ac.Kinds) != 3 || !ac.Lookahead || ac.Location != time.Local {
		t.Fatalf("config = %+v", ac)
	}

	off := false
	ac, err = mapAlertsConfig(&config.Config{Scheduler: config.SchedulerConfig{
		Kinds:     []string{"start", "30m"},
		Lookahead: &off,
		Timezone:  "UTC",
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ac.Kinds, []alerts.Kind{alerts.KindThirtyBefore, alerts.KindAtStart}) || ac.Lookahead || ac.Location != time.UTC {
		t.Fatalf("config = %+v", ac)
	}
}

func TestMapAlertsConfigErrors(t *testing.T) {
	cases := map[string]config.SchedulerConfig{
		"kind":     {Kinds: []string{"5m"}},
		"timezone": {Timezone: "Mars/Olympus"},
		"duration": {PollInterval: "soon"},
	}
	for name, sc := range cases {
		if _, err := mapAlertsConfig(&config.Config{Scheduler: sc}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestMapHousekeeping(t *testing.T) {
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{FiredRetention: "1s", PollInterval: "1m"},
		Calendar:  config.CalendarConfig{Driver: "file", Path: "x"},
	}
	ac, _ := mapAlertsConfig(cfg)
	hk, err := mapHousekeeping(cfg, ac)
	if err != nil {
		t.Fatal(err)
	}
	if hk.Rollover != defaultRollover || hk.Resync != "" {
		t.Fatalf("hk = %+v", hk)
	}
	if want := ac.GraceWindow + ac.PollInterval; hk.Retention != want {
		t.Fatalf("retention = %s, want clamp to %s", hk.Retention, want)
	}

	cfg.Calendar = config.CalendarConfig{Driver: "ics", ICS: &config.ICSConfig{Sources: []config.ICSSource{{URL: "x.ics"}}}}
	if hk, _ = mapHousekeeping(cfg, ac); hk.Resync != defaultResync {
		t.Fatalf("resync = %q", hk.Resync)
	}
	cfg.Calendar.ICS.Resync = "not a schedule at all"
	if _, err := mapHousekeeping(cfg, ac); err == nil {
		t.Fatal("expected resync error")
	}
	cfg.Calendar.ICS.Resync = ""
	cfg.Scheduler.Rollover = "99:99"
	if _, err := mapHousekeeping(cfg, ac); err == nil {
		t.Fatal("expected rollover error")
	}
}

type ctlRecorder struct{ calls []string }

func (r *ctlRecorder) Refresh()                  { r.calls = append(r.calls, "refresh") }
func (r *ctlRecorder) Reset()                    { r.calls = append(r.calls, "reset") }
func (r *ctlRecorder) CancelForEvent(id string) { r.calls = append(r.calls, "cancel:"+id) }

func TestRouteChange(t *testing.T) {
	const today = "2025-03-10"
	cases := []struct {
		c    calendar.Change
		want string
	}{
		{calendar.Change{Op: calendar.OpCreate, EventID: "a", Date: today}, "refresh"},
		{calendar.Change{Op: calendar.OpUpdate, EventID: "a", Date: today}, "refresh"},
		{calendar.Change{Op: calendar.OpDelete, EventID: "a"}, "cancel:a,refresh"},
		{calendar.Change{Op: calendar.OpReplace, Date: today}, "reset"},
		{calendar.Change{Op: calendar.OpReplace, Date: "2025-03-11"}, "refresh"},
		{calendar.Change{Op: calendar.OpExternal}, "refresh"},
		{calendar.Change{Op: calendar.OpSync}, "refresh"},
	}
	for _, tc := range cases {
		r := &ctlRecorder{}
		routeChange(r, tc.c, today)
		if got := strings.Join(r.calls, ","); got != tc.want {
			t.Errorf("%+v: got %q, want %q", tc.c, got, tc.want)
		}
	}
}

func TestBuildPresenters(t *testing.T) {
	orig := newTelegram
	t.Cleanup(func() { newTelegram = orig })

	var gotCfg presenter.TelegramConfig
	newTelegram = func(cfg presenter.TelegramConfig, _ logx.Logger) (alerts.Presenter, error) {
		gotCfg = cfg
		return presenter.NewLog(logx.Nop()), nil
	}

	off := false
	fan, err := buildPresenters(config.PresenterConfig{
		Log:      &off,
		Telegram: &config.TelegramPresenterConfig{Enabled: true, Token: "t", ChatID: 7, Timeout: "3s"},
		Chime:    &config.ChimePresenterConfig{Enabled: true},
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(fan.Names(), ","); got != "telegram,chime" {
		t.Fatalf("names = %q", got)
	}
	if gotCfg.ChatID != 7 || gotCfg.Timeout != 3*time.Second {
		t.Fatalf("telegram cfg = %+v", gotCfg)
	}

	newTelegram = func(presenter.TelegramConfig, logx.Logger) (alerts.Presenter, error) {
		return nil, errors.New("unauthorized")
	}
	if _, err := buildPresenters(config.PresenterConfig{
		Telegram: &config.TelegramPresenterConfig{Enabled: true, Token: "t", ChatID: 7},
	}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLivePresenterWithoutPresenters(t *testing.T) {
	lp := &livePresenter{}
	if err := lp.Present(context.Background(), calendar.Event{}, alerts.KindAtStart, "now"); err == nil {
		t.Fatal("expected error")
	}
	lp.swap(presenter.Fanout{{Name: "log", Presenter: presenter.NewLog(logx.Nop())}})
	if err := lp.Present(context.Background(), calendar.Event{}, alerts.KindAtStart, "now"); err != nil {
		t.Fatal(err)
	}
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	body := strings.Join([]string{
		"logging:",
		"  level: error",
		"calendar:",
		"  driver: file",
		"  path: " + filepath.Join(dir, "calendar.json"),
		"presenter:",
		"  log: true",
		"",
	}, "\n")
	path := filepath.Join(dir, "dayplan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitPending(t *testing.T, svc *alerts.Service, n int) alerts.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap := svc.Snapshot()
		if len(snap.Pending) == n {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("pending = %d, want %d: %+v", len(snap.Pending), n, snap.Pending)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAppArmsAlertsForCalendarWrites(t *testing.T) {
	a, err := New(writeConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = a.Stop(stopCtx, StopSIGTERM)
	}()

	if !a.Alerts().Snapshot().Running {
		t.Fatal("scheduler not running")
	}
	waitPending(t, a.Alerts(), 0)

	// 30m is already behind; 15m and start are ahead.
	start := time.Now().Add(20 * time.Minute).Truncate(time.Minute)
	ev, err := a.Calendar().Create(ctx, calendar.Event{
		Date:  calendar.FormatDate(start),
		Start: start.Format("15:04"),
		Title: "Review",
	})
	if err != nil {
		t.Fatal(err)
	}
	snap := waitPending(t, a.Alerts(), 2)
	for _, p := range snap.Pending {
		if p.Key.EventID() != ev.ID || p.Kind == alerts.KindThirtyBefore {
			t.Fatalf("unexpected pending %+v", p)
		}
	}

	if err := a.Calendar().Delete(ctx, ev.ID); err != nil {
		t.Fatal(err)
	}
	waitPending(t, a.Alerts(), 0)

	if names := a.Schedule().Snapshot().Schedules; len(names) == 0 {
		t.Fatal("rollover job not registered")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("calendar:\n  driver: file\n  path: x\nscheduler:\n  kinds: [\"5m\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestPlanDryRun(t *testing.T) {
	ctx := context.Background()
	st, err := calendar.OpenFile(afero.NewMemMapFs(), "/cal.json", logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Create(ctx, calendar.Event{Date: "2025-03-10", Start: "10:00", Title: "Review"}); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Timezone: "UTC"}}

	var out bytes.Buffer
	snap, err := Plan(ctx, cfg, st, time.Date(2025, 3, 10, 9, 30, 2, 0, time.UTC), &out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "[30m]") || !strings.Contains(out.String(), "Review") {
		t.Fatalf("due output = %q", out.String())
	}
	if len(snap.Pending) != 2 || snap.Pending[0].Kind != alerts.KindFifteenBefore {
		t.Fatalf("pending = %+v", snap.Pending)
	}
}
