package presenter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	logx "dayplan/pkg/logx"
)

var standup = calendar.Event{ID: "e1", Date: "2025-03-10", Start: "09:00", End: "09:15", Title: "Standup <team>", Description: "room 4"}

func TestText(t *testing.T) {
	t.Parallel()
	if got := Text(standup, "in 15 minutes"); got != "09:00-09:15 Standup <team>: in 15 minutes" {
		t.Fatalf("Text = %q", got)
	}
	if got := Text(calendar.Event{Start: "10:00"}, "starting now"); got != "10:00 (untitled): starting now" {
		t.Fatalf("Text = %q", got)
	}
}

func TestHTMLEscapes(t *testing.T) {
	t.Parallel()
	got := HTML(standup, alerts.KindAtStart, "starting now")
	for _, want := range []string{"<b>Standup &lt;team&gt;</b>", "<code>09:00-09:15</code>", "<i>room 4</i>"} {
		if !strings.Contains(got, want) {
			t.Fatalf("HTML = %q, missing %q", got, want)
		}
	}
}

func TestWriter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := NewWriter(&buf).Present(context.Background(), standup, alerts.KindFifteenBefore, "in 15 minutes"); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "[15m] 09:00-09:15 Standup <team>: in 15 minutes\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestLogPresenter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p := NewLog(logx.NewWriter(&buf, "info"))
	if err := p.Present(context.Background(), standup, alerts.KindThirtyBefore, "in 30 minutes"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"kind":"30m"`) || !strings.Contains(out, `"event":"e1"`) {
		t.Fatalf("log = %s", out)
	}
}

type stubPresenter struct {
	calls int
	err   error
	panic bool
}

func (s *stubPresenter) Present(context.Context, calendar.Event, alerts.Kind, string) error {
	s.calls++
	if s.panic {
		panic("render")
	}
	return s.err
}

func TestFanoutJoinsErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	a, b, c := &stubPresenter{err: boom}, &stubPresenter{panic: true}, &stubPresenter{}
	f := Fanout{{"a", a}, {"b", b}, {"c", c}}

	err := f.Present(context.Background(), standup, alerts.KindAtStart, "starting now")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), "b: panic: render") {
		t.Fatalf("err = %v", err)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Fatalf("calls = %d %d %d", a.calls, b.calls, c.calls)
	}
	if got := strings.Join(f.Names(), ","); got != "a,b,c" {
		t.Fatalf("names = %q", got)
	}
	if err := (Fanout{{"c", c}}).Present(context.Background(), standup, alerts.KindAtStart, ""); err != nil {
		t.Fatalf("clean fanout err = %v", err)
	}
}

type fakeBot struct {
	mu    sync.Mutex
	fails int
	block bool
	sent  []string
	opts  []*tele.SendOptions
}

func (b *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.block {
		b.mu.Unlock()
		time.Sleep(time.Second)
		b.mu.Lock()
	}
	if b.fails > 0 {
		b.fails--
		return nil, errors.New("bad gateway")
	}
	b.sent = append(b.sent, to.Recipient()+":"+what.(string))
	if len(opts) > 0 {
		b.opts = append(b.opts, opts[0].(*tele.SendOptions))
	}
	return &tele.Message{ID: len(b.sent)}, nil
}

func TestTelegramRetriesThenSends(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{fails: 2}
	tg := newTelegram(bot, TelegramConfig{ChatID: 42, ThreadID: 7, RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond}, logx.Nop())

	if err := tg.Present(context.Background(), standup, alerts.KindAtStart, "starting now"); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if len(bot.sent) != 1 || !strings.HasPrefix(bot.sent[0], "42:") {
		t.Fatalf("sent = %v", bot.sent)
	}
	if o := bot.opts[0]; o.ThreadID != 7 || o.ParseMode != tele.ModeHTML {
		t.Fatalf("opts = %+v", o)
	}
	if tg.Sent() != 1 {
		t.Fatalf("Sent = %d", tg.Sent())
	}
}

func TestTelegramGivesUp(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{fails: 5}
	tg := newTelegram(bot, TelegramConfig{ChatID: 1, RatePerSec: 100, RetryMax: 1, RetryBase: time.Millisecond}, logx.Nop())
	if err := tg.Present(context.Background(), standup, alerts.KindAtStart, "x"); err == nil {
		t.Fatal("expected error")
	}
	if bot.fails != 3 {
		t.Fatalf("attempts = %d, want 2", 5-bot.fails)
	}
}

func TestTelegramTimeout(t *testing.T) {
	t.Parallel()
	tg := newTelegram(&fakeBot{block: true}, TelegramConfig{ChatID: 1, RatePerSec: 100, Timeout: 20 * time.Millisecond}, logx.Nop())
	err := tg.Present(context.Background(), standup, alerts.KindAtStart, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewTelegramRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := NewTelegram(TelegramConfig{}, logx.Nop()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v", err)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	t.Parallel()
	cfg := TelegramConfig{RetryBase: time.Second, RetryMaxDelay: 3 * time.Second}.withDefaults()
	for attempt := 1; attempt <= 6; attempt++ {
		if d := retryDelay(cfg, attempt); d <= 0 || d > 3*time.Second {
			t.Fatalf("attempt %d delay = %v", attempt, d)
		}
	}
}

func TestChimeTone(t *testing.T) {
	t.Parallel()
	var played [][]byte
	c := NewChime(ChimeConfig{FrequencyHz: 440, Duration: 100 * time.Millisecond, Volume: 0.2}, logx.Nop())
	c.play = func(_ context.Context, pcm []byte) error {
		played = append(played, pcm)
		return nil
	}

	for _, k := range alerts.AllKinds() {
		if err := c.Present(context.Background(), standup, k, k.Label()); err != nil {
			t.Fatal(err)
		}
	}
	// 4410 samples per beep, 2205 samples of silence between beeps, 2 bytes each.
	want := []int{2 * 4410, 2 * (2*4410 + 2205), 2 * (3*4410 + 2*2205)}
	for i, pcm := range played {
		if len(pcm) != want[i] {
			t.Fatalf("tone %d len = %d, want %d", i, len(pcm), want[i])
		}
	}

	// The fade-in makes the first sample silent.
	if played[0][0] != 0 || played[0][1] != 0 {
		t.Fatalf("first sample not faded: % x", played[0][:2])
	}
}
