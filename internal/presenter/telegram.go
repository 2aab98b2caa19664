package presenter

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	logx "dayplan/pkg/logx"
)

var ErrNoToken = errors.New("telegram token is empty")

type TelegramConfig struct {
	Token      string
	ChatID     int64
	ThreadID   int
	RatePerSec int
	// Timeout bounds each Bot API call.
	Timeout       time.Duration
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c TelegramConfig) withDefaults() TelegramConfig {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}

// sender is the slice of *tele.Bot the presenter needs.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram posts alerts to one chat (optionally one forum topic).
type Telegram struct {
	bot     sender
	cfg     TelegramConfig
	limiter *rate.Limiter
	log     logx.Logger

	mu   sync.Mutex
	sent uint64
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoToken
	}
	cfg = cfg.withDefaults()
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		// Headroom over the per-call timeout so the context deadline decides.
		Client: &http.Client{Timeout: cfg.Timeout + 2*time.Second},
	})
	if err != nil {
		return nil, err
	}
	return newTelegram(b, cfg, log), nil
}

func newTelegram(bot sender, cfg TelegramConfig, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Telegram{
		bot: bot,
		cfg: cfg,
		// Token bucket: burst = rate per sec so a 30m/15m pair for two
		// back-to-back events does not queue.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log.With(logx.String("comp", "presenter.telegram")),
	}
}

func (t *Telegram) Present(ctx context.Context, ev calendar.Event, kind alerts.Kind, label string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	text := HTML(ev, kind, label)
	chat := &tele.Chat{ID: t.cfg.ChatID}
	opt := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              t.cfg.ThreadID,
	}

	attempts := 1 + t.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = t.sendOnce(ctx, chat, text, opt)
		if lastErr == nil {
			t.mu.Lock()
			t.sent++
			t.mu.Unlock()
			return nil
		}
		t.log.Debug("telegram send failed", logx.Err(lastErr), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}

		tm := time.NewTimer(retryDelay(t.cfg, attempt))
		select {
		case <-tm.C:
		case <-ctx.Done():
			tm.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// Sent reports how many alerts were delivered.
func (t *Telegram) Sent() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

// sendOnce bounds a single Bot API call; telebot itself takes no context.
func (t *Telegram) sendOnce(ctx context.Context, chat *tele.Chat, text string, opt *tele.SendOptions) error {
	cctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(chat, text, opt)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return cctx.Err()
	}
}

// retryDelay is base * 2^(attempt-1), capped, with 0.7..1.3 jitter.
func retryDelay(cfg TelegramConfig, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	return min(max(d, 0), cfg.RetryMaxDelay)
}
