package app

import (
	"context"
	"errors"
	"sync/atomic"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	"dayplan/internal/config"
	"dayplan/internal/presenter"
	logx "dayplan/pkg/logx"
)

// livePresenter lets a config reload swap presenters under a running
// scheduler.
type livePresenter struct {
	cur atomic.Pointer[presenter.Fanout]
}

func (l *livePresenter) Present(ctx context.Context, ev calendar.Event, kind alerts.Kind, label string) error {
	f := l.cur.Load()
	if f == nil || len(*f) == 0 {
		return errors.New("no presenter enabled")
	}
	return f.Present(ctx, ev, kind, label)
}

func (l *livePresenter) swap(f presenter.Fanout) { l.cur.Store(&f) }

func (l *livePresenter) names() []string {
	if f := l.cur.Load(); f != nil {
		return f.Names()
	}
	return nil
}

// newTelegram is replaced in tests; the real constructor calls getMe.
var newTelegram = func(cfg presenter.TelegramConfig, log logx.Logger) (alerts.Presenter, error) {
	return presenter.NewTelegram(cfg, log)
}

func buildPresenters(pc config.PresenterConfig, log logx.Logger) (presenter.Fanout, error) {
	var out presenter.Fanout
	if pc.LogEnabled() {
		out = append(out, presenter.Named{Name: "log", Presenter: presenter.NewLog(log)})
	}
	if tc := pc.Telegram; tc != nil && tc.Enabled {
		cfg, err := mapTelegramConfig(tc)
		if err != nil {
			return nil, err
		}
		tg, err := newTelegram(cfg, log)
		if err != nil {
			return nil, err
		}
		out = append(out, presenter.Named{Name: "telegram", Presenter: tg})
	}
	if cc := pc.Chime; cc != nil && cc.Enabled {
		cfg, err := mapChimeConfig(cc)
		if err != nil {
			return nil, err
		}
		out = append(out, presenter.Named{Name: "chime", Presenter: presenter.NewChime(cfg, log)})
	}
	return out, nil
}
