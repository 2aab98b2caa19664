package app

import (
	"context"
	"errors"
	"io"
	"time"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	"dayplan/internal/config"
	"dayplan/internal/presenter"
	logx "dayplan/pkg/logx"
)

// Plan runs one scheduling pass as of at without arming real timers.
// Alerts due at that instant are written to w; the rest are returned.
func Plan(ctx context.Context, cfg *config.Config, src calendar.Reader, at time.Time, w io.Writer) (alerts.Snapshot, error) {
	ac, err := mapAlertsConfig(cfg)
	if err != nil {
		return alerts.Snapshot{}, err
	}
	svc := alerts.New(ac, src, presenter.NewWriter(w), logx.Nop(), alerts.WithClock(alerts.FrozenClock(at)))
	svc.Start(ctx)
	defer svc.Stop()
	snap := svc.Snapshot()
	if snap.Stats.FetchFailures > 0 {
		return snap, errors.New(snap.LastError)
	}
	return snap, nil
}
