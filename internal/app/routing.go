package app

import (
	"context"
	"time"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	"dayplan/internal/eventbus"
	logx "dayplan/pkg/logx"
)

// alertControl is the part of alerts.Service that calendar changes drive.
type alertControl interface {
	Refresh()
	Reset()
	CancelForEvent(eventID string)
}

// routeChange maps one calendar change onto the scheduler:
//   - a replaced plan for today starts a new epoch,
//   - a deleted event loses its armed and fired alerts first,
//   - everything else is a plain refresh; an edited event whose time moved
//     is re-armed by the pass itself.
func routeChange(ctl alertControl, c calendar.Change, today string) {
	switch c.Op {
	case calendar.OpReplace:
		if c.Date == today {
			ctl.Reset()
			return
		}
	case calendar.OpDelete:
		if c.EventID != "" {
			ctl.CancelForEvent(c.EventID)
		}
	}
	ctl.Refresh()
}

// routeLoop consumes the bus until ctx is done. Calendar changes go to the
// scheduler; alert events are logged.
func routeLoop(ctx context.Context, events <-chan eventbus.Event, ctl alertControl, loc func() *time.Location, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case eventbus.TypeCalendarChanged:
				c, ok := e.Data.(calendar.Change)
				if !ok {
					continue
				}
				log.Debug("calendar changed", logx.String("op", string(c.Op)), logx.String("event", c.EventID), logx.String("date", c.Date))
				routeChange(ctl, c, calendar.FormatDate(time.Now().In(loc())))
			case eventbus.TypeAlertArmed, eventbus.TypeAlertFired, eventbus.TypeAlertPresentFailed:
				if ae, ok := e.Data.(alerts.AlertEvent); ok {
					log.Debug("alert event",
						logx.String("type", e.Type),
						logx.String("key", string(ae.Key)),
						logx.Time("fire_at", ae.FireAt),
					)
				}
			}
		}
	}
}
