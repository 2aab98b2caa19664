package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	"dayplan/internal/config"
	"dayplan/internal/eventbus"
	"dayplan/internal/runtime/supervisor"
	"dayplan/internal/schedule"
	logx "dayplan/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

const (
	openTimeout     = 30 * time.Second
	rolloverTimeout = 10 * time.Second
	resyncTimeout   = 2 * time.Minute

	jobRollover = "alerts.rollover"
	jobResync   = "calendar.resync"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	backend calendar.Store // as opened
	store   calendar.Store // publishes changes on the bus

	presenters *livePresenter
	alerts     *alerts.Service
	sched      *schedule.Service

	mu  sync.Mutex
	loc *time.Location
	hk  housekeeping
}

// New loads the config at cfgPath and builds every component. Nothing
// runs until Start.
func New(cfgPath string, opts ...alerts.Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	ac, err := mapAlertsConfig(cfg)
	if err != nil {
		return nil, err
	}
	hk, err := mapHousekeeping(cfg, ac)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogConfig(cfg))
	bus := eventbus.New()

	backend, err := openCalendar(cfg, log)
	if err != nil {
		logs.Close()
		return nil, err
	}

	fan, err := buildPresenters(cfg.Presenter, log)
	if err != nil {
		_ = backend.Close()
		logs.Close()
		return nil, err
	}
	lp := &livePresenter{}
	lp.swap(fan)

	store := calendar.Notifying(backend, bus)
	return &App{
		cfgm:       cfgm,
		log:        log.With(logx.String("comp", "app")),
		logs:       logs,
		bus:        bus,
		backend:    backend,
		store:      store,
		presenters: lp,
		alerts:     alerts.New(ac, store, lp, log, append([]alerts.Option{alerts.WithBus(bus)}, opts...)...),
		sched:      schedule.New(schedule.Config{Timezone: hk.Timezone}, log),
		loc:        ac.Location,
		hk:         hk,
	}, nil
}

func openCalendar(cfg *config.Config, log logx.Logger) (calendar.Store, error) {
	cc, err := mapCalendarConfig(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	return calendar.Open(ctx, cc, log)
}

// OpenCalendar opens the calendar named by the config at cfgPath without
// starting anything else. Used by CLI subcommands.
func OpenCalendar(cfgPath string) (calendar.Store, *config.Config, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, nil, err
	}
	st, err := openCalendar(cfg, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func (a *App) Calendar() calendar.Store  { return a.store }
func (a *App) Alerts() *alerts.Service    { return a.alerts }
func (a *App) Schedule() *schedule.Service { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) location() *time.Location {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loc
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("bus.route", func(c context.Context) {
		defer unsub()
		routeLoop(c, events, a.alerts, a.location, a.log)
	})

	a.mu.Lock()
	hk := a.hk
	a.mu.Unlock()
	if err := a.registerJobs(hk); err != nil {
		return err
	}
	a.sched.Start(run)
	a.alerts.Start(run)

	cfg := a.cfgm.Get()
	if cfg.Calendar.Watch {
		switch strings.ToLower(cfg.Calendar.Driver) {
		case config.DriverFile, config.DriverSQLite:
			path := cfg.Calendar.Path
			a.sup.GoRestart("calendar.watch", func(c context.Context) error {
				return calendar.Watch(c, path, a.bus, a.log)
			}, supervisor.WithStopOnCleanExit(false))
		default:
			a.log.Warn("calendar.watch ignored for driver", logx.String("driver", cfg.Calendar.Driver))
		}
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", func(c context.Context) { sdWatchdog(c, a.log) })

	snap := a.alerts.Snapshot()
	sdNotify(a.log, daemon.SdNotifyReady)
	sdStatus(a.log, "%d alerts armed", len(snap.Pending))
	a.log.Info("app started",
		logx.Int("armed", len(snap.Pending)),
		logx.String("presenters", strings.Join(a.presenters.names(), ",")),
	)
	return nil
}

// registerJobs upserts the housekeeping schedules.
func (a *App) registerJobs(hk housekeeping) error {
	retention := hk.Retention
	err := a.sched.AddSchedule(jobRollover, hk.Rollover, rolloverTimeout, func(context.Context) error {
		n := a.alerts.ExpireFired(time.Now().Add(-retention))
		a.alerts.Refresh()
		a.log.Info("day rollover", logx.Int("expired_fired", n))
		return nil
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", jobRollover, err)
	}

	ics, ok := a.backend.(*calendar.ICSStore)
	if hk.Resync == "" || !ok {
		a.sched.Remove(jobResync)
		return nil
	}
	err = a.sched.AddSchedule(jobResync, hk.Resync, resyncTimeout, func(ctx context.Context) error {
		err := ics.Sync(ctx)
		// Sources that did sync may have changed; refresh regardless.
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeCalendarChanged, Data: calendar.Change{Op: calendar.OpSync}})
		return err
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", jobResync, err)
	}
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
	if config.RequiresRestart(oldCfg, newCfg) {
		a.log.Warn("calendar config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if slices.Contains(sections, "scheduler") || slices.Contains(sections, "calendar") {
		ac, err := mapAlertsConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			hk, err := mapHousekeeping(newCfg, ac)
			if err != nil {
				a.log.Warn("invalid housekeeping config; keeping previous", logx.Err(err))
			} else {
				a.mu.Lock()
				a.loc, a.hk = ac.Location, hk
				a.mu.Unlock()
				a.alerts.Apply(ac)
				a.sched.Apply(schedule.Config{Timezone: hk.Timezone})
				if err := a.registerJobs(hk); err != nil {
					a.log.Warn("housekeeping jobs not updated", logx.Err(err))
				}
				a.alerts.Refresh()
			}
		}
	}

	if slices.Contains(sections, "presenter") {
		fan, err := buildPresenters(newCfg.Presenter, a.logs.Logger())
		if err != nil {
			a.log.Warn("invalid presenter config; keeping previous", logx.Err(err))
		} else {
			a.presenters.swap(fan)
		}
	}

	sdStatus(a.log, "%d alerts armed", len(a.alerts.Snapshot().Pending))
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "alerts", 2*time.Second, func(context.Context) error {
		a.alerts.Stop()
		a.alerts.Wait()
		return nil
	})
	a.step(ctx, "schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "calendar", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop. It never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped; deadline passed", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
