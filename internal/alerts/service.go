package alerts

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"dayplan/internal/calendar"
	"dayplan/internal/eventbus"
	logx "dayplan/pkg/logx"
)

// pending is one armed alert. Timer callbacks compare pointers against
// the registry so a cancelled or replaced entry never takes effect.
type pending struct {
	point Point
	event calendar.Event
	timer Timer
}

// firing is an alert that was marked fired under the lock and still has
// to be handed to the presenter.
type firing struct {
	point Point
	event calendar.Event
}

type Option func(*Service)

// WithClock replaces the wall clock and timer source (tests, dry runs).
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithBus publishes alert.armed / alert.fired / alert.present_failed.
func WithBus(b eventbus.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// Service keeps one timer per alert key for the current day's events and
// presents each alert at most once per epoch.
type Service struct {
	src       Source
	presenter Presenter
	log       logx.Logger
	clock     Clock
	bus       eventbus.Bus

	mu      sync.Mutex
	cfg     Config
	running bool
	gen     uint64 // bumped on every Start/Stop; stale poll timers and passes compare against it
	runCtx  context.Context
	cancel  context.CancelFunc
	poll    Timer
	// cancels counts Reset/CancelForEvent calls. A pass whose snapshot was
	// fetched before a cancellation must not apply it.
	cancels uint64

	pending map[Key]*pending
	fired   map[Key]time.Time

	lastPass time.Time
	lastErr  string
	stats    Stats

	inflight sync.WaitGroup
}

func New(cfg Config, src Source, presenter Presenter, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		src:       src,
		presenter: presenter,
		log:       log.With(logx.String("comp", "alerts")),
		clock:     realClock{},
		cfg:       cfg.withDefaults(),
		pending:   map[Key]*pending{},
		fired:     map[Key]time.Time{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins polling: one pass runs before Start returns, then one
// every PollInterval. Starting a running scheduler is a no-op. The
// scheduler stops on its own when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.gen++
	gen := s.gen
	s.runCtx, s.cancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	interval := s.cfg.PollInterval
	s.mu.Unlock()

	context.AfterFunc(runCtx, func() {
		if ctx.Err() != nil {
			s.Stop()
		}
	})

	s.log.Info("scheduler started", logx.Duration("poll_interval", interval))
	_ = s.reconcile(runCtx, gen, false)

	s.mu.Lock()
	if s.running && s.gen == gen {
		s.armPollLocked(gen)
	}
	s.mu.Unlock()
}

// Stop cancels polling and every armed alert. The fired set survives so a
// later Start does not repeat alerts. Stop is idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	if s.poll != nil {
		s.poll.Stop()
		s.poll = nil
	}
	n := s.cancelAllLocked()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.log.Info("scheduler stopped", logx.Int("cancelled", n))
}

// Refresh triggers an immediate pass in the background. No-op when stopped.
func (s *Service) Refresh() {
	s.trigger(false)
}

// RefreshNow runs a pass synchronously and returns its fetch error.
// No-op when stopped.
func (s *Service) RefreshNow(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.mu.Unlock()
	return s.reconcile(ctx, gen, false)
}

// Reset starts a new epoch: every armed alert is cancelled and the fired
// set is cleared. When running, a full pass follows in the background.
func (s *Service) Reset() {
	s.mu.Lock()
	s.cancels++
	n := s.cancelAllLocked()
	f := len(s.fired)
	s.fired = map[Key]time.Time{}
	s.mu.Unlock()
	s.log.Info("scheduler reset", logx.Int("cancelled", n), logx.Int("fired_cleared", f))
	s.trigger(true)
}

// CancelForEvent drops every armed and fired alert of eventID.
func (s *Service) CancelForEvent(eventID string) {
	s.mu.Lock()
	s.cancels++
	n := 0
	for key, p := range s.pending {
		if key.EventID() == eventID {
			p.timer.Stop()
			delete(s.pending, key)
			n++
		}
	}
	for key := range s.fired {
		if key.EventID() == eventID {
			delete(s.fired, key)
		}
	}
	s.mu.Unlock()
	s.log.Debug("alerts cancelled for event", logx.String("event", eventID), logx.Int("cancelled", n))
}

// ExpireFired forgets fired keys whose fire time is before the cutoff and
// returns how many were dropped. The day rollover calls it, so the rollover
// is the epoch boundary for those keys. A cutoff well behind now (more than the
// grace window) can never cause an alert to repeat.
func (s *Service) ExpireFired(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, at := range s.fired {
		if at.Before(before) {
			delete(s.fired, key)
			n++
		}
	}
	return n
}

// Apply swaps the configuration. Interval changes apply from the next tick.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.log.Debug("scheduler config applied",
		logx.Duration("poll_interval", cfg.PollInterval),
		logx.Duration("grace_window", cfg.GraceWindow),
		logx.Int("kinds", len(cfg.Kinds)),
	)
}

// Wait blocks until background passes triggered by Refresh/Reset finish.
func (s *Service) Wait() { s.inflight.Wait() }

func (s *Service) trigger(full bool) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	gen, ctx := s.gen, s.runCtx
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		_ = s.reconcile(ctx, gen, full)
	}()
}

func (s *Service) armPollLocked(gen uint64) {
	s.poll = s.clock.AfterFunc(s.cfg.PollInterval, func() { s.tick(gen) })
}

func (s *Service) tick(gen uint64) {
	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return
	}
	ctx := s.runCtx
	s.mu.Unlock()

	_ = s.reconcile(ctx, gen, false)

	s.mu.Lock()
	if s.running && s.gen == gen {
		s.armPollLocked(gen)
	}
	s.mu.Unlock()
}

// cancelAllLocked stops every armed timer and empties the registry.
func (s *Service) cancelAllLocked() int {
	n := len(s.pending)
	for _, p := range s.pending {
		p.timer.Stop()
	}
	s.pending = map[Key]*pending{}
	return n
}

// reconcile is one pass: fetch outside the lock, then decide and mutate
// under it, then present due alerts outside it again.
func (s *Service) reconcile(ctx context.Context, gen uint64, full bool) error {
	for attempt := 1; ; attempt++ {
		stale, err := s.reconcileOnce(ctx, gen, full)
		if !stale {
			return err
		}
		if attempt == maxStaleRetries {
			s.log.Debug("calendar kept changing under the pass; left to the next one", logx.Int("attempts", attempt))
			return nil
		}
	}
}

const maxStaleRetries = 3

// reconcileOnce reports stale when a cancellation landed between fetch and
// apply; the snapshot is then dropped untouched.
func (s *Service) reconcileOnce(ctx context.Context, gen uint64, full bool) (stale bool, err error) {
	s.mu.Lock()
	cfg := s.cfg
	cancels := s.cancels
	s.mu.Unlock()

	now := s.clock.Now()
	if cfg.Location != nil {
		now = now.In(cfg.Location)
	}
	evs, err := s.fetch(ctx, cfg, now)

	s.mu.Lock()
	if s.cancels != cancels && s.running && s.gen == gen {
		s.mu.Unlock()
		return true, nil
	}
	s.stats.Passes++
	s.lastPass = now
	if err != nil {
		s.stats.FetchFailures++
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return false, err
	}

	if full && (err != nil || len(evs) == 0) {
		n := s.cancelAllLocked()
		s.fired = map[Key]time.Time{}
		s.mu.Unlock()
		s.log.Info("calendar empty or unreadable on reset; state cleared", logx.Int("cancelled", n), logx.Err(err))
		return false, err
	}
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("calendar fetch failed; pass skipped", logx.Err(err))
		return false, err
	}

	due, armed := s.applyLocked(cfg, now, evs)
	s.mu.Unlock()

	for _, p := range armed {
		s.publish(eventbus.TypeAlertArmed, p.point, p.event, nil)
	}
	for _, f := range due {
		s.present(ctx, f)
	}
	return false, nil
}

func (s *Service) fetch(ctx context.Context, cfg Config, now time.Time) ([]calendar.Event, error) {
	dates := []string{calendar.FormatDate(now)}
	if cfg.Lookahead {
		if next := calendar.FormatDate(now.Add(cfg.maxOffset())); next != dates[0] {
			dates = append(dates, next)
		}
	}

	fctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()

	var out []calendar.Event
	for _, d := range dates {
		evs, err := s.src.EventsForDate(fctx, d)
		if err != nil {
			return nil, fmt.Errorf("events for %s: %w", d, err)
		}
		out = append(out, evs...)
	}
	return out, nil
}

// applyLocked walks the snapshot and updates the registry. It returns the
// alerts that are due right now (already marked fired) and the newly armed ones.
func (s *Service) applyLocked(cfg Config, now time.Time, evs []calendar.Event) (due []firing, armed []*pending) {
	seen := make(map[string]struct{}, len(evs))
	kinds := make(map[Kind]struct{}, len(cfg.Kinds))
	for _, k := range cfg.Kinds {
		kinds[k] = struct{}{}
	}

	for _, ev := range evs {
		seen[ev.ID] = struct{}{}
		start, err := ev.StartAt(now.Location())
		if err != nil {
			s.log.Warn("skipping malformed event", logx.String("event", ev.ID), logx.Err(err))
			continue
		}
		if start.Before(now) {
			continue
		}

		for _, pt := range PointsFor(ev.ID, start, cfg.Kinds) {
			key := pt.Key()

			if firedAt, ok := s.fired[key]; ok {
				if firedAt.Equal(pt.FireAt) {
					continue
				}
				// The event moved after this alert fired; the new instant is a new alert.
				delete(s.fired, key)
			}
			if cur, ok := s.pending[key]; ok {
				if cur.point.FireAt.Equal(pt.FireAt) {
					cur.event = ev
					continue
				}
				cur.timer.Stop()
				delete(s.pending, key)
				s.log.Debug("event moved; re-arming", logx.String("key", string(key)),
					logx.Time("was", cur.point.FireAt), logx.Time("now", pt.FireAt))
			}

			delay := pt.FireAt.Sub(now)
			if delay < 0 {
				if -delay < cfg.GraceWindow {
					s.fired[key] = pt.FireAt
					s.stats.Fired++
					due = append(due, firing{point: pt, event: ev})
				}
				continue
			}

			p := &pending{point: pt, event: ev}
			p.timer = s.clock.AfterFunc(delay, func() { s.fire(p) })
			s.pending[key] = p
			armed = append(armed, p)
		}
	}

	// Drop timers of events missing from the snapshot and of kinds no longer
	// configured. Timers of events that just started are left to fire.
	for key, p := range s.pending {
		_, known := seen[p.point.EventID]
		_, enabled := kinds[p.point.Kind]
		if !known || !enabled {
			p.timer.Stop()
			delete(s.pending, key)
			s.log.Debug("pruned stale alert", logx.String("key", string(key)))
		}
	}
	return due, armed
}

func (s *Service) fire(p *pending) {
	key := p.point.Key()
	s.mu.Lock()
	if cur, ok := s.pending[key]; !ok || cur != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.fired[key] = p.point.FireAt
	s.stats.Fired++
	ctx := s.runCtx
	s.mu.Unlock()

	s.present(ctx, firing{point: p.point, event: p.event})
}

func (s *Service) present(ctx context.Context, f firing) {
	if ctx == nil {
		ctx = context.Background()
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("presenter panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("presenter panic: %v", r)
			}
		}()
		if s.presenter == nil {
			return errors.New("no presenter configured")
		}
		return s.presenter.Present(ctx, f.event, f.point.Kind, f.point.Kind.Label())
	}()

	if err != nil {
		s.mu.Lock()
		s.stats.PresentFailures++
		s.mu.Unlock()
		s.log.Error("alert presentation failed", logx.String("key", string(f.point.Key())), logx.Err(err))
		s.publish(eventbus.TypeAlertPresentFailed, f.point, f.event, err)
		return
	}
	s.log.Info("alert fired",
		logx.String("event", f.event.ID),
		logx.String("title", f.event.Title),
		logx.String("kind", f.point.Kind.String()),
	)
	s.publish(eventbus.TypeAlertFired, f.point, f.event, nil)
}

// AlertEvent is the payload of the alert.* bus events.
type AlertEvent struct {
	Key     Key
	EventID string
	Kind    Kind
	Title   string
	FireAt  time.Time
	Err     string
}

func (s *Service) publish(typ string, pt Point, ev calendar.Event, err error) {
	if s.bus == nil {
		return
	}
	ae := AlertEvent{Key: pt.Key(), EventID: pt.EventID, Kind: pt.Kind, Title: ev.Title, FireAt: pt.FireAt}
	if err != nil {
		ae.Err = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ae})
}

// Stats are cumulative counters since construction.
type Stats struct {
	Passes          uint64
	FetchFailures   uint64
	Fired           uint64
	PresentFailures uint64
}

// PendingAlert describes one armed alert.
type PendingAlert struct {
	Key    Key
	Kind   Kind
	FireAt time.Time
	Event  calendar.Event
}

type Snapshot struct {
	Running   bool
	Pending   []PendingAlert // sorted by FireAt
	FiredKeys int
	LastPass  time.Time
	LastError string
	Stats     Stats
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		Running:   s.running,
		Pending:   make([]PendingAlert, 0, len(s.pending)),
		FiredKeys: len(s.fired),
		LastPass:  s.lastPass,
		LastError: s.lastErr,
		Stats:     s.stats,
	}
	for key, p := range s.pending {
		out.Pending = append(out.Pending, PendingAlert{Key: key, Kind: p.point.Kind, FireAt: p.point.FireAt, Event: p.event})
	}
	sort.Slice(out.Pending, func(i, j int) bool {
		a, b := out.Pending[i], out.Pending[j]
		if !a.FireAt.Equal(b.FireAt) {
			return a.FireAt.Before(b.FireAt)
		}
		return a.Key < b.Key
	})
	return out
}
