package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "dayplan/pkg/logx"
)

// AddSchedule parses spec (see ParseSchedule) and registers job under
// name, replacing any schedule with the same name.
func (s *Service) AddSchedule(name, spec string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	switch ps.Kind {
	case SpecInterval:
		return s.add(name, "@every "+ps.Every.String(), timeout, job)
	default:
		return s.add(name, ps.Cron, timeout, job)
	}
}

// AddDaily runs job every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.add(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

func (s *Service) add(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job, state: &runState{}})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.registerLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered",
		logx.String("name", name),
		logx.String("spec", spec),
		logx.Duration("timeout", timeout),
		logx.Time("next", s.c.Entry(d.entryID).Next),
	)
	return nil
}

// Remove unschedules name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// RunNow runs name once, outside its schedule, and returns the job error.
// It honors the overlap rule: ErrSkipped if a run is in flight.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var d *scheduleDef
	for i := range s.defs {
		if s.defs[i].name == name {
			d = &s.defs[i]
			break
		}
	}
	if d == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	name, timeout, job, st := d.name, d.timeout, d.job, d.state
	s.mu.Unlock()
	return s.execute(ctx, name, timeout, job, st)
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// registerLocked adds d to the running cron. Interval schedules get a
// randomized first run.
func (s *Service) registerLocked(d *scheduleDef) error {
	name, timeout, job, st := d.name, d.timeout, d.job, d.state
	ctx := s.runCtx
	run := cron.FuncJob(func() {
		_ = s.execute(ctx, name, timeout, job, st)
	})

	if every, ok := strings.CutPrefix(d.spec, "@every "); ok {
		if dur, err := time.ParseDuration(every); err == nil && dur > 0 {
			sched, jitter := intervalWithSpread(dur, time.Now().In(s.loc), d.name)
			d.startupSpread = jitter
			d.entryID = s.c.Schedule(sched, run)
			return nil
		}
	}
	d.startupSpread = 0
	eid, err := s.c.AddJob(d.spec, run)
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return err
	}
	d.entryID = eid
	return nil
}

func (s *Service) execute(ctx context.Context, name string, timeout time.Duration, job Job, st *runState) (err error) {
	if !st.running.CompareAndSwap(false, true) {
		st.skips.Add(1)
		s.log.Debug("previous run still in flight; skipping", logx.String("name", name))
		return ErrSkipped
	}
	defer st.running.Store(false)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		took := time.Since(start)
		st.runs.Add(1)
		item := HistoryItem{Name: name, Start: start, Took: took}
		if err != nil {
			st.failures.Add(1)
			st.lastErr.Store(err.Error())
			item.Err = err.Error()
			s.log.Warn("job failed", logx.String("name", name), logx.Duration("took", took), logx.Err(err))
		} else {
			st.lastErr.Store("")
			s.log.Debug("job done", logx.String("name", name), logx.Duration("took", took))
		}
		s.appendHistory(item)
	}()
	return job(ctx)
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}
