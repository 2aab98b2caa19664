package schedule

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	tz := s.cfg.Timezone
	loc := s.loc
	c := s.c
	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{
			Name:     d.name,
			Spec:     d.spec,
			Timeout:  d.timeout,
			Running:  d.state.running.Load(),
			Runs:     d.state.runs.Load(),
			Skips:    d.state.skips.Load(),
			Failures: d.state.failures.Load(),
		}
		if v, ok := d.state.lastErr.Load().(string); ok {
			it.LastError = v
		}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		items = append(items, it)
	}
	s.mu.Unlock()

	if tz == "" {
		if loc == nil {
			loc = time.Local
		}
		tz = loc.String()
	}

	s.hmu.Lock()
	hist := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()

	return Snapshot{Running: c != nil, Timezone: tz, Schedules: items, History: hist}
}
