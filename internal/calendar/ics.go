package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	logx "dayplan/pkg/logx"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

const defaultICSFetchTimeout = 30 * time.Second

// icsEvent is a parsed VEVENT before recurrence expansion.
type icsEvent struct {
	UID         string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	RRule       string
	ExDates     []time.Time
	// RecurrenceID is set on overrides of a single recurring instance.
	RecurrenceID time.Time
	Cancelled    bool
}

// ICSStore serves events from iCalendar feeds. It is read-only; Sync
// refetches every source and replaces the cached events of each source
// that loaded successfully.
type ICSStore struct {
	sources []Source
	timeout time.Duration
	client  *http.Client
	log     logx.Logger

	mu       sync.RWMutex
	bySource map[string][]icsEvent
	synced   time.Time
}

func NewICS(sources []Source, timeout time.Duration, log logx.Logger) *ICSStore {
	if timeout <= 0 {
		timeout = defaultICSFetchTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ICSStore{
		sources:  sources,
		timeout:  timeout,
		client:   &http.Client{},
		log:      log,
		bySource: map[string][]icsEvent{},
	}
}

func (s *ICSStore) Close() error { return nil }

// LastSync returns when Sync last loaded at least one source.
func (s *ICSStore) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Sync refetches all sources. Sources that fail keep their previous events.
func (s *ICSStore) Sync(ctx context.Context) error {
	var errs []error
	loaded := 0
	for _, src := range s.sources {
		evs, err := s.fetch(ctx, src)
		if err != nil {
			s.log.Warn("ics source failed", logx.String("source", src.Name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		s.mu.Lock()
		s.bySource[src.Name] = evs
		s.mu.Unlock()
		loaded++
		s.log.Debug("ics source loaded", logx.String("source", src.Name), logx.Int("events", len(evs)))
	}
	if loaded > 0 {
		s.mu.Lock()
		s.synced = time.Now()
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (s *ICSStore) fetch(ctx context.Context, src Source) ([]icsEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	loc := strings.TrimSpace(src.URL)
	var body []byte
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http get: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("http status %d", resp.StatusCode)
		}
		if body, err = io.ReadAll(resp.Body); err != nil {
			return nil, err
		}
	} else {
		var err error
		if body, err = os.ReadFile(strings.TrimPrefix(loc, "file://")); err != nil {
			return nil, err
		}
	}
	return parseICS(bytes.NewReader(body), s.log)
}

// parseICS decodes every VCALENDAR in r and returns its VEVENTs.
// Events without UID or DTSTART are skipped.
func parseICS(r io.Reader, log logx.Logger) ([]icsEvent, error) {
	dec := ical.NewDecoder(r)
	var out []icsEvent
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}
		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			ev, err := parseVEvent(comp)
			if err != nil {
				log.Debug("ics event skipped", logx.Err(err))
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

func parseVEvent(comp *ical.Component) (icsEvent, error) {
	var ev icsEvent
	if p := comp.Props.Get(ical.PropUID); p != nil {
		ev.UID = strings.TrimSpace(p.Value)
	}
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		ev.Title = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		ev.Description = p.Value
	}
	if p := comp.Props.Get(ical.PropStatus); p != nil {
		ev.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return ev, fmt.Errorf("%s: missing DTSTART", ev.UID)
	}
	var err error
	if ev.Start, ev.AllDay, err = propTime(start); err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", ev.UID, err)
	}
	if p := comp.Props.Get(ical.PropDateTimeEnd); p != nil {
		if t, _, err := propTime(p); err == nil {
			ev.End = t
		}
	}
	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil {
		ev.RRule = strings.TrimSpace(p.Value)
	}
	for _, p := range comp.Props.Values(ical.PropExceptionDates) {
		tzid := p.Params.Get(ical.ParamTimezoneID)
		for _, raw := range strings.Split(p.Value, ",") {
			if t, _, err := parseICSTime(raw, tzid); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := comp.Props.Get(ical.PropRecurrenceID); p != nil {
		if t, _, err := propTime(p); err == nil {
			ev.RecurrenceID = t
		}
	}
	return ev, nil
}

func propTime(p *ical.Prop) (time.Time, bool, error) {
	return parseICSTime(p.Value, p.Params.Get(ical.ParamTimezoneID))
}

// parseICSTime handles the three RFC 5545 forms: DATE, UTC DATE-TIME and
// floating/TZID DATE-TIME. Floating times and unknown zones use time.Local.
func parseICSTime(raw, tzid string) (t time.Time, allDay bool, err error) {
	raw = strings.TrimSpace(raw)
	loc := time.Local
	if tzid != "" {
		if l, lerr := time.LoadLocation(tzid); lerr == nil {
			loc = l
		}
	}
	switch {
	case len(raw) == 8:
		t, err = time.ParseInLocation("20060102", raw, loc)
		return t, true, err
	case strings.HasSuffix(raw, "Z"):
		t, err = time.Parse("20060102T150405Z", raw)
		return t, false, err
	default:
		t, err = time.ParseInLocation("20060102T150405", raw, loc)
		return t, false, err
	}
}

// EventsForDate expands every cached VEVENT into its occurrences on date.
// Occurrence ids are UID@date so each recurring instance is distinct.
func (s *ICSStore) EventsForDate(ctx context.Context, date string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	day, err := ParseDate(date, time.Local)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for name, evs := range s.bySource {
		out = append(out, expandDay(name, evs, day)...)
	}
	SortByStart(out)
	return out, nil
}

func expandDay(source string, evs []icsEvent, day time.Time) []Event {
	dayEnd := day.AddDate(0, 0, 1)

	// Overrides replace the master's occurrence at their RECURRENCE-ID.
	overridden := map[string][]time.Time{}
	for _, ev := range evs {
		if !ev.RecurrenceID.IsZero() {
			overridden[ev.UID] = append(overridden[ev.UID], ev.RecurrenceID)
		}
	}

	var out []Event
	emit := func(ev icsEvent, start time.Time) {
		if ev.Cancelled || ev.AllDay {
			return
		}
		start = start.In(time.Local)
		if start.Before(day) || !start.Before(dayEnd) {
			return
		}
		e := Event{
			ID:          ev.UID + "@" + FormatDate(start),
			Date:        FormatDate(start),
			Start:       start.Format(clockLayoutHMS),
			Title:       ev.Title,
			Description: ev.Description,
			Source:      source,
		}
		if !ev.End.IsZero() {
			end := start.Add(ev.End.Sub(ev.Start))
			if FormatDate(end) == e.Date {
				e.End = end.Format(clockLayoutHMS)
			}
		}
		e.Start = canonicalClock(e.Start)
		e.End = canonicalClock(e.End)
		out = append(out, e)
	}

	for _, ev := range evs {
		if !ev.RecurrenceID.IsZero() || ev.RRule == "" {
			emit(ev, ev.Start)
			continue
		}
		r, err := rrule.StrToRRule(ev.RRule)
		if err != nil {
			continue
		}
		r.DTStart(ev.Start)
		var set rrule.Set
		set.RRule(r)
		for _, ex := range ev.ExDates {
			set.ExDate(ex.In(ev.Start.Location()))
		}
		for _, rid := range overridden[ev.UID] {
			set.ExDate(rid.In(ev.Start.Location()))
		}
		from := day.In(ev.Start.Location())
		to := dayEnd.Add(-time.Nanosecond).In(ev.Start.Location())
		for _, occ := range set.Between(from, to, true) {
			emit(ev, occ)
		}
	}
	return out
}

func (s *ICSStore) Get(ctx context.Context, id string) (Event, error) {
	// UIDs often contain '@' themselves; the date is after the last one.
	i := strings.LastIndex(id, "@")
	if i <= 0 {
		return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	evs, err := s.EventsForDate(ctx, id[i+1:])
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for _, ev := range evs {
		if ev.ID == id {
			return ev, nil
		}
	}
	return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *ICSStore) Create(context.Context, Event) (Event, error) { return Event{}, ErrReadOnly }
func (s *ICSStore) Update(context.Context, Event) error          { return ErrReadOnly }
func (s *ICSStore) Delete(context.Context, string) error         { return ErrReadOnly }
func (s *ICSStore) ReplaceDate(context.Context, string, []Event) error {
	return ErrReadOnly
}
