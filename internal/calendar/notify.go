package calendar

import (
	"context"

	"dayplan/internal/eventbus"
)

// Notifying wraps st so every successful write publishes a Change on bus.
func Notifying(st Store, bus eventbus.Bus) Store {
	if bus == nil {
		return st
	}
	return &notifyingStore{Store: st, bus: bus}
}

type notifyingStore struct {
	Store
	bus eventbus.Bus
}

func (s *notifyingStore) publish(c Change) {
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeCalendarChanged, Data: c})
}

func (s *notifyingStore) Create(ctx context.Context, ev Event) (Event, error) {
	out, err := s.Store.Create(ctx, ev)
	if err == nil {
		s.publish(Change{Op: OpCreate, EventID: out.ID, Date: out.Date})
	}
	return out, err
}

func (s *notifyingStore) Update(ctx context.Context, ev Event) error {
	err := s.Store.Update(ctx, ev)
	if err == nil {
		s.publish(Change{Op: OpUpdate, EventID: ev.ID, Date: ev.Date})
	}
	return err
}

func (s *notifyingStore) Delete(ctx context.Context, id string) error {
	err := s.Store.Delete(ctx, id)
	if err == nil {
		s.publish(Change{Op: OpDelete, EventID: id})
	}
	return err
}

func (s *notifyingStore) ReplaceDate(ctx context.Context, date string, evs []Event) error {
	err := s.Store.ReplaceDate(ctx, date, evs)
	if err == nil {
		s.publish(Change{Op: OpReplace, Date: date})
	}
	return err
}

// Unwrap returns the underlying store.
func (s *notifyingStore) Unwrap() Store { return s.Store }
