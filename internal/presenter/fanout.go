package presenter

import (
	"context"
	"errors"
	"fmt"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
)

// Named tags a presenter for error messages.
type Named struct {
	Name string
	alerts.Presenter
}

// Fanout hands each alert to every presenter in order. One failing or
// panicking presenter does not stop the rest; their errors are joined.
type Fanout []Named

func (f Fanout) Present(ctx context.Context, ev calendar.Event, kind alerts.Kind, label string) error {
	var errs []error
	for _, p := range f {
		if err := presentOne(ctx, p, ev, kind, label); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Names lists the presenters in delivery order.
func (f Fanout) Names() []string {
	out := make([]string, 0, len(f))
	for _, p := range f {
		out = append(out, p.Name)
	}
	return out
}

func presentOne(ctx context.Context, p Named, ev calendar.Event, kind alerts.Kind, label string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if p.Presenter == nil {
		return nil
	}
	return p.Presenter.Present(ctx, ev, kind, label)
}
