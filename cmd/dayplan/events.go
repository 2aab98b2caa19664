package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"dayplan/internal/app"
	"dayplan/internal/calendar"

	"github.com/urfave/cli"
)

const cmdTimeout = 30 * time.Second

func dateArg(c *cli.Context) (string, error) {
	d := strings.TrimSpace(c.String("date"))
	if d == "" {
		return calendar.FormatDate(time.Now()), nil
	}
	if _, err := calendar.ParseDate(d, time.Local); err != nil {
		return "", err
	}
	return d, nil
}

func withCalendar(c *cli.Context, fn func(ctx context.Context, st calendar.Store) error) error {
	st, _, err := app.OpenCalendar(configPath(c))
	if err != nil {
		return err
	}
	defer st.Close()
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()
	return fn(ctx, st)
}

func eventsList(c *cli.Context) error {
	date, err := dateArg(c)
	if err != nil {
		return err
	}
	return withCalendar(c, func(ctx context.Context, st calendar.Store) error {
		evs, err := st.EventsForDate(ctx, date)
		if err != nil {
			return err
		}
		if len(evs) == 0 {
			fmt.Fprintf(c.App.Writer, "no events on %s\n", date)
			return nil
		}
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTART\tEND\tTITLE")
		for _, ev := range evs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.ID, ev.Start, ev.End, ev.Title)
		}
		return tw.Flush()
	})
}

func eventsAdd(c *cli.Context) error {
	date, err := dateArg(c)
	if err != nil {
		return err
	}
	ev := calendar.Event{
		ID:          strings.TrimSpace(c.String("id")),
		Date:        date,
		Start:       c.String("start"),
		End:         c.String("end"),
		Title:       c.String("title"),
		Description: c.String("description"),
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	return withCalendar(c, func(ctx context.Context, st calendar.Store) error {
		ev, err := st.Create(ctx, ev)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, ev.ID)
		return nil
	})
}

func eventsRemove(c *cli.Context) error {
	ids := c.Args()
	if len(ids) == 0 {
		return errors.New("at least one event id is required")
	}
	return withCalendar(c, func(ctx context.Context, st calendar.Store) error {
		var errs []error
		for _, id := range ids {
			if err := st.Delete(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
			}
		}
		return errors.Join(errs...)
	})
}

func eventsReplace(c *cli.Context) error {
	date, err := dateArg(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return errors.New("exactly one json file (or - for stdin) is required")
	}
	var r io.Reader = os.Stdin
	if name := c.Args().First(); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	var evs []calendar.Event
	if err := json.NewDecoder(r).Decode(&evs); err != nil {
		return fmt.Errorf("decode events: %w", err)
	}
	for i := range evs {
		evs[i].Date = date
	}
	return withCalendar(c, func(ctx context.Context, st calendar.Store) error {
		if err := st.ReplaceDate(ctx, date, evs); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "replaced %s with %d events\n", date, len(evs))
		return nil
	})
}
