package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dayplan/internal/app"

	"github.com/urfave/cli"
)

const atLayout = "2006-01-02 15:04"

func plan(c *cli.Context) error {
	st, cfg, err := app.OpenCalendar(configPath(c))
	if err != nil {
		return err
	}
	defer st.Close()

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return err
		}
	}
	at := time.Now().In(loc)
	if raw := strings.TrimSpace(c.String("at")); raw != "" {
		if at, err = time.ParseInLocation(atLayout, raw, loc); err != nil {
			return fmt.Errorf("--at: want %q: %w", atLayout, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()
	w := c.App.Writer
	fmt.Fprintf(w, "as of %s\n", at.Format(time.RFC1123))
	snap, err := app.Plan(ctx, cfg, st, at, w)
	if err != nil {
		return err
	}
	if len(snap.Pending) == 0 {
		fmt.Fprintln(w, "nothing armed")
		return nil
	}
	for _, p := range snap.Pending {
		fmt.Fprintf(w, "%s  in %-9s [%s] %s %s\n",
			p.FireAt.In(loc).Format("15:04:05"),
			p.FireAt.Sub(at).Round(time.Second),
			p.Kind, p.Event.Start, p.Event.Title)
	}
	return nil
}
