package presenter

import (
	"context"
	"fmt"
	"io"
	"sync"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
	logx "dayplan/pkg/logx"
)

// Log writes every alert as a structured log record.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log.With(logx.String("comp", "presenter.log"))}
}

func (l *Log) Present(_ context.Context, ev calendar.Event, kind alerts.Kind, label string) error {
	l.log.Info(Text(ev, label),
		logx.String("event", ev.ID),
		logx.String("date", ev.Date),
		logx.String("kind", kind.String()),
	)
	return nil
}

// Writer prints one plain line per alert to w. Used by the CLI.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (p *Writer) Present(_ context.Context, ev calendar.Event, kind alerts.Kind, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "[%s] %s\n", kind, Text(ev, label))
	return err
}
