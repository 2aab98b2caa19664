package calendar

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dayplan/internal/eventbus"
	logx "dayplan/pkg/logx"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 300 * time.Millisecond

// Watch publishes an OpExternal change whenever the file at path is written
// by someone else (an editor, a sync tool, another dayplan process). Bursts
// of events are debounced into one change. Watch returns when ctx is done
// or the watcher breaks; callers run it under a restarting supervisor.
func Watch(ctx context.Context, path string, bus eventbus.Bus, log logx.Logger) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("calendar watch init: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("calendar watch %s: %w", dir, err)
	}
	log.Debug("calendar watcher started", logx.String("path", path))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()
	fire := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			log.Debug("calendar file changed", logx.String("path", path))
			bus.Publish(eventbus.Event{Type: eventbus.TypeCalendarChanged, Data: Change{Op: OpExternal}})
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("calendar watch: events channel closed")
			}
			// Sqlite writes go to the -wal/-journal siblings.
			name := filepath.Base(ev.Name)
			if name != file && !strings.HasPrefix(name, file+"-") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				fire()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("calendar watch: errors channel closed")
			}
			log.Warn("calendar watch error", logx.Err(err))
		}
	}
}
