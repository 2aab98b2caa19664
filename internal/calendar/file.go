package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "dayplan/pkg/logx"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const fileFormatVersion = 1

// fileDoc is the on-disk layout of the file driver.
type fileDoc struct {
	Version int     `json:"version"`
	Events  []Event `json:"events"`
}

// FileStore keeps the calendar as one JSON document. Every read loads the
// document so edits made by other processes are seen on the next poll;
// every write rewrites it atomically (temp file + rename).
type FileStore struct {
	fs   afero.Fs
	path string
	log  logx.Logger
	now  func() time.Time

	mu sync.Mutex
}

// OpenFile opens (or initializes) a JSON calendar at path on fs.
func OpenFile(fs afero.Fs, path string, log logx.Logger) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("calendar.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	st := &FileStore{fs: fs, path: path, log: log, now: time.Now}

	ok, err := afero.Exists(fs, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := st.save(&fileDoc{Version: fileFormatVersion}); err != nil {
			return nil, err
		}
	} else if _, err := st.load(); err != nil {
		return nil, err
	}
	return st, nil
}

// Path returns the document path (used by the change watcher).
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() (*fileDoc, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &fileDoc{Version: fileFormatVersion}, nil
		}
		return nil, err
	}
	doc := &fileDoc{}
	if len(strings.TrimSpace(string(b))) == 0 {
		doc.Version = fileFormatVersion
		return doc, nil
	}
	if err := json.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc.Version > fileFormatVersion {
		return nil, fmt.Errorf("%s: unsupported format version %d", s.path, doc.Version)
	}
	return doc, nil
}

func (s *FileStore) save(doc *fileDoc) error {
	doc.Version = fileFormatVersion
	SortByStart(doc.Events)
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	f, err := afero.TempFile(s.fs, filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

// mutate runs fn on the loaded document and saves it when fn succeeds.
func (s *FileStore) mutate(fn func(doc *fileDoc) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

func (s *FileStore) EventsForDate(ctx context.Context, date string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	doc, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	date = strings.TrimSpace(date)
	var out []Event
	for _, ev := range doc.Events {
		if ev.Date == date {
			out = append(out, ev)
		}
	}
	SortByStart(out)
	return out, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	doc, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return Event{}, err
	}
	if i := indexOf(doc.Events, id); i >= 0 {
		return doc.Events[i], nil
	}
	return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *FileStore) Create(ctx context.Context, ev Event) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = uuid.NewString()
	}
	ev, err := normalizeForWrite(ev, s.now())
	if err != nil {
		return Event{}, err
	}
	err = s.mutate(func(doc *fileDoc) error {
		if indexOf(doc.Events, ev.ID) >= 0 {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidEvent, ev.ID)
		}
		doc.Events = append(doc.Events, ev)
		return nil
	})
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (s *FileStore) Update(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev, err := normalizeForWrite(ev, s.now())
	if err != nil {
		return err
	}
	return s.mutate(func(doc *fileDoc) error {
		i := indexOf(doc.Events, ev.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, ev.ID)
		}
		doc.Events[i] = ev
		return nil
	})
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.mutate(func(doc *fileDoc) error {
		i := indexOf(doc.Events, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		doc.Events = append(doc.Events[:i], doc.Events[i+1:]...)
		return nil
	})
}

func (s *FileStore) ReplaceDate(ctx context.Context, date string, evs []Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := ParseDate(date, time.Local); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	now := s.now()
	norm := make([]Event, 0, len(evs))
	ids := make(map[string]struct{}, len(evs))
	for _, ev := range evs {
		ev.Date = date
		if strings.TrimSpace(ev.ID) == "" {
			ev.ID = uuid.NewString()
		}
		ev, err := normalizeForWrite(ev, now)
		if err != nil {
			return err
		}
		ids[ev.ID] = struct{}{}
		norm = append(norm, ev)
	}
	return s.mutate(func(doc *fileDoc) error {
		kept := doc.Events[:0]
		for _, ev := range doc.Events {
			if _, replaced := ids[ev.ID]; ev.Date == date || replaced {
				continue
			}
			kept = append(kept, ev)
		}
		doc.Events = append(kept, norm...)
		return nil
	})
}

func indexOf(evs []Event, id string) int {
	for i, ev := range evs {
		if ev.ID == id {
			return i
		}
	}
	return -1
}
