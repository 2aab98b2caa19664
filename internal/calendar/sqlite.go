package calendar

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "dayplan/pkg/logx"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, now: time.Now}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	log.Debug("sqlite calendar opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const eventColumns = `id, date, start, end_time, title, description, source, updated_at`

func (s *sqliteStore) EventsForDate(ctx context.Context, date string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE date = ? ORDER BY start, id`, strings.TrimSpace(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, id string) (Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ev, err
}

func (s *sqliteStore) Create(ctx context.Context, ev Event) (Event, error) {
	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = uuid.NewString()
	}
	ev, err := normalizeForWrite(ev, s.now())
	if err != nil {
		return Event{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO events(`+eventColumns+`) VALUES(?,?,?,?,?,?,?,?)`, eventArgs(ev)...); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (s *sqliteStore) Update(ctx context.Context, ev Event) error {
	ev, err := normalizeForWrite(ev, s.now())
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET date=?, start=?, end_time=?, title=?, description=?, source=?, updated_at=? WHERE id=?`,
		append(eventArgs(ev)[1:], ev.ID)...)
	if err != nil {
		return err
	}
	return requireAffected(res, ev.ID)
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

func (s *sqliteStore) ReplaceDate(ctx context.Context, date string, evs []Event) error {
	if _, err := ParseDate(date, time.Local); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	now := s.now()
	norm := make([]Event, 0, len(evs))
	for _, ev := range evs {
		ev.Date = date
		if strings.TrimSpace(ev.ID) == "" {
			ev.ID = uuid.NewString()
		}
		ev, err := normalizeForWrite(ev, now)
		if err != nil {
			return err
		}
		norm = append(norm, ev)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE date = ?`, date); err != nil {
		return err
	}
	for _, ev := range norm {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events(`+eventColumns+`) VALUES(?,?,?,?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET date=excluded.date, start=excluded.start, end_time=excluded.end_time,
			 title=excluded.title, description=excluded.description, source=excluded.source, updated_at=excluded.updated_at`,
			eventArgs(ev)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (Event, error) {
	var (
		ev             Event
		end, desc, src sql.NullString
		updated        string
	)
	if err := r.Scan(&ev.ID, &ev.Date, &ev.Start, &end, &ev.Title, &desc, &src, &updated); err != nil {
		return Event{}, err
	}
	ev.End, ev.Description, ev.Source = end.String, desc.String, src.String
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		ev.UpdatedAt = t
	}
	return ev, nil
}

func eventArgs(ev Event) []any {
	return []any{
		ev.ID, ev.Date, ev.Start, nullStr(ev.End), ev.Title, nullStr(ev.Description), nullStr(ev.Source),
		ev.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
