package calendar

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	logx "dayplan/pkg/logx"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cal", "dayplan.db")
	st, err := Open(ctx, Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	a, err := st.Create(ctx, Event{Date: "2025-03-10", Start: "14:00", End: "15:00", Title: "Review"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.Create(ctx, Event{ID: "early", Date: "2025-03-10", Start: "8:15", Title: "Gym", Description: "legs"}); err != nil {
		t.Fatalf("Create early: %v", err)
	}

	evs, err := st.EventsForDate(ctx, "2025-03-10")
	if err != nil {
		t.Fatalf("EventsForDate: %v", err)
	}
	if len(evs) != 2 || evs[0].ID != "early" || evs[1].ID != a.ID {
		t.Fatalf("events = %+v", evs)
	}
	if evs[0].Description != "legs" || evs[1].End != "15:00" {
		t.Fatalf("optional fields lost: %+v", evs)
	}

	a.Title = "Design review"
	if err := st.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := st.Get(ctx, a.ID)
	if err != nil || got.Title != "Design review" {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	if err := st.ReplaceDate(ctx, "2025-03-10", []Event{{ID: "early", Start: "07:00", Title: "Run"}}); err != nil {
		t.Fatalf("ReplaceDate: %v", err)
	}
	evs, _ = st.EventsForDate(ctx, "2025-03-10")
	if len(evs) != 1 || evs[0].Title != "Run" {
		t.Fatalf("after replace = %+v", evs)
	}

	if err := st.Delete(ctx, "early"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Get(ctx, "early"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get deleted err = %v", err)
	}
	if err := st.Delete(ctx, "early"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete twice err = %v", err)
	}
	if _, err := st.Create(ctx, Event{Date: "2025-03-10", Start: "x", Title: "bad"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("invalid create err = %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
