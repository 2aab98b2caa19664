package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "dayplan/pkg/logx"
)

func TestRunNowRecordsOutcome(t *testing.T) {
	s := New(Config{}, logx.Nop())
	boom := errors.New("boom")
	if err := s.AddSchedule("fail", "@midnight", time.Second, func(context.Context) error { return boom }); err != nil {
		t.Fatal(err)
	}
	if err := s.AddDaily("panic", "03:00", time.Second, func(context.Context) error { panic("bad") }); err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "fail"); !errors.Is(err, boom) {
		t.Fatalf("fail err = %v", err)
	}
	if err := s.RunNow(context.Background(), "panic"); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if err := s.RunNow(context.Background(), "ghost"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("ghost err = %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 2 || len(snap.History) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	for _, it := range snap.Schedules {
		if it.Runs != 1 || it.Failures != 1 || it.LastError == "" {
			t.Fatalf("schedule %s = %+v", it.Name, it)
		}
	}
	if snap.Schedules[1].Spec != "0 3 * * *" {
		t.Fatalf("daily spec = %q", snap.Schedules[1].Spec)
	}
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := New(Config{}, logx.Nop())
	_ = s.AddSchedule("slow", "1h", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.RunNow(context.Background(), "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s := New(Config{}, logx.Nop())
	release := make(chan struct{})
	started := make(chan struct{})
	_ = s.AddSchedule("block", "1h", 0, func(context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "block") }()
	<-started

	if err := s.RunNow(context.Background(), "block"); !errors.Is(err, ErrSkipped) {
		t.Fatalf("overlap err = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if it := s.Snapshot().Schedules[0]; it.Skips != 1 || it.Runs != 1 {
		t.Fatalf("info = %+v", it)
	}
}

func TestAddReplacesAndRemove(t *testing.T) {
	s := New(Config{}, logx.Nop())
	job := func(context.Context) error { return nil }
	_ = s.AddSchedule("x", "1h", 0, job)
	_ = s.AddSchedule("x", "2h", 0, job)
	if snap := s.Snapshot(); len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "@every 2h0m0s" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if !s.Remove("x") || s.Remove("x") {
		t.Fatal("Remove should report only the first removal")
	}
	if err := s.AddSchedule("", "1h", 0, job); err == nil {
		t.Fatal("expected name error")
	}
	if err := s.AddDaily("bad", "25:00", 0, job); err == nil {
		t.Fatal("expected clock error")
	}
}

func TestCronTriggersInterval(t *testing.T) {
	s := New(Config{}, logx.Nop())
	var runs atomic.Int32
	_ = s.AddSchedule("tick", "1s", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if snap := s.Snapshot(); !snap.Running || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("snapshot = %+v", snap)
	}
	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("interval job never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestApplyTimezoneRestarts(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	_ = s.AddDaily("midnight", "00:00", 0, func(context.Context) error { return nil })
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.Apply(Config{Timezone: "Asia/Tokyo"})
	snap := s.Snapshot()
	if snap.Timezone != "Asia/Tokyo" {
		t.Fatalf("tz = %q", snap.Timezone)
	}
	next := snap.Schedules[0].Next
	if loc := next.Location().String(); loc != "Asia/Tokyo" {
		t.Fatalf("next run location = %q", loc)
	}
	if next.Hour() != 0 || next.Minute() != 0 {
		t.Fatalf("next = %v", next)
	}
}
