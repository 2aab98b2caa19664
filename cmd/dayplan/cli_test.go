package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := "logging:\n  level: error\nscheduler:\n  timezone: UTC\ncalendar:\n  driver: file\n  path: " +
		filepath.Join(dir, "calendar.json") + "\n"
	path := filepath.Join(dir, "dayplan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	if err := app.Run(append([]string{"dayplan"}, args...)); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestEventsAddListPlan(t *testing.T) {
	cfg := writeConfig(t)

	id := strings.TrimSpace(runCLI(t, "-c", cfg, "events", "add", "-d", "2025-03-10", "-s", "10:00", "-t", "Review"))
	if id == "" {
		t.Fatal("no id printed")
	}
	if out := runCLI(t, "-c", cfg, "events", "ls", "-d", "2025-03-10"); !strings.Contains(out, id) || !strings.Contains(out, "Review") {
		t.Fatalf("list output:\n%s", out)
	}

	out := runCLI(t, "-c", cfg, "plan", "--at", "2025-03-10 09:00")
	if strings.Count(out, "Review") != 3 {
		t.Fatalf("plan output:\n%s", out)
	}

	runCLI(t, "-c", cfg, "events", "rm", id)
	if out := runCLI(t, "-c", cfg, "events", "ls", "-d", "2025-03-10"); !strings.Contains(out, "no events") {
		t.Fatalf("list after rm:\n%s", out)
	}
}

func TestEventsReplaceFromFile(t *testing.T) {
	cfg := writeConfig(t)
	src := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(src, []byte(`[{"start":"09:00","title":"Alpha"},{"start":"11:00","end":"12:00","title":"Beta"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if out := runCLI(t, "-c", cfg, "events", "replace", "-d", "2025-03-11", src); !strings.Contains(out, "2 events") {
		t.Fatalf("replace output: %q", out)
	}
	out := runCLI(t, "-c", cfg, "events", "ls", "-d", "2025-03-11")
	if !strings.Contains(out, "Alpha") || !strings.Contains(out, "Beta") {
		t.Fatalf("list output:\n%s", out)
	}
}

func TestCheck(t *testing.T) {
	if out := runCLI(t, "-c", writeConfig(t), "check"); !strings.Contains(out, "config ok") {
		t.Fatalf("check output: %q", out)
	}
	app := newApp()
	app.Writer = &bytes.Buffer{}
	if err := app.Run([]string{"dayplan", "-c", filepath.Join(t.TempDir(), "missing.yaml"), "check"}); err == nil {
		t.Fatal("expected error for missing config")
	}
}
