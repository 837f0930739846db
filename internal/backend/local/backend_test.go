package local_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/hangar/internal/backend"
	"github.com/seantiz/hangar/internal/backend/local"
	"github.com/seantiz/hangar/internal/model"
	"github.com/seantiz/hangar/internal/project"
)

func newTestBackend() *local.Backend {
	return local.New(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func writeScript(t *testing.T, body string) *project.Project {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return &project.Project{
		URI:        dir,
		EntryPoint: "run.sh",
		Env:        map[string]string{},
	}
}

func TestDispatchSucceeds(t *testing.T) {
	b := newTestBackend()
	proj := writeScript(t, "exit 0")

	run, err := b.Dispatch(context.Background(), proj, backend.RunConfig{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	ok, err := run.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ok {
		t.Errorf("Wait = false, want true; status %q", run.Status())
	}
	if run.Status() != model.StatusSucceeded {
		t.Errorf("status = %q, want succeeded", run.Status())
	}
}

func TestDispatchFails(t *testing.T) {
	b := newTestBackend()
	proj := writeScript(t, "exit 3")

	run, err := b.Dispatch(context.Background(), proj, backend.RunConfig{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	ok, err := run.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ok {
		t.Error("Wait = true for failing script")
	}
	if run.Status() != model.StatusFailed {
		t.Errorf("status = %q, want failed", run.Status())
	}
}

func TestDispatchMissingEntryPoint(t *testing.T) {
	b := newTestBackend()
	proj := &project.Project{
		URI:        t.TempDir(),
		EntryPoint: "does-not-exist",
		Env:        map[string]string{},
	}

	if _, err := b.Dispatch(context.Background(), proj, backend.RunConfig{}); err == nil {
		t.Error("Dispatch succeeded for missing entry point")
	}
}

func TestCancelTerminatesRun(t *testing.T) {
	b := newTestBackend()
	proj := writeScript(t, "sleep 30")

	run, err := b.Dispatch(context.Background(), proj, backend.RunConfig{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if err := run.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := run.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait after Cancel: %v", err)
	}
	if ok {
		t.Error("Wait = true for cancelled run")
	}
	if run.Status() != model.StatusCancelled {
		t.Errorf("status = %q, want cancelled", run.Status())
	}
}

func TestDispatchExportsEnv(t *testing.T) {
	b := newTestBackend()
	dir := t.TempDir()
	script := `[ "$HANGAR_PROJECT" = "demo" ] || exit 1
[ "$HANGAR_STORAGE_DIR" = "/tmp/artifacts" ] || exit 2`
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	proj := &project.Project{
		URI:        dir,
		EntryPoint: "run.sh",
		Env:        map[string]string{"HANGAR_PROJECT": "demo"},
	}
	cfg := backend.RunConfig{backend.KeyStorageDir: "/tmp/artifacts"}

	run, err := b.Dispatch(context.Background(), proj, cfg)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ok, err := run.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ok {
		t.Error("script did not see the injected environment")
	}
}

func TestDispatchPassesParameters(t *testing.T) {
	b := newTestBackend()
	dir := t.TempDir()
	// Parameters arrive as --key value in sorted key order.
	script := `[ "$1" = "--alpha" ] && [ "$2" = "0.5" ] && [ "$3" = "--epochs" ] && [ "$4" = "10" ] || exit 1`
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	proj := &project.Project{
		URI:        dir,
		EntryPoint: "run.sh",
		Parameters: map[string]string{"epochs": "10", "alpha": "0.5"},
		Env:        map[string]string{},
	}

	run, err := b.Dispatch(context.Background(), proj, backend.RunConfig{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ok, err := run.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ok {
		t.Error("script did not receive parameters in sorted --key value form")
	}
}
