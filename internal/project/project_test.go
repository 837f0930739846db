package project_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/seantiz/hangar/internal/project"
)

func writeProject(t *testing.T, entryPoint string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, entryPoint)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write entry point: %v", err)
	}
	return dir
}

func TestLocalResolverResolve(t *testing.T) {
	dir := writeProject(t, "train.sh")

	p, err := project.LocalResolver{}.Resolve(context.Background(), dir, "exp", "local", "v1", "train.sh", map[string]string{"alpha": "0.5"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.URI != dir {
		t.Errorf("URI = %q, want %q", p.URI, dir)
	}
	if p.EntryPoint != "train.sh" {
		t.Errorf("EntryPoint = %q, want train.sh", p.EntryPoint)
	}
	if p.Version != "v1" {
		t.Errorf("Version = %q, want v1", p.Version)
	}
	if p.Parameters["alpha"] != "0.5" {
		t.Errorf("Parameters = %v, want alpha=0.5", p.Parameters)
	}
	if p.Env == nil {
		t.Error("Env not initialized")
	}
}

func TestLocalResolverCopiesParameters(t *testing.T) {
	dir := writeProject(t, "run.sh")
	params := map[string]string{"k": "v"}

	p, err := project.LocalResolver{}.Resolve(context.Background(), dir, "", "", "", "", params)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	params["k"] = "mutated"
	if p.Parameters["k"] != "v" {
		t.Error("descriptor parameters alias the caller's map")
	}
}

func TestLocalResolverDefaultEntryPoint(t *testing.T) {
	dir := writeProject(t, project.DefaultEntryPoint)

	p, err := project.LocalResolver{}.Resolve(context.Background(), dir, "", "", "", "", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.EntryPoint != project.DefaultEntryPoint {
		t.Errorf("EntryPoint = %q, want %q", p.EntryPoint, project.DefaultEntryPoint)
	}
}

func TestLocalResolverErrors(t *testing.T) {
	dir := writeProject(t, "run.sh")

	tests := []struct {
		name       string
		uri        string
		entryPoint string
	}{
		{"missing source", filepath.Join(dir, "nope"), "run.sh"},
		{"source is a file", filepath.Join(dir, "run.sh"), "run.sh"},
		{"missing entry point", dir, "other.sh"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := (project.LocalResolver{}).Resolve(context.Background(), tc.uri, "", "", "", tc.entryPoint, nil); err == nil {
				t.Error("Resolve succeeded, want error")
			}
		})
	}
}

func TestIsLocalURI(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"local/path", true},
		{"/abs/path", true},
		{"./relative", true},
		{"file:///abs/path", true},
		{"http://localhost:8080/p", true},
		{"http://127.0.0.1/p", true},
		{"https://example.com/p", false},
		{"http://example.com/p", false},
		{"git@github.com:org/repo.git", false},
		{"ssh://git@github.com/org/repo.git", false},
	}

	for _, tc := range tests {
		if got := project.IsLocalURI(tc.uri); got != tc.want {
			t.Errorf("IsLocalURI(%q) = %v, want %v", tc.uri, got, tc.want)
		}
	}
}
