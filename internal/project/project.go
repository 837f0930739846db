// Package project defines the resolved project descriptor handed to execution
// backends, and the resolver contract that produces one from a raw source URI.
package project

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultEntryPoint is used when a source provides no entry point of its own.
const DefaultEntryPoint = "run.sh"

// Project is the immutable descriptor of what to run: a resolved source
// location, an entry point within it, parameters for the entry point, and the
// environment the execution should see. The dispatcher injects the target
// entity/project identifiers into Env exactly once; nothing mutates a Project
// after it has been handed to a backend.
type Project struct {
	URI        string
	EntryPoint string
	Version    string
	Parameters map[string]string

	TargetEntity  string
	TargetProject string

	Env map[string]string
}

// Resolver produces a validated Project from a raw source URI. Implementations
// own source fetching and entry-point/parameter validation; the dispatcher
// treats their errors as opaque and propagates them unchanged.
type Resolver interface {
	Resolve(ctx context.Context, uri, experimentName, runnerName, version, entryPoint string, parameters map[string]string) (*Project, error)
}

// LocalResolver resolves project sources that live on the local filesystem.
type LocalResolver struct{}

// Resolve validates that uri is an existing directory and that the entry point
// exists within it. An empty entry point defaults to DefaultEntryPoint.
func (LocalResolver) Resolve(_ context.Context, uri, _, _, version, entryPoint string, parameters map[string]string) (*Project, error) {
	info, err := os.Stat(uri)
	if err != nil {
		return nil, fmt.Errorf("resolve project source %q: %w", uri, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project source %q is not a directory", uri)
	}

	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}
	if _, err := os.Stat(filepath.Join(uri, entryPoint)); err != nil {
		return nil, fmt.Errorf("entry point %q not found in %q: %w", entryPoint, uri, err)
	}

	params := make(map[string]string, len(parameters))
	for k, v := range parameters {
		params[k] = v
	}

	return &Project{
		URI:        uri,
		EntryPoint: entryPoint,
		Version:    version,
		Parameters: params,
		Env:        make(map[string]string),
	}, nil
}

// IsLocalURI reports whether a project source refers to the local host: a
// filesystem path, or a URL whose host is the loopback interface. Remote
// schemes (https, ssh, git) with non-local hosts are not local.
func IsLocalURI(uri string) bool {
	if strings.HasPrefix(uri, "git@") {
		return false
	}
	if !strings.Contains(uri, "://") {
		// No scheme: treat as a filesystem path.
		return true
	}
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "file":
		return true
	case "http", "https":
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	}
	return false
}
