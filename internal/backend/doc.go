// Package backend defines the common interface that all execution backends
// (local process, container, cluster) must implement, the submitted-run
// lifecycle handle, and the registry that resolves a backend from its
// logical runner name.
package backend
