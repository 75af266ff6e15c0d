// Package noop provides a backend whose handlers do nothing. It walks the
// workflow, registers names and resolves inputs, which makes it useful for
// tests and for checking a job's data flow without side effects.
package noop

import (
	"context"

	"yqhp/jobflow/pkg/types"
)

// Backend is the no-op backend.
type Backend struct{}

// New creates a no-op backend.
func New() *Backend { return &Backend{} }

// Name implements interpreter.Backend.
func (b *Backend) Name() string { return "none" }

func (b *Backend) HandleService(context.Context, *types.TaskContext) (map[string]any, error) {
	return nil, nil
}

func (b *Backend) HandleHTTP(context.Context, *types.TaskContext) (map[string]any, error) {
	return nil, nil
}

func (b *Backend) HandleShell(context.Context, *types.TaskContext) (map[string]any, error) {
	return nil, nil
}

func (b *Backend) HandleScript(context.Context, *types.TaskContext) (map[string]any, error) {
	return nil, nil
}

// Close implements interpreter.Backend.
func (b *Backend) Close(context.Context) error { return nil }
