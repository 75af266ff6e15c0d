// Package validator is the dry-run backend: it checks that every endpoint
// answers and every referenced file exists, without running anything.
// Task outputs are recorded as nil so the whole job can be walked.
package validator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"yqhp/jobflow/internal/backend"
	"yqhp/jobflow/internal/backend/executor"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/scope"
	"yqhp/jobflow/internal/transport"
	"yqhp/jobflow/pkg/logger"
	"yqhp/jobflow/pkg/types"
)

// Backend validates tasks.
type Backend struct {
	http   *transport.HTTPClient
	logger *zap.Logger

	workflow  *types.Workflow
	namespace *scope.Namespace
}

var (
	_ interpreter.Backend     = (*Backend)(nil)
	_ interpreter.RunObserver = (*Backend)(nil)
)

// New creates a validator. A nil client gets the default HTTP settings.
func New(client *transport.HTTPClient) *Backend {
	if client == nil {
		client = transport.NewHTTPClient(transport.DefaultHTTPConfig())
	}
	return &Backend{
		http:      client,
		logger:    logger.Named("validator"),
		namespace: scope.NewNamespace(),
	}
}

// Name implements interpreter.Backend.
func (b *Backend) Name() string { return "validator" }

// Begin implements interpreter.RunObserver.
func (b *Backend) Begin(_ context.Context, wf *types.Workflow, ns *scope.Namespace) error {
	b.workflow = wf
	if ns != nil {
		b.namespace = ns
	}
	return nil
}

// HandleService checks the service endpoint answers a HEAD request.
func (b *Backend) HandleService(ctx context.Context, tc *types.TaskContext) (map[string]any, error) {
	return placeholders(tc, false), b.reachable(ctx, tc.Task, "CSIP endpoint")
}

// HandleHTTP checks the URL answers a HEAD request.
func (b *Backend) HandleHTTP(ctx context.Context, tc *types.TaskContext) (map[string]any, error) {
	return placeholders(tc, false), b.reachable(ctx, tc.Task, "Http url")
}

// HandleShell checks a .sh target can be found. Inline commands pass.
func (b *Backend) HandleShell(_ context.Context, tc *types.TaskContext) (map[string]any, error) {
	return placeholders(tc, true), b.exists(tc.Task, ".sh", "bash script")
}

// HandleScript checks a .js target can be found. Inline scripts pass.
func (b *Backend) HandleScript(_ context.Context, tc *types.TaskContext) (map[string]any, error) {
	return placeholders(tc, false), b.exists(tc.Task, ".js", "script")
}

// placeholders returns a nil value for every declared output, plus the
// implicit shell output, so later conditions can still be evaluated.
// Inputs keep their resolved values.
func placeholders(tc *types.TaskContext, shell bool) map[string]any {
	names := tc.Task.Outputs
	if shell {
		names = append([]string{executor.ShellOutput}, names...)
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		if _, isInput := tc.Locals[name]; !isInput {
			out[name] = nil
		}
	}
	return out
}

// Close implements interpreter.Backend.
func (b *Backend) Close(context.Context) error { return nil }

func (b *Backend) reachable(ctx context.Context, task *types.Task, what string) error {
	status, err := b.http.Head(ctx, task.Target)
	if err == nil && status < 400 {
		b.logger.Debug("endpoint reachable", zap.String("task", task.Name), zap.Int("status", status))
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return interpreter.NewConfigurationError(task.Name, interpreter.ErrUnreachable,
		fmt.Sprintf("task %s defines a %s that is not accessible: %q", task.Name, what, task.Target), err)
}

func (b *Backend) exists(task *types.Task, ext, what string) error {
	dir := ""
	if b.workflow != nil {
		dir = b.workflow.Dir
	}
	if _, _, err := backend.ResolveFile(task.Name, task.Target, ext, dir, b.namespace); err != nil {
		return interpreter.NewConfigurationError(task.Name, interpreter.ErrFileNotFound,
			fmt.Sprintf("task %s defines a %s that cannot be found: %s", task.Name, what, task.Target), err)
	}
	return nil
}
