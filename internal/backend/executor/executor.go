// Package executor is the backend that really runs tasks: shell commands,
// HTTP calls, CSIP-style services and JavaScript.
package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"yqhp/jobflow/internal/expression"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/ledger"
	"yqhp/jobflow/internal/scope"
	"yqhp/jobflow/internal/transport"
	"yqhp/jobflow/pkg/logger"
	"yqhp/jobflow/pkg/types"
)

// Config configures the executor.
type Config struct {
	// Shell runs shell tasks ("" means /bin/sh).
	Shell string `yaml:"shell" env:"JF_SHELL"`
	// Delimiter splits shell output into lines unless a task sets its own.
	Delimiter string `yaml:"delimiter" env:"JF_DELIMITER"`
	// InheritEnv passes the parent environment to shell tasks.
	InheritEnv bool `yaml:"inherit_env" env:"JF_INHERIT_ENV"`
	// DefaultTimeout applies to tasks without a timeout. Zero means none.
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"JF_TASK_TIMEOUT"`
}

// DefaultConfig returns the default executor settings.
func DefaultConfig() Config {
	return Config{
		Shell:      "/bin/sh",
		Delimiter:  "\n",
		InheritEnv: true,
	}
}

// Backend executes tasks.
type Backend struct {
	cfg       Config
	http      *transport.HTTPClient
	service   *transport.ServiceClient
	process   *transport.ProcessLauncher
	scripts   *transport.ScriptHost
	evaluator *expression.DefaultEvaluator
	ledger    ledger.Ledger
	logger    *zap.Logger

	workflow  *types.Workflow
	namespace *scope.Namespace
}

var (
	_ interpreter.Backend     = (*Backend)(nil)
	_ interpreter.RunObserver = (*Backend)(nil)
	_ interpreter.TaskHook    = (*Backend)(nil)
)

// Option configures a Backend.
type Option func(*Backend)

// WithLedger records every finished task to l.
func WithLedger(l ledger.Ledger) Option {
	return func(b *Backend) { b.ledger = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithHTTPClient replaces the HTTP client used by http and service tasks.
func WithHTTPClient(c *transport.HTTPClient) Option {
	return func(b *Backend) {
		if c != nil {
			b.http = c
		}
	}
}

// New creates an executor backend.
func New(cfg Config, opts ...Option) *Backend {
	if cfg.Delimiter == "" {
		cfg.Delimiter = "\n"
	}
	b := &Backend{
		cfg:       cfg,
		http:      transport.NewHTTPClient(transport.DefaultHTTPConfig()),
		process:   transport.NewProcessLauncher(cfg.Shell, cfg.InheritEnv),
		evaluator: expression.NewEvaluator(),
		logger:    logger.Named("executor"),
		namespace: scope.NewNamespace(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.service = transport.NewServiceClient(b.http)
	b.scripts = transport.NewScriptHost(b.logger.Named("script"))
	return b
}

// Name implements interpreter.Backend.
func (b *Backend) Name() string { return "executor" }

// Begin implements interpreter.RunObserver.
func (b *Backend) Begin(_ context.Context, wf *types.Workflow, ns *scope.Namespace) error {
	b.workflow = wf
	if ns != nil {
		b.namespace = ns
	}
	if b.ledger == nil {
		return nil
	}
	runID, err := b.ledger.Begin(wf)
	if err != nil {
		return err
	}
	b.logger.Info("ledger run started", zap.String("run_id", runID))
	return nil
}

// BeforeTask implements interpreter.TaskHook.
func (b *Backend) BeforeTask(_ context.Context, tc *types.TaskContext) {
	b.logger.Debug("task locals", zap.String("task", tc.Name()), zap.Any("locals", tc.Locals))
}

// AfterTask implements interpreter.TaskHook.
func (b *Backend) AfterTask(_ context.Context, tc *types.TaskContext, _ error) {
	if b.ledger == nil {
		return
	}
	if err := b.ledger.Record(tc); err != nil {
		b.logger.Warn("ledger record failed", zap.String("task", tc.Name()), zap.Error(err))
	}
}

// Close closes the ledger.
func (b *Backend) Close(context.Context) error {
	if b.ledger == nil {
		return nil
	}
	return b.ledger.Close()
}

// dir is the directory relative file targets are resolved against.
func (b *Backend) dir() string {
	if b.workflow == nil {
		return ""
	}
	return b.workflow.Dir
}

// interpolate replaces ${...} references with values from the task locals
// and the namespace.
func (b *Backend) interpolate(tc *types.TaskContext, s string) string {
	if !expression.HasVariableReference(s) {
		return s
	}
	ctx := expression.NewEvaluationContext().WithVariables(tc.Locals).WithScope(b.namespace)
	out, err := expression.NewVariableResolver(ctx).WithEvaluator(b.evaluator).ResolveString(s)
	if err != nil {
		b.logger.Warn("unresolved reference", zap.String("task", tc.Name()), zap.String("value", s), zap.Error(err))
	}
	return out
}
