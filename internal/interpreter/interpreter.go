// Package interpreter walks a workflow's steps and drives every task through
// a pluggable Backend.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"yqhp/jobflow/internal/expression"
	"yqhp/jobflow/internal/scope"
	"yqhp/jobflow/pkg/logger"
	"yqhp/jobflow/pkg/types"
)

// Interpreter runs workflows against one backend. A single Interpreter may
// run many workflows one after another; every Run starts from a clean
// namespace and symbol table.
type Interpreter struct {
	backend   Backend
	evaluator *expression.DefaultEvaluator
	namespace *scope.Namespace
	symbols   *scope.SymbolTable
	logger    *zap.Logger

	// taskTimeout applies to tasks without their own "timeout" config. Zero means none.
	taskTimeout time.Duration
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Interpreter) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithTaskTimeout sets the default per-task timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(in *Interpreter) {
		in.taskTimeout = d
	}
}

// WithNamespace shares a namespace with the caller.
func WithNamespace(ns *scope.Namespace) Option {
	return func(in *Interpreter) {
		if ns != nil {
			in.namespace = ns
		}
	}
}

// WithEvaluator shares an evaluator (and its parse cache).
func WithEvaluator(e *expression.DefaultEvaluator) Option {
	return func(in *Interpreter) {
		if e != nil {
			in.evaluator = e
		}
	}
}

// New creates an interpreter for backend.
func New(backend Backend, opts ...Option) *Interpreter {
	in := &Interpreter{
		backend:   backend,
		evaluator: expression.NewEvaluator(),
		namespace: scope.NewNamespace(),
		symbols:   scope.NewSymbolTable(),
		logger:    logger.Named("interpreter"),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Backend returns the backend.
func (in *Interpreter) Backend() Backend { return in.backend }

// Namespace returns the shared namespace.
func (in *Interpreter) Namespace() *scope.Namespace { return in.namespace }

// Symbols returns the symbol table.
func (in *Interpreter) Symbols() *scope.SymbolTable { return in.symbols }

// Run runs wf from the top. The backend is always closed afterwards; an
// error from the run takes precedence over an error from Close.
func (in *Interpreter) Run(ctx context.Context, wf *types.Workflow) (err error) {
	if wf == nil {
		return NewConfigurationError("", ErrInvalidStep, "nil workflow", nil)
	}

	in.namespace.Reset()
	in.symbols.Reset()
	in.namespace.SetVariables(wf.Variables)

	defer func() {
		cerr := in.backend.Close(context.WithoutCancel(ctx))
		if cerr == nil {
			return
		}
		if err != nil {
			in.logger.Warn("backend close failed after run error", zap.Error(cerr))
			return
		}
		err = cerr
	}()

	if obs, ok := in.backend.(RunObserver); ok {
		if err := obs.Begin(ctx, wf, in.namespace); err != nil {
			return err
		}
	}

	in.logger.Info("running workflow",
		zap.String("workflow", wf.Name),
		zap.String("backend", in.backend.Name()),
		zap.Int("steps", len(wf.Steps)))

	start := time.Now()
	if err := in.RunSequence(ctx, wf.Steps); err != nil {
		in.logger.Error("workflow failed", zap.String("workflow", wf.Name), zap.Error(err))
		return err
	}
	in.logger.Info("workflow completed",
		zap.String("workflow", wf.Name),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// RunSequence runs steps in order, stopping at the first error.
func (in *Interpreter) RunSequence(ctx context.Context, seq types.Sequence) error {
	for _, step := range seq {
		if err := in.RunStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// RunStep dispatches a single step on its kind.
func (in *Interpreter) RunStep(ctx context.Context, step *types.Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := step.Validate(); err != nil {
		return NewConfigurationError("", ErrInvalidStep, err.Error(), nil)
	}

	in.logger.Debug("dispatch step",
		zap.Stringer("kind", step.Kind),
		zap.String("label", step.Label()))

	switch step.Kind {
	case types.StepTask:
		return in.runTask(ctx, step.Task)
	case types.StepIf:
		return in.runIf(ctx, step)
	case types.StepSwitch:
		return in.runSwitch(ctx, step)
	case types.StepFor:
		return in.runFor(ctx, step)
	case types.StepFork:
		return in.runFork(ctx, step)
	default:
		return NewConfigurationError("", ErrInvalidStep, fmt.Sprintf("unknown step kind %d", step.Kind), nil)
	}
}

func (in *Interpreter) visitor() (StructureVisitor, bool) {
	v, ok := in.backend.(StructureVisitor)
	if !ok || !v.Structural() {
		return nil, false
	}
	return v, true
}

func (in *Interpreter) evalContext() *expression.EvaluationContext {
	return expression.NewEvaluationContext().WithScope(in.namespace)
}

// runTask registers, resolves, dispatches and records one task.
func (in *Interpreter) runTask(ctx context.Context, task *types.Task) error {
	_, structural := in.visitor()

	var locals map[string]any
	if !structural {
		if err := in.symbols.Register(task.Name, task); err != nil {
			reason := ErrInvalidName
			if errors.Is(err, ErrDuplicateName) {
				reason = ErrDuplicateName
			}
			return NewConfigurationError(task.Name, reason, err.Error(), nil)
		}

		var err error
		if locals, err = in.resolveInputs(task); err != nil {
			return err
		}
	}

	handle, ok := handlerFor(in.backend, task.Kind)
	if !ok {
		return NewConfigurationError(task.Name, ErrUnknownTaskKind,
			fmt.Sprintf("task kind %q has no handler", task.Kind), nil)
	}

	timeout, err := in.timeoutFor(task)
	if err != nil {
		return err
	}

	tc := types.NewTaskContext(task, locals)
	hook, hasHook := in.backend.(TaskHook)
	if hasHook {
		hook.BeforeTask(ctx, tc)
	}

	taskCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 && !structural {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	if !structural {
		in.logger.Info("starting task", zap.String("task", task.Name), zap.Stringer("kind", task.Kind))
	}
	tc.Start()
	outputs, err := handle(taskCtx, tc)
	timedOut := errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	if err != nil {
		if timedOut {
			err = NewTimeoutError(task.Name, timeout, err)
		}
		tc.Fail(err)
		if hasHook {
			hook.AfterTask(ctx, tc, err)
		}
		return err
	}

	tc.Succeed(outputs)
	if !structural {
		in.namespace.SetTask(task.Name, tc.Snapshot())
		in.logger.Info("task completed", zap.String("task", task.Name), zap.Duration("duration", tc.Duration()))
		in.logger.Debug("task values", zap.String("task", task.Name), zap.Any("values", tc.Snapshot()))
	}
	if hasHook {
		hook.AfterTask(ctx, tc, nil)
	}
	return nil
}

// resolveInputs evaluates each input in declaration order.
func (in *Interpreter) resolveInputs(task *types.Task) (map[string]any, error) {
	locals := make(map[string]any, len(task.Inputs))
	if len(task.Inputs) == 0 {
		return locals, nil
	}
	evalCtx := in.evalContext()
	for _, input := range task.Inputs {
		v, err := in.evaluator.EvaluateValue(input.Expr, evalCtx)
		if err != nil {
			return nil, NewExpressionError(task.Name, input.Expr, err)
		}
		locals[input.Name] = v
	}
	return locals, nil
}

// timeoutFor returns the task's own timeout or the default. A bare number is seconds.
func (in *Interpreter) timeoutFor(task *types.Task) (time.Duration, error) {
	raw, ok := task.Config["timeout"]
	if !ok || raw == nil {
		return in.taskTimeout, nil
	}

	var d time.Duration
	switch v := raw.(type) {
	case int:
		d = time.Duration(v) * time.Second
	case int64:
		d = time.Duration(v) * time.Second
	case float64:
		d = time.Duration(v * float64(time.Second))
	case string:
		s := strings.TrimSpace(v)
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			d = time.Duration(secs * float64(time.Second))
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, NewConfigurationError(task.Name, ErrInvalidConfig, fmt.Sprintf("invalid timeout %q", v), err)
		}
		d = parsed
	default:
		return 0, NewConfigurationError(task.Name, ErrInvalidConfig, fmt.Sprintf("invalid timeout %v", raw), nil)
	}
	if d < 0 {
		return 0, NewConfigurationError(task.Name, ErrInvalidConfig, fmt.Sprintf("negative timeout %v", raw), nil)
	}
	return d, nil
}

func (in *Interpreter) runIf(ctx context.Context, step *types.Step) error {
	cond := step.If.Condition

	if v, ok := in.visitor(); ok {
		v.EnterBlock(step)
		v.EnterBranch(step, 0, "true")
		err := in.RunSequence(ctx, step.If.Body)
		v.ExitBranch(step, 0)
		v.ExitBlock(step)
		return err
	}

	ok, err := in.evaluator.EvaluateString(cond, in.evalContext())
	if err != nil {
		return NewExpressionError("", cond, err)
	}
	in.logger.Debug("if evaluated", zap.String("condition", cond), zap.Bool("result", ok))
	if !ok {
		return nil
	}
	return in.RunSequence(ctx, step.If.Body)
}

func (in *Interpreter) runSwitch(ctx context.Context, step *types.Step) error {
	sw := step.Switch

	if v, ok := in.visitor(); ok {
		v.EnterBlock(step)
		defer v.ExitBlock(step)
		for i, c := range sw.Cases {
			v.EnterBranch(step, i, fmt.Sprintf("%v", c.Value))
			err := in.RunSequence(ctx, c.Body)
			v.ExitBranch(step, i)
			if err != nil {
				return err
			}
		}
		if sw.Default != nil {
			i := len(sw.Cases)
			v.EnterBranch(step, i, "default")
			err := in.RunSequence(ctx, sw.Default)
			v.ExitBranch(step, i)
			return err
		}
		return nil
	}

	value, err := in.evaluator.EvaluateValue(sw.Condition, in.evalContext())
	if err != nil {
		return NewExpressionError("", sw.Condition, err)
	}
	for _, c := range sw.Cases {
		if CaseMatches(value, c.Value) {
			in.logger.Debug("switch matched", zap.String("condition", sw.Condition), zap.Any("case", c.Value))
			return in.RunSequence(ctx, c.Body)
		}
	}
	if sw.Default != nil {
		in.logger.Debug("switch default", zap.String("condition", sw.Condition), zap.Any("value", value))
		return in.RunSequence(ctx, sw.Default)
	}
	return nil
}

// CaseMatches reports whether a switch value selects a case. Integers of any
// width match each other; there is no coercion between strings and numbers
// or between integers and floats.
func CaseMatches(value, caseValue any) bool {
	a, b := normalizeScalar(value), normalizeScalar(caseValue)
	switch av := a.(type) {
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// splitForExpr splits "<var>, <iterable>" on the first comma.
func splitForExpr(expr string) (string, string, error) {
	i := strings.IndexByte(expr, ',')
	if i < 0 {
		return "", "", NewConfigurationError("", ErrInvalidStep, fmt.Sprintf("invalid for expression %q", expr), nil)
	}
	name := strings.TrimSpace(expr[:i])
	if !expression.IsIdentifier(name) {
		return "", "", NewConfigurationError("", ErrInvalidLoopVariable, fmt.Sprintf("not a valid identifier: %q", name), nil)
	}
	iterable := strings.TrimSpace(expr[i+1:])
	if iterable == "" {
		return "", "", NewConfigurationError("", ErrInvalidStep, fmt.Sprintf("invalid for expression %q", expr), nil)
	}
	return name, iterable, nil
}

func (in *Interpreter) runFor(ctx context.Context, step *types.Step) error {
	name, iterable, err := splitForExpr(step.For.Expr)
	if err != nil {
		return err
	}

	if v, ok := in.visitor(); ok {
		v.EnterBlock(step)
		v.EnterBranch(step, 0, "")
		err := in.RunSequence(ctx, step.For.Body)
		v.ExitBranch(step, 0)
		v.ExitBlock(step)
		return err
	}

	value, err := in.evaluator.EvaluateValue(iterable, in.evalContext())
	if err != nil {
		return NewExpressionError("", iterable, err)
	}
	items, err := expression.ToList(value)
	if err != nil {
		return NewExpressionError("", iterable, err)
	}

	in.logger.Debug("for loop", zap.String("var", name), zap.Int("iterations", len(items)))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		in.namespace.Bind(name, item)
		if err := in.RunSequence(ctx, step.For.Body); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) runFork(ctx context.Context, step *types.Step) error {
	if v, ok := in.visitor(); ok {
		v.EnterBlock(step)
		defer v.ExitBlock(step)
		for i, branch := range step.Fork.Branches {
			v.EnterBranch(step, i, strconv.Itoa(i))
			err := in.RunSequence(ctx, branch)
			v.ExitBranch(step, i)
			if err != nil {
				return err
			}
		}
		return nil
	}
	return in.runForkBranches(ctx, step.Fork.Branches)
}
