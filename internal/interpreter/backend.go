package interpreter

import (
	"context"

	"yqhp/jobflow/internal/scope"
	"yqhp/jobflow/pkg/types"
)

// HandlerFunc runs one task and returns its named outputs.
type HandlerFunc func(ctx context.Context, tc *types.TaskContext) (map[string]any, error)

// Backend decides what running a task means. The interpreter owns the
// traversal; a backend only supplies the four task-kind handlers.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	HandleService(ctx context.Context, tc *types.TaskContext) (map[string]any, error)
	HandleHTTP(ctx context.Context, tc *types.TaskContext) (map[string]any, error)
	HandleShell(ctx context.Context, tc *types.TaskContext) (map[string]any, error)
	HandleScript(ctx context.Context, tc *types.TaskContext) (map[string]any, error)

	// Close is called once at the end of every run, even a failed one.
	Close(ctx context.Context) error
}

// RunObserver is implemented by backends that need the workflow and its
// namespace before the first step runs.
type RunObserver interface {
	Begin(ctx context.Context, wf *types.Workflow, ns *scope.Namespace) error
}

// TaskHook is implemented by backends that want to observe every task.
// AfterTask receives the task error, if any.
type TaskHook interface {
	BeforeTask(ctx context.Context, tc *types.TaskContext)
	AfterTask(ctx context.Context, tc *types.TaskContext, err error)
}

// StructureVisitor is implemented by backends that render the control flow
// instead of running it. When Structural reports true the interpreter
// evaluates nothing: every branch, case and default is visited exactly once,
// fork branches run one after another, and task names are not registered.
//
// For every if, switch, for and fork step the interpreter calls EnterBlock,
// then EnterBranch/ExitBranch around each body it visits, then ExitBlock.
type StructureVisitor interface {
	Structural() bool
	EnterBlock(step *types.Step)
	EnterBranch(step *types.Step, index int, label string)
	ExitBranch(step *types.Step, index int)
	ExitBlock(step *types.Step)
}

// handlerFor selects the handler for a task kind.
func handlerFor(b Backend, kind types.TaskKind) (HandlerFunc, bool) {
	switch kind {
	case types.TaskService:
		return b.HandleService, true
	case types.TaskHTTP:
		return b.HandleHTTP, true
	case types.TaskShell:
		return b.HandleShell, true
	case types.TaskScript:
		return b.HandleScript, true
	default:
		return nil, false
	}
}
