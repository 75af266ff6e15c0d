package interpreter

import (
	"errors"
	"fmt"
	"time"

	"yqhp/jobflow/internal/scope"
)

// ErrorCode identifies the class of an interpreter error.
type ErrorCode string

const (
	// CodeConfiguration marks a malformed or unresolvable job description.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// CodeExecution marks a task that ran and failed.
	CodeExecution ErrorCode = "EXECUTION_ERROR"
	// CodeExpression marks an expression that could not be evaluated.
	CodeExpression ErrorCode = "EXPRESSION_ERROR"
)

// Reasons. Match them with errors.Is.
var (
	ErrDuplicateName       = scope.ErrDuplicateName
	ErrInvalidName         = scope.ErrInvalidName
	ErrUnknownTaskKind     = errors.New("unknown task kind")
	ErrInvalidLoopVariable = errors.New("invalid loop variable")
	ErrInvalidStep         = errors.New("invalid step")
	ErrMissingConfig       = errors.New("missing task configuration")
	ErrInvalidConfig       = errors.New("invalid task configuration")
	ErrFileNotFound        = errors.New("file not found")
	ErrUnreachable         = errors.New("endpoint not reachable")

	ErrOutputNotFound = errors.New("task output not found")
	ErrNonZeroExit    = errors.New("non-zero exit status")
	ErrTaskTimeout    = errors.New("task timed out")
	ErrTaskFailed     = errors.New("task failed")
)

// ConfigurationError reports a job description problem found while walking it.
type ConfigurationError struct {
	Task    string
	Reason  error
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return format(CodeConfiguration, e.Task, e.Message, e.Cause)
}

// Unwrap returns the reason and the underlying cause.
func (e *ConfigurationError) Unwrap() []error {
	return unwrapAll(e.Reason, e.Cause)
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(task string, reason error, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Task: task, Reason: reason, Message: message, Cause: cause}
}

// ExecutionError reports a task whose backend call failed.
type ExecutionError struct {
	Task    string
	Reason  error
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return format(CodeExecution, e.Task, e.Message, e.Cause)
}

// Unwrap returns the reason and the underlying cause.
func (e *ExecutionError) Unwrap() []error {
	return unwrapAll(e.Reason, e.Cause)
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(task string, reason error, message string, cause error) *ExecutionError {
	if reason == nil {
		reason = ErrTaskFailed
	}
	return &ExecutionError{Task: task, Reason: reason, Message: message, Cause: cause}
}

// NewOutputNotFoundError creates the error for a declared output the task did not produce.
func NewOutputNotFoundError(task, output string) *ExecutionError {
	return NewExecutionError(task, ErrOutputNotFound, fmt.Sprintf("output %q not found", output), nil)
}

// NewTimeoutError creates the error for a task that exceeded its deadline.
func NewTimeoutError(task string, timeout time.Duration, cause error) *ExecutionError {
	return NewExecutionError(task, ErrTaskTimeout, fmt.Sprintf("task timed out after %v", timeout), cause)
}

// ExpressionError reports an expression that failed to parse or evaluate.
type ExpressionError struct {
	Task  string
	Expr  string
	Cause error
}

// Error implements the error interface.
func (e *ExpressionError) Error() string {
	return format(CodeExpression, e.Task, fmt.Sprintf("cannot evaluate %q", e.Expr), e.Cause)
}

// Unwrap returns the underlying error.
func (e *ExpressionError) Unwrap() error {
	return e.Cause
}

// NewExpressionError creates a new ExpressionError.
func NewExpressionError(task, expr string, cause error) *ExpressionError {
	return &ExpressionError{Task: task, Expr: expr, Cause: cause}
}

// BranchError tags an error with the fork branch it came from.
type BranchError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *BranchError) Error() string {
	return fmt.Sprintf("fork branch %d: %v", e.Index, e.Err)
}

// Unwrap returns the branch error.
func (e *BranchError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks if err contains a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsExecutionError checks if err contains an ExecutionError.
func IsExecutionError(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}

// IsExpressionError checks if err contains an ExpressionError.
func IsExpressionError(err error) bool {
	var target *ExpressionError
	return errors.As(err, &target)
}

func format(code ErrorCode, task, message string, cause error) string {
	prefix := fmt.Sprintf("[%s]", code)
	if task != "" {
		prefix += fmt.Sprintf(" task %s:", task)
	}
	if cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s %s", prefix, message)
}

func unwrapAll(errs ...error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
