// Package types defines the core data structures for the job interpreter.
package types

import (
	"fmt"
)

// StepKind is the explicit discriminant of a Step.
type StepKind int

const (
	StepTask StepKind = iota
	StepIf
	StepSwitch
	StepFor
	StepFork
)

// String returns the string representation of the step kind.
func (k StepKind) String() string {
	switch k {
	case StepTask:
		return "task"
	case StepIf:
		return "if"
	case StepSwitch:
		return "switch"
	case StepFor:
		return "for"
	case StepFork:
		return "fork"
	default:
		return "unknown"
	}
}

// TaskKind selects which backend handler runs a task.
type TaskKind int

const (
	TaskUnknown TaskKind = iota
	TaskService
	TaskHTTP
	TaskShell
	TaskScript
)

// String returns the string representation of the task kind.
func (k TaskKind) String() string {
	switch k {
	case TaskService:
		return "service"
	case TaskHTTP:
		return "http"
	case TaskShell:
		return "shell"
	case TaskScript:
		return "script"
	default:
		return "unknown"
	}
}

// Workflow is a parsed job description.
type Workflow struct {
	Name      string         `yaml:"name" json:"name"`
	File      string         `yaml:"-" json:"file,omitempty"`
	Dir       string         `yaml:"-" json:"dir,omitempty"`
	Variables map[string]any `yaml:"var,omitempty" json:"variables,omitempty"`
	Steps     Sequence       `yaml:"-" json:"steps"`
}

// Sequence is an ordered list of steps. Order is fixed at parse time.
type Sequence []*Step

// Step is one node of the job tree. Exactly one variant pointer matching Kind is set.
type Step struct {
	Kind   StepKind    `json:"kind"`
	Task   *Task       `json:"task,omitempty"`
	If     *IfStep     `json:"if,omitempty"`
	Switch *SwitchStep `json:"switch,omitempty"`
	For    *ForStep    `json:"for,omitempty"`
	Fork   *ForkStep   `json:"fork,omitempty"`
}

// Task is a unit of work handled by a backend.
type Task struct {
	Name    string         `json:"name"`
	Kind    TaskKind       `json:"kind"`
	Target  string         `json:"target"`
	Inputs  []Input        `json:"inputs,omitempty"`
	Outputs []string       `json:"outputs,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}

// Input is a named input expression, kept in declaration order.
type Input struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// IfStep runs Body when Condition is true.
type IfStep struct {
	Condition string   `json:"condition"`
	Body      Sequence `json:"body"`
}

// Case is one arm of a switch.
type Case struct {
	Value any      `json:"value"`
	Body  Sequence `json:"body"`
}

// SwitchStep runs the case matching Condition, or Default.
type SwitchStep struct {
	Condition string   `json:"condition"`
	Cases     []Case   `json:"cases"`
	Default   Sequence `json:"default,omitempty"`
}

// ForStep binds each element of an iterable to a loop variable and runs Body.
// Expr has the form "<var>, <iterable expression>".
type ForStep struct {
	Expr string   `json:"expr"`
	Body Sequence `json:"body"`
}

// ForkStep runs its branches concurrently.
type ForkStep struct {
	Branches []Sequence `json:"branches"`
}

// NewTaskStep wraps a task into a step.
func NewTaskStep(t *Task) *Step { return &Step{Kind: StepTask, Task: t} }

// NewIfStep creates an if step.
func NewIfStep(cond string, body Sequence) *Step {
	return &Step{Kind: StepIf, If: &IfStep{Condition: cond, Body: body}}
}

// NewSwitchStep creates a switch step.
func NewSwitchStep(cond string, cases []Case, def Sequence) *Step {
	return &Step{Kind: StepSwitch, Switch: &SwitchStep{Condition: cond, Cases: cases, Default: def}}
}

// NewForStep creates a for step.
func NewForStep(expr string, body Sequence) *Step {
	return &Step{Kind: StepFor, For: &ForStep{Expr: expr, Body: body}}
}

// NewForkStep creates a fork step.
func NewForkStep(branches ...Sequence) *Step {
	return &Step{Kind: StepFork, Fork: &ForkStep{Branches: branches}}
}

// Validate checks that exactly the variant matching Kind is set.
func (s *Step) Validate() error {
	if s == nil {
		return fmt.Errorf("nil step")
	}
	set := 0
	for _, ok := range []bool{s.Task != nil, s.If != nil, s.Switch != nil, s.For != nil, s.Fork != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("step of kind %s must have exactly one variant, has %d", s.Kind, set)
	}

	var ok bool
	switch s.Kind {
	case StepTask:
		ok = s.Task != nil
	case StepIf:
		ok = s.If != nil
	case StepSwitch:
		ok = s.Switch != nil
	case StepFor:
		ok = s.For != nil
	case StepFork:
		ok = s.Fork != nil
	}
	if !ok {
		return fmt.Errorf("step kind %s does not match its variant", s.Kind)
	}
	return nil
}

// Label returns a short human readable description of the step.
func (s *Step) Label() string {
	switch s.Kind {
	case StepTask:
		return s.Task.Name
	case StepIf:
		return s.If.Condition
	case StepSwitch:
		return s.Switch.Condition
	case StepFor:
		return s.For.Expr
	case StepFork:
		return fmt.Sprintf("%d branches", len(s.Fork.Branches))
	default:
		return ""
	}
}

// InputNames returns the declared input names in order.
func (t *Task) InputNames() []string {
	names := make([]string, len(t.Inputs))
	for i, in := range t.Inputs {
		names[i] = in.Name
	}
	return names
}

// ConfigString returns a string config value or def.
func (t *Task) ConfigString(key, def string) string {
	if v, ok := t.Config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ConfigMap returns a map config value or nil.
func (t *Task) ConfigMap(key string) map[string]any {
	if v, ok := t.Config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// HasConfig reports whether key is present in the task config.
func (t *Task) HasConfig(key string) bool {
	_, ok := t.Config[key]
	return ok
}
