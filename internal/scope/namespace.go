// Package scope holds the run-scoped state shared by every step of a
// workflow run: the namespace of completed task values and the symbol table
// of task names. Both are safe for use by concurrent fork branches.
package scope

import (
	"maps"
	"sort"
	"sync"
)

const (
	// TaskRoot is the name under which completed tasks are visible to expressions.
	TaskRoot = "task"
	// VarRoot is the name under which workflow variables are visible to expressions.
	VarRoot = "var"
)

// Namespace maps task names to the values they produced, plus bound loop
// variables and workflow variables.
//
// Lookup order for a bare name: task, var, loop variables, workflow
// variables, then task names.
type Namespace struct {
	mu        sync.RWMutex
	tasks     map[string]map[string]any
	bindings  map[string]any
	variables map[string]any
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{
		tasks:     make(map[string]map[string]any),
		bindings:  make(map[string]any),
		variables: make(map[string]any),
	}
}

// Reset clears everything. Called at the start of every run.
func (n *Namespace) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = make(map[string]map[string]any)
	n.bindings = make(map[string]any)
	n.variables = make(map[string]any)
}

// SetVariables replaces the workflow variables.
func (n *Namespace) SetVariables(vars map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.variables = maps.Clone(vars)
	if n.variables == nil {
		n.variables = make(map[string]any)
	}
}

// SetVariable sets a single workflow variable.
func (n *Namespace) SetVariable(name string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.variables[name] = value
}

// Variable returns a workflow variable.
func (n *Namespace) Variable(name string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.variables[name]
	return v, ok
}

// SetTask stores the values of a completed task, replacing earlier ones.
// The map is copied; later changes by the caller are not visible.
func (n *Namespace) SetTask(name string, values map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks[name] = maps.Clone(values)
	if n.tasks[name] == nil {
		n.tasks[name] = make(map[string]any)
	}
}

// Task returns a copy of the values stored for a task.
func (n *Namespace) Task(name string) (map[string]any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.tasks[name]
	if !ok {
		return nil, false
	}
	return maps.Clone(v), true
}

// TaskNames returns the names of all completed tasks, sorted.
func (n *Namespace) TaskNames() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.tasks))
	for name := range n.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind binds a loop variable, overwriting any earlier binding.
// Bindings outlive the loop that made them.
func (n *Namespace) Bind(name string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bindings[name] = value
}

// Binding returns the current value of a loop variable.
func (n *Namespace) Binding(name string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.bindings[name]
	return v, ok
}

// Lookup resolves a root name for expression evaluation.
func (n *Namespace) Lookup(name string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	switch name {
	case TaskRoot:
		out := make(map[string]any, len(n.tasks))
		for k, v := range n.tasks {
			out[k] = v
		}
		return out, true
	case VarRoot:
		return maps.Clone(n.variables), true
	}

	if v, ok := n.bindings[name]; ok {
		return v, true
	}
	if v, ok := n.variables[name]; ok {
		return v, true
	}
	if v, ok := n.tasks[name]; ok {
		return v, true
	}
	return nil, false
}

// Snapshot returns a copy of the completed task values.
func (n *Namespace) Snapshot() map[string]map[string]any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]map[string]any, len(n.tasks))
	for k, v := range n.tasks {
		out[k] = maps.Clone(v)
	}
	return out
}
