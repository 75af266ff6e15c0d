// Package graph renders the control flow of a workflow as a directed graph.
//
// The Emitter is an interpreter backend that walks the workflow once in
// structural mode and builds a types.Graph; RenderDOT and RenderJSON turn
// that graph into text.
package graph

import (
	"context"
	"fmt"
	"sync"

	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/scope"
	"yqhp/jobflow/pkg/types"
)

// Well-known node ids.
const (
	StartID = "START"
	EndID   = "END"
)

// Node shapes.
const (
	ShapeTerminal   = "doublecircle"
	ShapeFork       = "house"
	ShapeFor        = "trapezium"
	ShapeCondition  = "diamond"
	ShapeTask       = "note"
	ShapeJoin       = "point"
	StyleBackEdge   = "dotted"
	maxTargetLength = 40
)

// block is an open if, switch, for or fork.
type block struct {
	kind     types.StepKind
	id       string
	term     string
	branches int
}

// Emitter builds the control-flow graph of a workflow.
type Emitter struct {
	mu       sync.Mutex
	graph    *types.Graph
	counters map[string]int
	last     string
	pending  string
	stack    []*block
	closed   bool
}

var (
	_ interpreter.Backend          = (*Emitter)(nil)
	_ interpreter.RunObserver      = (*Emitter)(nil)
	_ interpreter.StructureVisitor = (*Emitter)(nil)
)

// NewEmitter creates an emitter.
func NewEmitter() *Emitter {
	e := &Emitter{}
	e.reset("")
	return e
}

func (e *Emitter) reset(name string) {
	e.graph = &types.Graph{Name: name}
	e.counters = make(map[string]int)
	e.stack = nil
	e.pending = ""
	e.closed = false
	e.addNode(StartID, "start", ShapeTerminal, StartID)
	e.addNode(EndID, "end", ShapeTerminal, EndID)
	e.last = StartID
}

// Name implements interpreter.Backend.
func (e *Emitter) Name() string { return "graph" }

// Structural implements interpreter.StructureVisitor.
func (e *Emitter) Structural() bool { return true }

// Begin implements interpreter.RunObserver.
func (e *Emitter) Begin(_ context.Context, wf *types.Workflow, _ *scope.Namespace) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := ""
	if wf != nil {
		name = wf.Name
	}
	e.reset(name)
	return nil
}

// Graph returns the graph built by the last run.
func (e *Emitter) Graph() *types.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph
}

// HandleService implements interpreter.Backend.
func (e *Emitter) HandleService(_ context.Context, tc *types.TaskContext) (map[string]any, error) {
	e.task(tc.Task, true)
	return nil, nil
}

// HandleHTTP implements interpreter.Backend.
func (e *Emitter) HandleHTTP(_ context.Context, tc *types.TaskContext) (map[string]any, error) {
	e.task(tc.Task, true)
	return nil, nil
}

// HandleShell implements interpreter.Backend.
func (e *Emitter) HandleShell(_ context.Context, tc *types.TaskContext) (map[string]any, error) {
	e.task(tc.Task, false)
	return nil, nil
}

// HandleScript implements interpreter.Backend.
func (e *Emitter) HandleScript(_ context.Context, tc *types.TaskContext) (map[string]any, error) {
	e.task(tc.Task, true)
	return nil, nil
}

// Close connects the last node to END.
func (e *Emitter) Close(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.addEdge(e.last, EndID, e.pending, "")
	e.pending = ""
	e.last = EndID
	return nil
}

// EnterBlock implements interpreter.StructureVisitor.
func (e *Emitter) EnterBlock(step *types.Step) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kind := step.Kind.String()
	b := &block{kind: step.Kind, id: e.nextID(kind), term: e.nextID("term")}

	var shape, label string
	switch step.Kind {
	case types.StepIf:
		shape, label = ShapeCondition, "IF\n"+step.If.Condition
	case types.StepSwitch:
		shape, label = ShapeCondition, "SWITCH\n"+step.Switch.Condition
	case types.StepFor:
		shape, label = ShapeFor, "FOR\n"+step.For.Expr
	case types.StepFork:
		shape, label = ShapeFork, "FORK"
	}
	e.addNode(b.id, kind, shape, label)
	e.addNode(b.term, "term", ShapeJoin, "")

	e.addEdge(e.last, b.id, e.pending, "")
	e.pending = ""
	e.last = b.id
	e.stack = append(e.stack, b)
}

// EnterBranch implements interpreter.StructureVisitor.
func (e *Emitter) EnterBranch(_ *types.Step, _ int, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.top()
	if b == nil {
		return
	}
	b.branches++
	e.last = b.id
	e.pending = label
}

// ExitBranch implements interpreter.StructureVisitor.
func (e *Emitter) ExitBranch(*types.Step, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.top()
	if b == nil {
		return
	}
	e.addEdge(e.last, b.term, e.pending, "")
	e.pending = ""
}

// ExitBlock implements interpreter.StructureVisitor.
func (e *Emitter) ExitBlock(*types.Step) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.top()
	if b == nil {
		return
	}
	e.stack = e.stack[:len(e.stack)-1]

	switch {
	case b.kind == types.StepIf:
		e.addEdge(b.id, b.term, "false", "")
	case b.kind == types.StepFor:
		e.addEdge(b.term, b.id, "", StyleBackEdge)
	case b.branches == 0:
		e.addEdge(b.id, b.term, "", "")
	}
	e.pending = ""
	e.last = b.term
}

func (e *Emitter) task(t *types.Task, withTarget bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	label := fmt.Sprintf("'%s'", t.Name)
	if withTarget && t.Target != "" {
		label += "\n" + truncate(t.Target, maxTargetLength)
	}
	id := e.nextID("task")
	e.addNode(id, "task", ShapeTask, label)
	e.addEdge(e.last, id, e.pending, "")
	e.pending = ""
	e.last = id
}

func (e *Emitter) top() *block {
	if len(e.stack) == 0 {
		return nil
	}
	return e.stack[len(e.stack)-1]
}

// nextID returns "<kind>_<n>" with n counting per kind from zero.
func (e *Emitter) nextID(kind string) string {
	n := e.counters[kind]
	e.counters[kind] = n + 1
	return fmt.Sprintf("%s_%d", kind, n)
}

func (e *Emitter) addNode(id, kind, shape, label string) {
	e.graph.Nodes = append(e.graph.Nodes, types.Node{ID: id, Kind: kind, Shape: shape, Label: label})
}

func (e *Emitter) addEdge(from, to, label, style string) {
	e.graph.Edges = append(e.graph.Edges, types.Edge{From: from, To: to, Label: label, Style: style})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
