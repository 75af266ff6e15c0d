// Package parser loads job descriptions from YAML into the step tree.
package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"yqhp/jobflow/pkg/types"
)

// Top-level keys.
const (
	keyName = "name"
	keyVar  = "var"
	keyJob  = "job"
)

// Step keys. The first key of a step mapping decides its kind.
const (
	keyTask    = "task"
	keyIf      = "if"
	keyFor     = "for"
	keyDo      = "do"
	keySwitch  = "switch"
	keyDefault = "default"
	keyFork    = "fork"
	keyInputs  = "inputs"
	keyOutputs = "outputs"
)

// taskKinds maps the key naming a task's target to its kind.
var taskKinds = map[string]types.TaskKind{
	"csip":    types.TaskService,
	"service": types.TaskService,
	"http":    types.TaskHTTP,
	"bash":    types.TaskShell,
	"shell":   types.TaskShell,
	"python":  types.TaskScript,
	"script":  types.TaskScript,
}

// YAMLParser parses YAML job descriptions.
type YAMLParser struct{}

// NewYAMLParser creates a new YAMLParser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// ParseFile parses a job file. The workflow's File and Dir are set so
// relative script paths can be resolved against the file.
func (p *YAMLParser) ParseFile(path string) (*types.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{File: path, Message: "failed to read file", Cause: err}
	}
	wf, err := p.Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) && pe.File == "" {
			pe.File = path
		}
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	wf.File = abs
	wf.Dir = filepath.Dir(abs)
	if wf.Name == "" {
		wf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return wf, nil
}

// Parse parses a job description from bytes.
func (p *YAMLParser) Parse(data []byte) (*types.Workflow, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, wrapYAMLError(err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, NewParseError(0, 0, "empty job description", nil)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nodeError(root, "job description must be a mapping")
	}

	wf := &types.Workflow{}
	var job *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch key.Value {
		case keyName:
			if value.Kind != yaml.ScalarNode {
				return nil, nodeError(value, "name must be a string")
			}
			wf.Name = value.Value
		case keyVar:
			var vars map[string]any
			if err := value.Decode(&vars); err != nil {
				return nil, NewParseError(value.Line, value.Column, "var must be a mapping", err)
			}
			wf.Variables, _ = normalize(vars).(map[string]any)
		case keyJob:
			job = value
		default:
			return nil, nodeError(key, "unknown key %q", key.Value)
		}
	}
	if job == nil {
		return nil, nodeError(root, "job is required")
	}

	steps, err := p.parseSequence(job)
	if err != nil {
		return nil, err
	}
	wf.Steps = steps
	return wf, nil
}

func (p *YAMLParser) parseSequence(node *yaml.Node) (types.Sequence, error) {
	if isNull(node) {
		return types.Sequence{}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, nodeError(node, "expected a list of steps")
	}
	seq := make(types.Sequence, 0, len(node.Content))
	for _, item := range node.Content {
		step, err := p.parseStep(item)
		if err != nil {
			return nil, err
		}
		seq = append(seq, step)
	}
	return seq, nil
}

func (p *YAMLParser) parseStep(node *yaml.Node) (*types.Step, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) < 2 {
		return nil, nodeError(node, "step must be a non-empty mapping")
	}

	first := node.Content[0].Value
	switch {
	case first == keyTask:
		task, err := p.parseTask(node)
		if err != nil {
			return nil, err
		}
		return types.NewTaskStep(task), nil
	case first == keyIf:
		cond, body, err := p.parseBlock(node, keyIf)
		if err != nil {
			return nil, err
		}
		return types.NewIfStep(cond, body), nil
	case first == keyFor:
		expr, body, err := p.parseBlock(node, keyFor)
		if err != nil {
			return nil, err
		}
		return types.NewForStep(expr, body), nil
	case first == keySwitch:
		return p.parseSwitch(node)
	case strings.HasPrefix(first, keyFork):
		return p.parseFork(node.Content[1])
	default:
		return nil, nodeError(node.Content[0], "invalid step in job: %q", first)
	}
}

// parseBlock parses an if or for step: the head expression plus "do".
func (p *YAMLParser) parseBlock(node *yaml.Node, head string) (string, types.Sequence, error) {
	var expr string
	var body types.Sequence
	hasDo := false
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case head:
			if value.Kind != yaml.ScalarNode {
				return "", nil, nodeError(value, "%s expression must be a string", head)
			}
			expr = value.Value
		case keyDo:
			seq, err := p.parseSequence(value)
			if err != nil {
				return "", nil, err
			}
			body, hasDo = seq, true
		default:
			return "", nil, nodeError(key, "unknown key %q in %s step", key.Value, head)
		}
	}
	if !hasDo {
		return "", nil, nodeError(node, "%s step requires do", head)
	}
	return expr, body, nil
}

func (p *YAMLParser) parseSwitch(node *yaml.Node) (*types.Step, error) {
	var cond string
	var cases []types.Case
	var def types.Sequence
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if i == 0 {
			if value.Kind != yaml.ScalarNode {
				return nil, nodeError(value, "switch expression must be a string")
			}
			cond = value.Value
			continue
		}

		body, err := p.parseSequence(value)
		if err != nil {
			return nil, err
		}
		if key.Kind == yaml.ScalarNode && key.Tag == "!!str" && key.Value == keyDefault {
			def = body
			continue
		}

		caseValue, err := scalarValue(key)
		if err != nil {
			return nil, err
		}
		cases = append(cases, types.Case{Value: caseValue, Body: body})
	}
	return types.NewSwitchStep(cond, cases, def), nil
}

func (p *YAMLParser) parseFork(node *yaml.Node) (*types.Step, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, nodeError(node, "fork must be a list of step lists")
	}
	branches := make([]types.Sequence, 0, len(node.Content))
	for _, item := range node.Content {
		seq, err := p.parseSequence(item)
		if err != nil {
			return nil, err
		}
		branches = append(branches, seq)
	}
	return types.NewForkStep(branches...), nil
}

// parseTask maps the present keys onto a Task. The target key sets the
// kind; every key besides name, target, inputs and outputs goes to Config.
// A missing kind is left as TaskUnknown for the interpreter to report.
func (p *YAMLParser) parseTask(node *yaml.Node) (*types.Task, error) {
	task := &types.Task{Config: make(map[string]any)}
	kindKey := ""

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		name := key.Value

		if kind, ok := taskKinds[name]; ok {
			if kindKey != "" {
				return nil, nodeError(key, "task %q has both %s and %s", task.Name, kindKey, name)
			}
			if value.Kind != yaml.ScalarNode {
				return nil, nodeError(value, "%s must be a string", name)
			}
			kindKey, task.Kind, task.Target = name, kind, value.Value
			continue
		}

		switch name {
		case keyTask:
			if value.Kind != yaml.ScalarNode {
				return nil, nodeError(value, "task name must be a string")
			}
			task.Name = value.Value
		case keyInputs:
			inputs, err := parseInputs(value)
			if err != nil {
				return nil, err
			}
			task.Inputs = inputs
		case keyOutputs:
			outputs, err := parseOutputs(value)
			if err != nil {
				return nil, err
			}
			task.Outputs = outputs
		default:
			var v any
			if err := value.Decode(&v); err != nil {
				return nil, NewParseError(value.Line, value.Column, fmt.Sprintf("invalid value for %s", name), err)
			}
			task.Config[name] = normalize(v)
		}
	}
	return task, nil
}

// parseInputs keeps declaration order. Every value is an expression; a
// list is turned into a list literal whose string items are quoted.
func parseInputs(node *yaml.Node) ([]types.Input, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, nodeError(node, "inputs must be a mapping")
	}
	inputs := make([]types.Input, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		expr, err := exprText(node.Content[i+1], false)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, types.Input{Name: node.Content[i].Value, Expr: expr})
	}
	return inputs, nil
}

func parseOutputs(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if isNull(node) {
			return nil, nil
		}
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, nodeError(item, "output names must be strings")
			}
			out = append(out, item.Value)
		}
		return out, nil
	default:
		return nil, nodeError(node, "outputs must be a list of names")
	}
}

// exprText renders a YAML value as expression source.
func exprText(node *yaml.Node, nested bool) (string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return "null", nil
		case "!!str":
			if nested {
				return quote(node.Value), nil
			}
			return node.Value, nil
		default:
			return node.Value, nil
		}
	case yaml.SequenceNode:
		parts := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			s, err := exprText(item, true)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", nodeError(node, "input value must be an expression or a list")
	}
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\t", `\t`)
	return "'" + r.Replace(s) + "'"
}

// scalarValue decodes a switch case key keeping its YAML type.
func scalarValue(node *yaml.Node) (any, error) {
	if node.Kind != yaml.ScalarNode {
		return nil, nodeError(node, "switch case must be a scalar")
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, NewParseError(node.Line, node.Column, "invalid switch case", err)
	}
	return normalize(v), nil
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

// normalize turns decoded integers into int64, recursively.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}

// ParseValue reads s as a YAML scalar, so "3" becomes int64(3) and
// "true" a bool. Anything that is not valid YAML stays a string.
func ParseValue(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		return s
	}
	return normalize(v)
}
