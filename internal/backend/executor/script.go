package executor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"

	"go.uber.org/zap"

	"yqhp/jobflow/internal/backend"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/transport"
	"yqhp/jobflow/pkg/types"
	"yqhp/jobflow/pkg/utils"
)

// ScriptExt marks a script target that is a file.
const ScriptExt = ".js"

// HandleScript runs JavaScript with the locals as globals. The target is
// either the script itself or a path to a .js file. With "callable" set,
// the named function is then called with same-named globals as arguments
// and its result bound to "returns". Only inputs and declared outputs are
// kept afterwards.
func (b *Backend) HandleScript(ctx context.Context, tc *types.TaskContext) (map[string]any, error) {
	task := tc.Task

	source := task.Target
	origin := "inline script"
	path, isFile, err := backend.ResolveFile(task.Name, task.Target, ScriptExt, b.dir(), b.namespace)
	if err != nil {
		return nil, err
	}
	if isFile {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, interpreter.NewConfigurationError(task.Name, interpreter.ErrFileNotFound,
				fmt.Sprintf("read script %s", path), err)
		}
		source = string(raw)
		origin = path
	}

	var call *transport.Call
	if fn := task.ConfigString("callable", ""); fn != "" {
		call = &transport.Call{Function: fn, Returns: task.ConfigString("returns", "")}
	}

	b.logger.Debug("exec script", zap.String("task", task.Name), zap.String("script", origin))
	globals, err := b.scripts.Exec(ctx, source, maps.Clone(tc.Locals), call)
	if err != nil {
		if errors.Is(err, transport.ErrCallableNotFound) {
			return nil, interpreter.NewExecutionError(task.Name, nil,
				fmt.Sprintf("the function %s was not defined in %s", call.Function, origin), err)
		}
		return nil, interpreter.NewExecutionError(task.Name, nil, "script failed", err)
	}

	inputs := task.InputNames()
	kept := utils.MapFilter(globals, func(k string, _ any) bool {
		return utils.SliceContains(inputs, k) || utils.SliceContains(task.Outputs, k)
	})
	for _, name := range task.Outputs {
		if _, ok := kept[name]; !ok {
			return nil, interpreter.NewOutputNotFoundError(task.Name, name)
		}
	}
	return kept, nil
}
