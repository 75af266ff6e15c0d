package executor

import (
	"context"

	"go.uber.org/zap"

	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/pkg/types"
)

// HandleService calls a CSIP-style service with the locals as parameters
// and returns the "value" of every declared output.
func (b *Backend) HandleService(ctx context.Context, tc *types.TaskContext) (map[string]any, error) {
	task := tc.Task
	url := b.interpolate(tc, task.Target)

	b.logger.Debug("exec service", zap.String("task", task.Name), zap.String("url", url))
	result, err := b.service.Call(ctx, url, tc.Locals)
	if err != nil {
		return nil, interpreter.NewExecutionError(task.Name, nil, "service call failed", err)
	}

	outputs := make(map[string]any, len(task.Outputs))
	for _, name := range task.Outputs {
		entry, ok := result[name].(map[string]any)
		if !ok {
			return nil, interpreter.NewOutputNotFoundError(task.Name, name)
		}
		v, ok := entry["value"]
		if !ok {
			return nil, interpreter.NewOutputNotFoundError(task.Name, name)
		}
		outputs[name] = v
	}
	return outputs, nil
}
