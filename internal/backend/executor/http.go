package executor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/transport"
	"yqhp/jobflow/pkg/types"
	"yqhp/jobflow/pkg/utils"
)

// HandleHTTP calls the task URL. GET-like methods send "params" as the
// query; other methods send the locals as a form, or as JSON when the
// content-type header says so. Declared outputs are read from the top
// level of the JSON response or through the JSONPath in "extract".
func (b *Backend) HandleHTTP(ctx context.Context, tc *types.TaskContext) (map[string]any, error) {
	task := tc.Task
	method := strings.ToUpper(strings.TrimSpace(task.ConfigString("method", "")))
	if method == "" {
		return nil, interpreter.NewConfigurationError(task.Name, interpreter.ErrMissingConfig,
			"http task must include method", nil)
	}

	headers := make(map[string]string)
	for k, v := range task.ConfigMap("header") {
		headers[k] = b.interpolate(tc, transport.Stringify(v))
	}

	req := &transport.Request{
		Method:  method,
		URL:     b.interpolate(tc, task.Target),
		Headers: headers,
		Query:   task.ConfigMap("params"),
	}
	switch method {
	case "GET", "HEAD", "DELETE", "OPTIONS":
	default:
		if isJSON(headers) {
			body, err := utils.ToJSONBytes(tc.Locals)
			if err != nil {
				return nil, interpreter.NewExecutionError(task.Name, nil, "encode request body", err)
			}
			req.Body = body
		} else {
			req.Form = tc.Locals
		}
	}

	b.logger.Debug("exec http", zap.String("task", task.Name), zap.String("method", method), zap.String("url", req.URL))
	resp, err := b.http.Call(ctx, req)
	if err != nil {
		return nil, interpreter.NewExecutionError(task.Name, nil, "http request failed", err)
	}
	if len(task.Outputs) == 0 {
		return map[string]any{}, nil
	}

	body, err := resp.JSON()
	if err != nil {
		return nil, interpreter.NewExecutionError(task.Name, nil, "http response is not JSON", err)
	}
	return extractOutputs(task, body)
}

func isJSON(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "content-type") && strings.Contains(strings.ToLower(v), transport.ContentTypeJSON) {
			return true
		}
	}
	return false
}

// extractOutputs picks every declared output out of a decoded JSON body.
func extractOutputs(task *types.Task, body any) (map[string]any, error) {
	paths := task.ConfigMap("extract")
	top, _ := body.(map[string]any)

	outputs := make(map[string]any, len(task.Outputs))
	for _, name := range task.Outputs {
		if expr, ok := paths[name].(string); ok {
			v, found, err := transport.Extract(body, expr)
			if err != nil {
				return nil, interpreter.NewConfigurationError(task.Name, interpreter.ErrInvalidConfig,
					fmt.Sprintf("extract %s", name), err)
			}
			if !found {
				return nil, interpreter.NewOutputNotFoundError(task.Name, name)
			}
			outputs[name] = v
			continue
		}
		v, ok := top[name]
		if !ok {
			return nil, interpreter.NewOutputNotFoundError(task.Name, name)
		}
		outputs[name] = v
	}
	return outputs, nil
}
