package executor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"yqhp/jobflow/internal/backend"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/transport"
	"yqhp/jobflow/pkg/types"
)

// ShellOutput is the implicit output of every shell task.
const ShellOutput = "output"

// HandleShell runs the task target through the shell with the locals as
// environment. The result holds "output", the non-empty stdout lines each
// terminated by a newline, plus any declared output printed as key=value.
func (b *Backend) HandleShell(ctx context.Context, tc *types.TaskContext) (map[string]any, error) {
	task := tc.Task
	command := b.interpolate(tc, task.Target)
	path, isFile, err := backend.ResolveFile(task.Name, command, ".sh", b.dir(), b.namespace)
	if err != nil {
		return nil, err
	}
	if isFile {
		command = b.process.Shell() + " " + shellQuote(path)
	}

	delimiter := task.ConfigString("delimiter", b.cfg.Delimiter)
	if delimiter == "" {
		delimiter = "\n"
	}
	wd := b.interpolate(tc, task.ConfigString("wd", ""))

	b.logger.Debug("exec shell", zap.String("task", task.Name), zap.String("command", command), zap.String("wd", wd))
	stdout, stderr, code, err := b.process.Run(ctx, command, transport.StringEnv(tc.Locals), wd)
	if err != nil {
		return nil, interpreter.NewExecutionError(task.Name, nil, "shell command failed", err)
	}

	for _, line := range strings.Split(stderr, delimiter) {
		if line = strings.TrimRight(line, "\r"); line != "" {
			b.logger.Error("ERROR: "+line, zap.String("task", task.Name))
		}
	}
	if code != 0 {
		return nil, interpreter.NewExecutionError(task.Name, interpreter.ErrNonZeroExit,
			fmt.Sprintf("return code: %d", code), nil)
	}

	lines := nonEmptyLines(stdout, delimiter)
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	outputs := map[string]any{ShellOutput: sb.String()}

	for _, name := range task.Outputs {
		if name == ShellOutput {
			continue
		}
		v, ok := keyValue(lines, name)
		if !ok {
			return nil, interpreter.NewOutputNotFoundError(task.Name, name)
		}
		outputs[name] = v
	}
	return outputs, nil
}

func nonEmptyLines(s, delimiter string) []string {
	var lines []string
	for _, line := range strings.Split(s, delimiter) {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// keyValue returns the value of the last "name=value" line.
func keyValue(lines []string, name string) (string, bool) {
	prefix := name + "="
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix), true
		}
	}
	return "", false
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
