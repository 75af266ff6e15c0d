package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const waitDelay = 2 * time.Second

// ProcessLauncher runs shell commands.
type ProcessLauncher struct {
	shell     string
	shellArgs []string
	// inheritEnv passes the parent environment through, with task values on top.
	inheritEnv bool
}

// NewProcessLauncher creates a launcher for shell ("" means /bin/sh).
func NewProcessLauncher(shell string, inheritEnv bool) *ProcessLauncher {
	if shell == "" {
		shell = "/bin/sh"
	}
	p := &ProcessLauncher{shell: shell, inheritEnv: inheritEnv}

	// 常见 shell 的默认参数
	switch {
	case strings.Contains(shell, "powershell"):
		p.shellArgs = []string{"-Command"}
	case strings.HasSuffix(shell, "cmd") || strings.HasSuffix(shell, "cmd.exe"):
		p.shellArgs = []string{"/C"}
	default:
		p.shellArgs = []string{"-c"}
	}
	return p
}

// Shell returns the shell binary.
func (p *ProcessLauncher) Shell() string { return p.shell }

// Run runs command and waits for it. A non-zero exit is reported through
// exitCode, not err; err is for processes that could not run or were
// cancelled.
func (p *ProcessLauncher) Run(ctx context.Context, command string, env map[string]string, wd string) (stdout, stderr string, exitCode int, err error) {
	args := append(append([]string{}, p.shellArgs...), command)
	cmd := exec.CommandContext(ctx, p.shell, args...)

	cmd.Env = []string{}
	if p.inheritEnv {
		cmd.Env = os.Environ()
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, env[k]))
	}

	if wd != "" {
		cmd.Dir = wd
	}
	// 子进程可能持有输出管道, 取消后最多再等 waitDelay
	cmd.WaitDelay = waitDelay

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout, stderr, -1, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return stdout, stderr, exitErr.ExitCode(), nil
		}
		return stdout, stderr, -1, fmt.Errorf("run %q: %w", command, runErr)
	}
	return stdout, stderr, 0, nil
}

// StringEnv converts task values to environment strings.
func StringEnv(values map[string]any) map[string]string {
	env := make(map[string]string, len(values))
	for k, v := range values {
		env[k] = Stringify(v)
	}
	return env
}
