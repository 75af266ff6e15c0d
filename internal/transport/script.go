package transport

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// ErrCallableNotFound is returned when a script does not define the requested function.
var ErrCallableNotFound = errors.New("callable not defined in script")

// 匹配函数定义: function <name>(<args>)
var functionPattern = regexp.MustCompile(`function\s+([A-Za-z_$][\w$]*)\s*\(([^)]*)\)`)

// Call names a function to invoke after the script body has run.
type Call struct {
	// Function is the function name. Its parameters are read from the
	// script source and filled from same-named globals.
	Function string
	// Returns, when set, is the global the return value is bound to.
	Returns string
}

// ScriptHost runs JavaScript with goja.
type ScriptHost struct {
	logger *zap.Logger
}

// NewScriptHost creates a script host. console output goes to logger.
func NewScriptHost(logger *zap.Logger) *ScriptHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptHost{logger: logger}
}

// Exec runs source with scope as its global variables and returns the
// globals afterwards. Functions and the console object are left out.
func (h *ScriptHost) Exec(ctx context.Context, source string, scope map[string]any, call *Call) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	h.setupConsole(vm)

	for k, v := range scope {
		if err := vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("set global %q: %w", k, err)
		}
	}

	// 设置中断处理
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	if _, err := vm.RunString(source); err != nil {
		return nil, h.scriptError(ctx, err)
	}

	if call != nil && call.Function != "" {
		if err := h.invoke(ctx, vm, source, call); err != nil {
			return nil, err
		}
	}

	return exportGlobals(vm), nil
}

func (h *ScriptHost) invoke(ctx context.Context, vm *goja.Runtime, source string, call *Call) error {
	params, ok := FunctionParams(source, call.Function)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCallableNotFound, call.Function)
	}
	fn, ok := goja.AssertFunction(vm.Get(call.Function))
	if !ok {
		return fmt.Errorf("%w: %s", ErrCallableNotFound, call.Function)
	}

	args := make([]goja.Value, len(params))
	for i, p := range params {
		v := vm.Get(p)
		if v == nil {
			v = goja.Undefined()
		}
		args[i] = v
	}

	ret, err := fn(goja.Undefined(), args...)
	if err != nil {
		return h.scriptError(ctx, err)
	}
	if call.Returns != "" {
		if err := vm.Set(call.Returns, ret); err != nil {
			return fmt.Errorf("bind return value to %q: %w", call.Returns, err)
		}
	}
	return nil
}

func (h *ScriptHost) scriptError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return fmt.Errorf("script error: %s", exc.Value().String())
	}
	return fmt.Errorf("script error: %w", err)
}

// setupConsole 设置 console 对象
func (h *ScriptHost) setupConsole(vm *goja.Runtime) {
	console := vm.NewObject()
	logFn := func(level string) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "error":
				h.logger.Error(msg, zap.String("source", "console"))
			case "warn":
				h.logger.Warn(msg, zap.String("source", "console"))
			case "debug":
				h.logger.Debug(msg, zap.String("source", "console"))
			default:
				h.logger.Info(msg, zap.String("source", "console"))
			}
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logFn("info"))
	_ = console.Set("info", logFn("info"))
	_ = console.Set("warn", logFn("warn"))
	_ = console.Set("error", logFn("error"))
	_ = console.Set("debug", logFn("debug"))
	_ = vm.Set("console", console)
}

func exportGlobals(vm *goja.Runtime) map[string]any {
	global := vm.GlobalObject()
	out := make(map[string]any)
	for _, key := range global.Keys() {
		if key == "console" {
			continue
		}
		v := global.Get(key)
		if v == nil {
			continue
		}
		if _, isFn := goja.AssertFunction(v); isFn {
			continue
		}
		if goja.IsUndefined(v) {
			out[key] = nil
			continue
		}
		out[key] = v.Export()
	}
	return out
}

// FunctionParams returns the parameter names of function name in source.
func FunctionParams(source, name string) ([]string, bool) {
	for _, m := range functionPattern.FindAllStringSubmatch(source, -1) {
		if m[1] != name {
			continue
		}
		var params []string
		for _, p := range strings.Split(m[2], ",") {
			p = strings.TrimSpace(p)
			if i := strings.IndexByte(p, '='); i >= 0 {
				p = strings.TrimSpace(p[:i])
			}
			if p != "" {
				params = append(params, p)
			}
		}
		return params, true
	}
	return nil, false
}
