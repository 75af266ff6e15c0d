package validator_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"yqhp/jobflow/internal/backend/validator"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/pkg/types"
)

func newInterpreter(t *testing.T) *interpreter.Interpreter {
	return interpreter.New(validator.New(nil), interpreter.WithLogger(zaptest.NewLogger(t)))
}

func TestValidator_Endpoints(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		heads.Add(1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ok := &types.Workflow{Name: "ok", Steps: types.Sequence{
		types.NewTaskStep(&types.Task{Name: "svc", Kind: types.TaskService, Target: srv.URL + "/svc"}),
		types.NewTaskStep(&types.Task{Name: "web", Kind: types.TaskHTTP, Target: srv.URL + "/web",
			Config: map[string]any{"method": "POST"}}),
	}}
	require.NoError(t, newInterpreter(t).Run(context.Background(), ok))
	assert.Equal(t, int32(2), heads.Load())

	bad := &types.Workflow{Name: "bad", Steps: types.Sequence{
		types.NewTaskStep(&types.Task{Name: "web", Kind: types.TaskHTTP, Target: srv.URL + "/missing"}),
	}}
	err := newInterpreter(t).Run(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interpreter.ErrUnreachable))
	assert.True(t, interpreter.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "web")
}

func TestValidator_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	wf := &types.Workflow{Name: "down", Steps: types.Sequence{
		types.NewTaskStep(&types.Task{Name: "svc", Kind: types.TaskService, Target: url}),
	}}
	err := newInterpreter(t).Run(context.Background(), wf)
	assert.True(t, errors.Is(err, interpreter.ErrUnreachable))
}

func TestValidator_Files(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("exit 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calc.js"), []byte("var x = 1;"), 0o644))

	tests := []struct {
		name   string
		task   *types.Task
		wantOK bool
	}{
		{"inline shell", &types.Task{Name: "t", Kind: types.TaskShell, Target: "exit 1"}, true},
		{"shell file", &types.Task{Name: "t", Kind: types.TaskShell, Target: "run.sh"}, true},
		{"absolute shell file", &types.Task{Name: "t", Kind: types.TaskShell, Target: filepath.Join(dir, "run.sh")}, true},
		{"missing shell file", &types.Task{Name: "t", Kind: types.TaskShell, Target: "gone.sh"}, false},
		{"inline script", &types.Task{Name: "t", Kind: types.TaskScript, Target: "throw 1"}, true},
		{"script file", &types.Task{Name: "t", Kind: types.TaskScript, Target: "calc.js"}, true},
		{"missing script file", &types.Task{Name: "t", Kind: types.TaskScript, Target: "gone.js"}, false},
		{"script via variable", &types.Task{Name: "t", Kind: types.TaskScript, Target: "var.script"}, true},
		{"empty variable is inline", &types.Task{Name: "t", Kind: types.TaskScript, Target: "var.empty"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &types.Workflow{
				Name:      "files",
				Dir:       dir,
				Variables: map[string]any{"script": "calc.js", "empty": ""},
				Steps:     types.Sequence{types.NewTaskStep(tt.task)},
			}
			err := newInterpreter(t).Run(context.Background(), wf)
			if tt.wantOK {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, interpreter.ErrFileNotFound), "got %v", err)
			assert.True(t, interpreter.IsConfigurationError(err))
		})
	}
}

func TestValidator_WritesInputsAndNilOutputs(t *testing.T) {
	in := newInterpreter(t)
	task := &types.Task{
		Name: "t1", Kind: types.TaskShell, Target: "rm -rf /definitely/not/run",
		Inputs:  []types.Input{{Name: "n", Expr: "1 + 1"}},
		Outputs: []string{"output", "n", "status"},
	}
	wf := &types.Workflow{Name: "dry", Steps: types.Sequence{
		types.NewTaskStep(task),
		types.NewForStep("i, range(3)", types.Sequence{
			types.NewTaskStep(&types.Task{Name: "loop", Kind: types.TaskShell, Target: "echo", Inputs: []types.Input{{Name: "i", Expr: "i"}}}),
		}),
	}}

	for i := 0; i < 2; i++ {
		require.NoError(t, in.Run(context.Background(), wf))
		values, ok := in.Namespace().Task("t1")
		require.True(t, ok)
		assert.Equal(t, map[string]any{"n": int64(2), "output": nil, "status": nil}, values)

		loop, ok := in.Namespace().Task("loop")
		require.True(t, ok)
		assert.Equal(t, map[string]any{"i": int64(2), "output": nil}, loop)
	}
}

func TestValidator_ConditionsOnOutputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	wf := &types.Workflow{Name: "scenario", Steps: types.Sequence{
		types.NewTaskStep(&types.Task{Name: "t1", Kind: types.TaskShell, Target: "echo hi"}),
		types.NewIfStep(`task.t1.output == 'hi\n'`, types.Sequence{
			types.NewTaskStep(&types.Task{Name: "t2", Kind: types.TaskShell, Target: "echo ok"}),
		}),
		types.NewTaskStep(&types.Task{Name: "api", Kind: types.TaskHTTP, Target: srv.URL, Outputs: []string{"code"}}),
		types.NewSwitchStep("task.api.code", []types.Case{
			{Value: int64(200), Body: types.Sequence{
				types.NewTaskStep(&types.Task{Name: "t3", Kind: types.TaskShell, Target: "echo 200"}),
			}},
		}, nil),
		types.NewIfStep("task.api.code == null", types.Sequence{
			types.NewTaskStep(&types.Task{Name: "t4", Kind: types.TaskScript, Target: "var x = 1;", Outputs: []string{"x"}}),
		}),
	}}

	in := newInterpreter(t)
	for i := 0; i < 2; i++ {
		require.NoError(t, in.Run(context.Background(), wf))

		_, ran := in.Namespace().Task("t2")
		assert.False(t, ran)
		_, ran = in.Namespace().Task("t3")
		assert.False(t, ran)
		values, ran := in.Namespace().Task("t4")
		require.True(t, ran)
		assert.Equal(t, map[string]any{"x": nil}, values)
	}
}
