package executor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"yqhp/jobflow/internal/backend/executor"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/ledger"
	"yqhp/jobflow/pkg/types"
)

type harness struct {
	in     *interpreter.Interpreter
	ledger *ledger.MemoryLedger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := ledger.NewMemoryLedger()
	log := zaptest.NewLogger(t)
	b := executor.New(executor.DefaultConfig(), executor.WithLedger(l), executor.WithLogger(log))
	return &harness{
		in:     interpreter.New(b, interpreter.WithLogger(log)),
		ledger: l,
	}
}

func (h *harness) run(t *testing.T, wf *types.Workflow) error {
	t.Helper()
	return h.in.Run(context.Background(), wf)
}

func (h *harness) task(t *testing.T, name string) map[string]any {
	t.Helper()
	values, ok := h.in.Namespace().Task(name)
	require.True(t, ok, "task %s not in namespace", name)
	return values
}

func requireShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func flow(steps ...*types.Step) *types.Workflow {
	return &types.Workflow{Name: "test", Steps: steps}
}

func shellTask(name, command string) *types.Task {
	return &types.Task{Name: name, Kind: types.TaskShell, Target: command}
}

func TestExecutor_ShellOutputDrivesIf(t *testing.T) {
	requireShell(t)
	h := newHarness(t)

	err := h.run(t, flow(
		types.NewTaskStep(shellTask("t1", "echo hi")),
		types.NewIfStep(`task.t1.output == 'hi\n'`, types.Sequence{
			types.NewTaskStep(shellTask("t2", "echo ok")),
		}),
	))
	require.NoError(t, err)

	assert.Equal(t, "hi\n", h.task(t, "t1")["output"])
	assert.Equal(t, "ok\n", h.task(t, "t2")["output"])

	entries := h.ledger.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "t1", entries[0].Task)
	assert.Equal(t, "success", entries[1].Status)
	assert.True(t, h.ledger.Closed())
}

func TestHandleShell_LocalsAsEnvironment(t *testing.T) {
	requireShell(t)
	h := newHarness(t)

	task := shellTask("greet", `echo "$greeting $count"`)
	task.Inputs = []types.Input{{Name: "greeting", Expr: "'hello'"}, {Name: "count", Expr: "1 + 2"}}

	require.NoError(t, h.run(t, flow(types.NewTaskStep(task))))
	values := h.task(t, "greet")
	assert.Equal(t, "hello 3\n", values["output"])
	assert.Equal(t, "hello", values["greeting"])
}

func TestHandleShell_KeyValueOutputs(t *testing.T) {
	requireShell(t)
	h := newHarness(t)

	task := shellTask("kv", `printf 'noise\na=1\n\nb=two\n'`)
	task.Outputs = []string{"output", "a", "b"}
	require.NoError(t, h.run(t, flow(types.NewTaskStep(task))))

	values := h.task(t, "kv")
	assert.Equal(t, "noise\na=1\nb=two\n", values["output"])
	assert.Equal(t, "1", values["a"])
	assert.Equal(t, "two", values["b"])

	missing := shellTask("kv2", "echo a=1")
	missing.Outputs = []string{"c"}
	err := h.run(t, flow(types.NewTaskStep(missing)))
	assert.True(t, errors.Is(err, interpreter.ErrOutputNotFound))
	assert.True(t, interpreter.IsExecutionError(err))
}

func TestHandleShell_Delimiter(t *testing.T) {
	requireShell(t)
	h := newHarness(t)

	task := shellTask("split", `printf 'x;y;;z'`)
	task.Config = map[string]any{"delimiter": ";"}
	require.NoError(t, h.run(t, flow(types.NewTaskStep(task))))
	assert.Equal(t, "x\ny\nz\n", h.task(t, "split")["output"])
}

func TestHandleShell_NonZeroExit(t *testing.T) {
	requireShell(t)
	h := newHarness(t)

	err := h.run(t, flow(
		types.NewTaskStep(shellTask("bad", "echo oops >&2; exit 2")),
		types.NewTaskStep(shellTask("never", "echo no")),
	))
	require.Error(t, err)
	assert.True(t, errors.Is(err, interpreter.ErrNonZeroExit))

	var execErr *interpreter.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "bad", execErr.Task)

	_, ran := h.in.Namespace().Task("never")
	assert.False(t, ran)

	entries := h.ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Status)
	assert.NotEmpty(t, entries[0].Error)
}

func TestHandleShell_ScriptFileAndWorkingDir(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.sh"), []byte("echo from-file\n"), 0o644))

	h := newHarness(t)
	wf := flow(types.NewTaskStep(shellTask("file", "hello.sh")))
	wf.Dir = dir
	require.NoError(t, h.run(t, wf))
	assert.Equal(t, "from-file\n", h.task(t, "file")["output"])

	h = newHarness(t)
	task := shellTask("pwd", "echo *")
	task.Config = map[string]any{"wd": dir}
	require.NoError(t, h.run(t, flow(types.NewTaskStep(task))))
	assert.Equal(t, "hello.sh\n", h.task(t, "pwd")["output"])
}

func TestHandleShell_Interpolation(t *testing.T) {
	requireShell(t)
	h := newHarness(t)

	wf := flow(
		types.NewTaskStep(shellTask("first", "echo one")),
		types.NewTaskStep(shellTask("second", "echo ${var.name}-${len(task.first.output)}")),
	)
	wf.Variables = map[string]any{"name": "world"}
	require.NoError(t, h.run(t, wf))
	assert.Equal(t, "world-4\n", h.task(t, "second")["output"])
}

func TestHandleShell_MissingScriptFile(t *testing.T) {
	h := newHarness(t)
	wf := flow(types.NewTaskStep(shellTask("gone", "gone.sh")))
	wf.Dir = t.TempDir()

	err := h.run(t, wf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interpreter.ErrFileNotFound), "got %v", err)
	assert.True(t, interpreter.IsConfigurationError(err))
	_, ran := h.in.Namespace().Task("gone")
	assert.False(t, ran)
}

func TestHandleShell_UnresolvedReferenceIsLogged(t *testing.T) {
	requireShell(t)
	core, logs := observer.New(zap.WarnLevel)
	b := executor.New(executor.DefaultConfig(), executor.WithLogger(zap.New(core)))
	in := interpreter.New(b, interpreter.WithLogger(zaptest.NewLogger(t)))

	require.NoError(t, in.Run(context.Background(), flow(
		types.NewTaskStep(shellTask("t", "echo '${missing_name}'")),
	)))
	values, ok := in.Namespace().Task("t")
	require.True(t, ok)
	assert.Equal(t, "${missing_name}\n", values["output"])

	warned := logs.FilterMessage("unresolved reference").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "t", warned[0].ContextMap()["task"])
	assert.Contains(t, warned[0].ContextMap()["error"], "${missing_name}")
}

func TestHandleHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get":
			assert.Equal(t, "7", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(`{"status": "ok", "data": {"id": 42}}`))
		case "/post":
			raw, _ := io.ReadAll(r.Body)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.EqualValues(t, 5, body["x"])
			_, _ = w.Write([]byte(`{"echo": true}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	get := &types.Task{
		Name: "get", Kind: types.TaskHTTP, Target: srv.URL + "/get",
		Outputs: []string{"status", "id"},
		Config: map[string]any{
			"method":  "GET",
			"params":  map[string]any{"id": 7},
			"extract": map[string]any{"id": "$.data.id"},
		},
	}
	post := &types.Task{
		Name: "post", Kind: types.TaskHTTP, Target: srv.URL + "/post",
		Inputs:  []types.Input{{Name: "x", Expr: "task.get.id - 37"}},
		Outputs: []string{"echo"},
		Config: map[string]any{
			"method": "post",
			"header": map[string]any{"content-type": "application/json"},
		},
	}

	h := newHarness(t)
	require.NoError(t, h.run(t, flow(types.NewTaskStep(get), types.NewTaskStep(post))))
	assert.Equal(t, "ok", h.task(t, "get")["status"])
	assert.Equal(t, int64(42), h.task(t, "get")["id"])
	assert.Equal(t, true, h.task(t, "post")["echo"])

	t.Run("missing method", func(t *testing.T) {
		task := &types.Task{Name: "m", Kind: types.TaskHTTP, Target: srv.URL + "/get"}
		err := newHarness(t).run(t, flow(types.NewTaskStep(task)))
		assert.True(t, errors.Is(err, interpreter.ErrMissingConfig))
		assert.True(t, interpreter.IsConfigurationError(err))
	})

	t.Run("server error", func(t *testing.T) {
		task := &types.Task{Name: "e", Kind: types.TaskHTTP, Target: srv.URL + "/boom", Config: map[string]any{"method": "GET"}}
		err := newHarness(t).run(t, flow(types.NewTaskStep(task)))
		assert.True(t, interpreter.IsExecutionError(err))
	})

	t.Run("missing output", func(t *testing.T) {
		task := &types.Task{Name: "o", Kind: types.TaskHTTP, Target: srv.URL + "/get",
			Outputs: []string{"nope"}, Config: map[string]any{"method": "GET", "params": map[string]any{"id": 7}}}
		err := newHarness(t).run(t, flow(types.NewTaskStep(task)))
		assert.True(t, errors.Is(err, interpreter.ErrOutputNotFound))
	})
}

func TestHandleService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"metainfo": {"status": "Finished"},
			"result": [{"name": "area", "value": 12}, {"name": "unit"}]
		}`))
	}))
	defer srv.Close()

	task := &types.Task{
		Name: "svc", Kind: types.TaskService, Target: srv.URL,
		Inputs:  []types.Input{{Name: "w", Expr: "3"}},
		Outputs: []string{"area"},
	}
	h := newHarness(t)
	require.NoError(t, h.run(t, flow(types.NewTaskStep(task))))
	assert.EqualValues(t, 12, h.task(t, "svc")["area"])
	assert.EqualValues(t, 3, h.task(t, "svc")["w"])

	noValue := &types.Task{Name: "svc2", Kind: types.TaskService, Target: srv.URL, Outputs: []string{"unit"}}
	err := newHarness(t).run(t, flow(types.NewTaskStep(noValue)))
	assert.True(t, errors.Is(err, interpreter.ErrOutputNotFound))
}

func TestHandleService_Failed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metainfo": {"status": "Failed", "error": "bad"}, "result": []}`))
	}))
	defer srv.Close()

	task := &types.Task{Name: "svc", Kind: types.TaskService, Target: srv.URL}
	err := newHarness(t).run(t, flow(types.NewTaskStep(task)))
	assert.True(t, interpreter.IsExecutionError(err))
	assert.Contains(t, err.Error(), "bad")
}

func TestHandleScript_InlineKeepsInputsAndOutputs(t *testing.T) {
	task := &types.Task{
		Name: "js", Kind: types.TaskScript,
		Target:  "var sum = a + b; var scratch = 'x';",
		Inputs:  []types.Input{{Name: "a", Expr: "2"}, {Name: "b", Expr: "3"}},
		Outputs: []string{"sum"},
	}
	h := newHarness(t)
	require.NoError(t, h.run(t, flow(types.NewTaskStep(task))))

	values := h.task(t, "js")
	assert.EqualValues(t, 5, values["sum"])
	assert.EqualValues(t, 2, values["a"])
	assert.NotContains(t, values, "scratch")
}

func TestHandleScript_FileWithCallable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "area.js")
	require.NoError(t, os.WriteFile(path, []byte("function area(w, h) {\n  return w * h;\n}\n"), 0o644))

	task := &types.Task{
		Name: "calc", Kind: types.TaskScript, Target: "area.js",
		Inputs:  []types.Input{{Name: "w", Expr: "3"}, {Name: "h", Expr: "4"}},
		Outputs: []string{"result"},
		Config:  map[string]any{"callable": "area", "returns": "result"},
	}
	wf := flow(types.NewTaskStep(task))
	wf.Dir = dir

	h := newHarness(t)
	require.NoError(t, h.run(t, wf))
	assert.EqualValues(t, 12, h.task(t, "calc")["result"])

	// 通过变量引用脚本路径
	byVar := &types.Task{
		Name: "calc", Kind: types.TaskScript, Target: "var.script",
		Inputs:  task.Inputs,
		Outputs: []string{"result"},
		Config:  task.Config,
	}
	wf = flow(types.NewTaskStep(byVar))
	wf.Variables = map[string]any{"script": path}
	h = newHarness(t)
	require.NoError(t, h.run(t, wf))
	assert.EqualValues(t, 12, h.task(t, "calc")["result"])
}

func TestHandleScript_Errors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.js"), []byte("function f(x) { return x; }"), 0o644))

	tests := []struct {
		name   string
		task   *types.Task
		reason error
		config bool
	}{
		{
			name:   "missing callable",
			task:   &types.Task{Name: "s", Kind: types.TaskScript, Target: "f.js", Config: map[string]any{"callable": "g"}},
			reason: interpreter.ErrTaskFailed,
		},
		{
			name:   "missing file",
			task:   &types.Task{Name: "s", Kind: types.TaskScript, Target: "nope.js"},
			reason: interpreter.ErrFileNotFound,
			config: true,
		},
		{
			name:   "missing output",
			task:   &types.Task{Name: "s", Kind: types.TaskScript, Target: "var y = 1;", Outputs: []string{"z"}},
			reason: interpreter.ErrOutputNotFound,
		},
		{
			name:   "throws",
			task:   &types.Task{Name: "s", Kind: types.TaskScript, Target: "throw new Error('bad')"},
			reason: interpreter.ErrTaskFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := flow(types.NewTaskStep(tt.task))
			wf.Dir = dir
			err := newHarness(t).run(t, wf)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.reason), "got %v", err)
			assert.Equal(t, tt.config, interpreter.IsConfigurationError(err))
		})
	}
}
