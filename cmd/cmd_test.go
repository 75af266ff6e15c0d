package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/ledger"
	"yqhp/jobflow/pkg/types"
	"yqhp/jobflow/pkg/utils"
)

const greetJob = `
name: greet
var:
  who: nobody
job:
  - task: hello
    bash: echo ${var.who}
  - if: task.hello.output == 'ann\n'
    do:
      - task: matched
        bash: echo matched
`

func writeJob(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestRun_WritesLedger(t *testing.T) {
	job := writeJob(t, "greet.yaml", greetJob)
	ledgerPath := filepath.Join(t.TempDir(), "ledger.jsonl")

	out, err := execute(t, "run", "--ledger", ledgerPath, "--var", "who=ann", job)
	require.NoError(t, err)
	assert.Contains(t, out, "greet: ok (tasks=2 failed=0")

	raw, err := os.ReadFile(ledgerPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	first, err := utils.FromJSONBytes[ledger.Entry]([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, "hello", first.Task)
	assert.Equal(t, "greet", first.Workflow)
	assert.Equal(t, "ann\n", first.Outputs["output"])

	second, err := utils.FromJSONBytes[ledger.Entry]([]byte(lines[1]))
	require.NoError(t, err)
	assert.Equal(t, "matched", second.Task)
	assert.Equal(t, first.RunID, second.RunID)
}

func TestRun_DefaultVariables(t *testing.T) {
	job := writeJob(t, "greet.yaml", greetJob)

	out, err := execute(t, "run", job)
	require.NoError(t, err)
	assert.Contains(t, out, "greet: ok (tasks=1 failed=0")
}

func TestRun_Failure(t *testing.T) {
	job := writeJob(t, "fail.yaml", "name: fail\njob:\n  - task: boom\n    bash: exit 3\n  - task: never\n    bash: echo\n")

	out, err := execute(t, "run", job)
	require.Error(t, err)
	assert.ErrorIs(t, err, interpreter.ErrNonZeroExit)
	assert.Contains(t, out, "fail: failed (tasks=1 failed=1")
}

func TestRun_Quiet(t *testing.T) {
	job := writeJob(t, "greet.yaml", greetJob)

	out, err := execute(t, "--quiet", "run", job)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRun_Errors(t *testing.T) {
	job := writeJob(t, "greet.yaml", greetJob)

	_, err := execute(t, "run", "--var", "novalue", job)
	assert.ErrorContains(t, err, "--var")

	_, err = execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "解析作业失败")

	_, err = execute(t, "run")
	assert.Error(t, err)

	_, err = execute(t, "--set", "executor.nope=1", "run", job)
	assert.ErrorContains(t, err, "未知的配置路径")

	_, err = execute(t, "--set", "log.level=loud", "run", job)
	assert.ErrorContains(t, err, "log.level")
}

func TestValidate(t *testing.T) {
	job := writeJob(t, "ok.yaml", "name: ok\njob:\n  - task: t\n    bash: echo hi\n")
	out, err := execute(t, "validate", job)
	require.NoError(t, err)
	assert.Equal(t, "ok: valid\n", out)

	job = writeJob(t, "missing.yaml", "name: missing\njob:\n  - task: t\n    bash: nowhere.sh\n")
	_, err = execute(t, "validate", job)
	require.Error(t, err)
	assert.ErrorIs(t, err, interpreter.ErrFileNotFound)
	assert.True(t, interpreter.IsConfigurationError(err))
}

func TestGraph_DefaultOutput(t *testing.T) {
	job := writeJob(t, "flow.yaml", greetJob)

	out, err := execute(t, "graph", job)
	require.NoError(t, err)

	dotPath := strings.TrimSuffix(job, ".yaml") + ".dot"
	assert.Equal(t, "graph written to "+dotPath+"\n", out)

	raw, err := os.ReadFile(dotPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "digraph {"))
	assert.Contains(t, string(raw), `if_0 -> task_1 [label="true"]`)
}

func TestGraph_JSONToStdout(t *testing.T) {
	job := writeJob(t, "flow.yaml", greetJob)

	out, err := execute(t, "graph", "--format", "json", "-o", "-", job)
	require.NoError(t, err)

	g, err := utils.FromJSONBytes[types.Graph]([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "greet", g.Name)
	_, ok := g.Node("task_1")
	assert.True(t, ok)
	assert.Len(t, g.EdgesFrom("if_0"), 2)
}

func TestGraph_BadFormat(t *testing.T) {
	job := writeJob(t, "flow.yaml", greetJob)

	_, err := execute(t, "graph", "--format", "svg", job)
	assert.ErrorContains(t, err, "unknown graph format")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "jobflow version "+Version+"\n", out)
}

func TestParsePairs(t *testing.T) {
	pairs, err := parsePairs([]string{"a=1", "b=x=y", " c =", "a=2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "2", "b": "x=y", "c": ""}, pairs)

	_, err = parsePairs([]string{"=1"})
	assert.Error(t, err)
}

func TestApplyVars(t *testing.T) {
	wf := &types.Workflow{}
	require.NoError(t, applyVars(wf, []string{"n=3", "on=true", "who=ann"}))
	assert.Equal(t, map[string]any{"n": int64(3), "on": true, "who": "ann"}, wf.Variables)
}
