package noop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/jobflow/internal/backend/noop"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/pkg/types"
)

var _ interpreter.Backend = (*noop.Backend)(nil)

func TestNoop_RunKeepsInputs(t *testing.T) {
	wf := &types.Workflow{
		Name:      "noop",
		Variables: map[string]any{"base": "x"},
		Steps: types.Sequence{
			types.NewTaskStep(&types.Task{Name: "a", Kind: types.TaskHTTP, Target: "http://unused",
				Inputs: []types.Input{{Name: "u", Expr: "var.base + '/y'"}}}),
			types.NewTaskStep(&types.Task{Name: "b", Kind: types.TaskShell, Target: "exit 1",
				Inputs: []types.Input{{Name: "prev", Expr: "task.a.u"}}}),
		},
	}

	in := interpreter.New(noop.New())
	require.NoError(t, in.Run(context.Background(), wf))

	b, ok := in.Namespace().Task("b")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"prev": "x/y"}, b)
}
