package scope

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"yqhp/jobflow/internal/expression"
	"yqhp/jobflow/pkg/types"
)

func TestNamespace_Lookup(t *testing.T) {
	ns := NewNamespace()
	ns.SetVariables(map[string]any{"base": "http://x", "i": "shadowed"})
	ns.SetTask("t1", map[string]any{"a": 1, "output": "hi\n"})
	ns.Bind("i", int64(3))

	v, ok := ns.Lookup("base")
	require.True(t, ok)
	assert.Equal(t, "http://x", v)

	// loop bindings shadow workflow variables
	v, ok = ns.Lookup("i")
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	v, ok = ns.Lookup("var")
	require.True(t, ok)
	assert.Equal(t, "shadowed", v.(map[string]any)["i"])

	v, ok = ns.Lookup("task")
	require.True(t, ok)
	assert.Equal(t, "hi\n", v.(map[string]any)["t1"].(map[string]any)["output"])

	v, ok = ns.Lookup("t1")
	require.True(t, ok)
	assert.Equal(t, 1, v.(map[string]any)["a"])

	_, ok = ns.Lookup("nope")
	assert.False(t, ok)
}

func TestNamespace_WithEvaluator(t *testing.T) {
	ns := NewNamespace()
	ns.SetVariables(map[string]any{"limit": 2})
	ns.SetTask("t1", map[string]any{"count": int64(5)})

	ctx := expression.NewEvaluationContext().WithScope(ns)
	ok, err := expression.Evaluate("task.t1.count > var.limit AND task.t1.count > limit", ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNamespace_SetTaskCopies(t *testing.T) {
	ns := NewNamespace()
	values := map[string]any{"a": 1}
	ns.SetTask("t1", values)
	values["a"] = 2

	got, ok := ns.Task("t1")
	require.True(t, ok)
	assert.Equal(t, 1, got["a"])

	got["a"] = 3
	again, _ := ns.Task("t1")
	assert.Equal(t, 1, again["a"])
}

func TestNamespace_Reset(t *testing.T) {
	ns := NewNamespace()
	ns.SetTask("t1", nil)
	ns.Bind("i", 1)
	ns.SetVariable("v", 1)
	assert.Equal(t, []string{"t1"}, ns.TaskNames())

	ns.Reset()
	assert.Empty(t, ns.TaskNames())
	_, ok := ns.Binding("i")
	assert.False(t, ok)
	_, ok = ns.Variable("v")
	assert.False(t, ok)
}

func TestNamespace_ConcurrentWrites(t *testing.T) {
	ns := NewNamespace()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ns.SetTask(fmt.Sprintf("t%d", i), map[string]any{"i": i})
			ns.Bind("i", i)
			_, _ = ns.Lookup("task")
		}(i)
	}
	wg.Wait()
	assert.Len(t, ns.Snapshot(), 50)
}

func TestSymbolTable_Register(t *testing.T) {
	st := NewSymbolTable()
	t1 := &types.Task{Name: "t1"}
	other := &types.Task{Name: "t1"}

	require.NoError(t, st.Register("t1", t1))
	// re-entry from a loop body
	require.NoError(t, st.Register("t1", t1))
	assert.Equal(t, 1, st.Len())

	err := st.Register("t1", other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateName))

	for _, bad := range []string{"", "1t", "my-task", "a b", "and"} {
		err := st.Register(bad, &types.Task{Name: bad})
		require.Error(t, err, bad)
		assert.True(t, errors.Is(err, ErrInvalidName), bad)
	}

	got, ok := st.Lookup("t1")
	require.True(t, ok)
	assert.Same(t, t1, got)

	st.Reset()
	assert.Equal(t, 0, st.Len())
	require.NoError(t, st.Register("t1", other))
}

// Registering any sequence of names succeeds exactly when no name maps to
// two different tasks.
func TestSymbolTable_RapidUniqueness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d"}), 1, 12).Draw(t, "names")
		reuse := rapid.SliceOfN(rapid.Bool(), len(names), len(names)).Draw(t, "reuse")

		st := NewSymbolTable()
		seen := map[string]*types.Task{}
		for i, name := range names {
			task := &types.Task{Name: name}
			if prev, ok := seen[name]; ok && reuse[i] {
				task = prev
			}
			err := st.Register(name, task)

			prev, existed := seen[name]
			wantErr := existed && prev != task
			if wantErr != (err != nil) {
				t.Fatalf("register %s: wantErr=%v err=%v", name, wantErr, err)
			}
			if !existed {
				seen[name] = task
			}
		}
	})
}
