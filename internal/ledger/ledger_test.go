package ledger

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"yqhp/jobflow/pkg/types"
	"yqhp/jobflow/pkg/utils"
)

func finishedTask(name string, d time.Duration, err error) *types.TaskContext {
	task := &types.Task{Name: name, Kind: types.TaskShell, Target: "echo " + name}
	tc := types.NewTaskContext(task, map[string]any{"in": name})
	tc.StartTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err != nil {
		tc.Fail(err)
	} else {
		tc.Succeed(map[string]any{"output": name + "\n"})
	}
	tc.EndTime = tc.StartTime.Add(d)
	return tc
}

func readLines(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		e, err := utils.FromJSONBytes[Entry](sc.Bytes())
		require.NoError(t, err)
		entries = append(entries, e)
	}
	require.NoError(t, sc.Err())
	return entries
}

func TestFileLedger_WritesOneLinePerTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "ledger.jsonl")
	core, logs := observer.New(zapcore.InfoLevel)

	l, err := NewFileLedger(Config{Path: path, MaxSize: 1}, zap.New(core))
	require.NoError(t, err)

	runID, err := l.Begin(&types.Workflow{Name: "demo"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.NoError(t, l.Record(finishedTask("t1", 10*time.Millisecond, nil)))
	require.NoError(t, l.Record(finishedTask("t2", 30*time.Millisecond, errors.New("boom"))))
	require.NoError(t, l.Close())

	entries := readLines(t, path)
	require.Len(t, entries, 2)

	assert.Equal(t, runID, entries[0].RunID)
	assert.Equal(t, "demo", entries[0].Workflow)
	assert.Equal(t, "t1", entries[0].Task)
	assert.Equal(t, "shell", entries[0].Kind)
	assert.Equal(t, "success", entries[0].Status)
	assert.Equal(t, "t1\n", entries[0].Outputs["output"])
	assert.Equal(t, "t1", entries[0].Locals["in"])
	assert.InDelta(t, 10.0, entries[0].DurationMs, 0.001)
	assert.Empty(t, entries[0].Error)

	assert.Equal(t, "failed", entries[1].Status)
	assert.Equal(t, "boom", entries[1].Error)

	summaries := logs.FilterMessage("ledger summary").All()
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(2), summaries[0].ContextMap()["tasks"])
	assert.Equal(t, int64(1), summaries[0].ContextMap()["failed"])
}

func TestFileLedger_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, err := NewFileLedger(Config{Path: path}, nil)
	require.NoError(t, err)

	first, err := l.Begin(&types.Workflow{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, l.Record(finishedTask("t1", time.Millisecond, nil)))
	require.NoError(t, l.Close())

	second, err := l.Begin(&types.Workflow{Name: "b"})
	require.NoError(t, err)
	require.NoError(t, l.Record(finishedTask("t1", time.Millisecond, nil)))
	require.NoError(t, l.Close())

	assert.NotEqual(t, first, second)
	entries := readLines(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0].RunID)
	assert.Equal(t, second, entries[1].RunID)
	assert.Equal(t, "b", entries[1].Workflow)
}

func TestNewFileLedger_RequiresPath(t *testing.T) {
	_, err := NewFileLedger(Config{}, nil)
	assert.Error(t, err)
}

func TestMemoryLedger(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Begin(&types.Workflow{Name: "demo"})
	require.NoError(t, err)

	for i, d := range []time.Duration{time.Millisecond, 2 * time.Millisecond, 100 * time.Millisecond} {
		require.NoError(t, l.Record(finishedTask(string(rune('a'+i)), d, nil)))
	}
	assert.False(t, l.Closed())
	require.NoError(t, l.Close())
	assert.True(t, l.Closed())

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{entries[0].Task, entries[1].Task, entries[2].Task})

	s := l.Summary()
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, int64(0), s.Failed)
	assert.InDelta(t, float64(time.Millisecond), float64(s.Min), float64(10*time.Microsecond))
	assert.InDelta(t, float64(2*time.Millisecond), float64(s.P50), float64(10*time.Microsecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(s.Max), float64(time.Millisecond))
	assert.Contains(t, s.String(), "tasks=3")
}

func TestSummary_Empty(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Begin(nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, l.Summary())
}
