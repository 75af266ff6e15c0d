// Package ledger keeps an append-only record of every task a run completes.
package ledger

import (
	"fmt"
	"time"

	"yqhp/jobflow/pkg/types"
)

// Ledger records task results for one run at a time.
type Ledger interface {
	// Begin starts a new run and returns its id.
	Begin(wf *types.Workflow) (string, error)
	// Record appends one completed task, successful or not.
	Record(tc *types.TaskContext) error
	// Summary returns the duration statistics of the current run.
	Summary() Summary
	Close() error
}

// Entry is one ledger line.
type Entry struct {
	RunID      string         `json:"run_id"`
	Workflow   string         `json:"workflow"`
	Task       string         `json:"task"`
	Kind       string         `json:"kind"`
	Status     string         `json:"status"`
	Locals     map[string]any `json:"locals,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	Start      time.Time      `json:"start"`
	DurationMs float64        `json:"duration_ms"`
}

func newEntry(runID, workflow string, tc *types.TaskContext) Entry {
	e := Entry{
		RunID:      runID,
		Workflow:   workflow,
		Task:       tc.Name(),
		Status:     string(tc.Status),
		Locals:     tc.Locals,
		Outputs:    tc.Outputs,
		Start:      tc.StartTime,
		DurationMs: float64(tc.Duration().Microseconds()) / 1000,
	}
	if tc.Task != nil {
		e.Kind = tc.Task.Kind.String()
	}
	if tc.Err != nil {
		e.Error = tc.Err.Error()
	}
	return e
}

// Summary describes task durations of a run.
type Summary struct {
	Count  int64
	Failed int64
	Min    time.Duration
	P50    time.Duration
	P90    time.Duration
	Max    time.Duration
}

// String implements fmt.Stringer.
func (s Summary) String() string {
	return fmt.Sprintf("tasks=%d failed=%d min=%s p50=%s p90=%s max=%s",
		s.Count, s.Failed, s.Min, s.P50, s.P90, s.Max)
}
