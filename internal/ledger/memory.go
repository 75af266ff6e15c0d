package ledger

import (
	"sync"

	"github.com/google/uuid"

	"yqhp/jobflow/pkg/types"
)

// MemoryLedger keeps entries in memory.
type MemoryLedger struct {
	mu       sync.Mutex
	entries  []Entry
	stats    *durationStats
	runID    string
	workflow string
	closed   bool
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{stats: newDurationStats()}
}

// Begin implements Ledger. Entries of earlier runs are kept.
func (l *MemoryLedger) Begin(wf *types.Workflow) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.runID = uuid.NewString()
	l.workflow = ""
	if wf != nil {
		l.workflow = wf.Name
	}
	l.closed = false
	l.stats.reset()
	return l.runID, nil
}

// Record implements Ledger.
func (l *MemoryLedger) Record(tc *types.TaskContext) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, newEntry(l.runID, l.workflow, tc))
	l.stats.record(tc.Duration(), tc.Status == types.TaskStatusFailed)
	return nil
}

// Summary implements Ledger.
func (l *MemoryLedger) Summary() Summary {
	return l.stats.summary()
}

// Close implements Ledger.
func (l *MemoryLedger) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// Entries returns a copy of all recorded entries.
func (l *MemoryLedger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Closed reports whether Close was called since the last Begin.
func (l *MemoryLedger) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
