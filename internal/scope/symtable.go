package scope

import (
	"errors"
	"fmt"
	"sync"

	"yqhp/jobflow/internal/expression"
	"yqhp/jobflow/pkg/types"
)

var (
	// ErrDuplicateName is returned when two different tasks share a name.
	ErrDuplicateName = errors.New("duplicate task name")
	// ErrInvalidName is returned for task names that are not identifiers.
	ErrInvalidName = errors.New("invalid task name")
)

// SymbolTable keeps task names unique across a run. Registering the same
// *types.Task again is allowed, so loop bodies can re-enter.
type SymbolTable struct {
	mu      sync.Mutex
	symbols map[string]*types.Task
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]*types.Task)}
}

// Register records name for task.
func (s *SymbolTable) Register(name string, task *types.Task) error {
	if !expression.IsIdentifier(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.symbols[name]; ok && existing != task {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	s.symbols[name] = task
	return nil
}

// Lookup returns the task registered under name.
func (s *SymbolTable) Lookup(name string) (*types.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.symbols[name]
	return t, ok
}

// Len returns the number of registered names.
func (s *SymbolTable) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}

// Reset forgets every name.
func (s *SymbolTable) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = make(map[string]*types.Task)
}
