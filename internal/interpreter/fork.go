package interpreter

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"yqhp/jobflow/pkg/types"
)

// runForkBranches runs every branch in its own goroutine against the shared
// namespace and symbol table and waits for all of them. A failing branch does
// not cancel its siblings. Branch errors are combined in branch order, so the
// first error of the result belongs to the lowest failing branch.
func (in *Interpreter) runForkBranches(ctx context.Context, branches []types.Sequence) error {
	if len(branches) == 0 {
		return nil
	}

	errs := make([]error, len(branches))
	var wg sync.WaitGroup

	for i, branch := range branches {
		wg.Add(1)
		go func(i int, branch types.Sequence) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					in.logger.Error("fork branch panicked",
						zap.Int("branch", i),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()))
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()

			errs[i] = in.RunSequence(ctx, branch)
		}(i, branch)
	}

	wg.Wait()

	var merged error
	for i, err := range errs {
		if err == nil {
			continue
		}
		in.logger.Error("fork branch failed", zap.Int("branch", i), zap.Error(err))
		merged = multierr.Append(merged, &BranchError{Index: i, Err: err})
	}
	return merged
}
