package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// TestRunner runs a set of work items and retries their failed cases
type TestRunner interface {
	Run(ctx context.Context, items []types.WorkItem, opts RunOptions) (*RunResult, error)
}

// RunOptions controls a single run
type RunOptions struct {
	MaxParallel int  // -1 unbounded, 0 serial
	RetryFailed bool // Rerun failed cases once and patch their reports
}

// Config holds configuration for creating a new runner
type Config struct {
	Executor         Executor
	OutputDir        string
	Traces           TraceWriter   // Optional
	ProgressInterval time.Duration // Zero disables periodic progress updates
	Log              log.Logger
}

type runner struct {
	dispatcher *Dispatcher
	retry      *RetryCoordinator
	log        log.Logger
}

var _ TestRunner = (*runner)(nil)

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	dispatcher, err := NewDispatcher(DispatcherConfig{
		Executor:         cfg.Executor,
		Traces:           cfg.Traces,
		ProgressInterval: cfg.ProgressInterval,
		Log:              cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	retry, err := NewRetryCoordinator(RetryConfig{
		Executor:  cfg.Executor,
		OutputDir: cfg.OutputDir,
		Traces:    cfg.Traces,
		Log:       cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create retry coordinator: %w", err)
	}

	return &runner{
		dispatcher: dispatcher,
		retry:      retry,
		log:        cfg.Log,
	}, nil
}

// Run dispatches every item and, when enabled, retries the failed cases.
// The error return is reserved for a rerun that could not be started; the
// dispatch result is returned alongside it.
func (r *runner) Run(ctx context.Context, items []types.WorkItem, opts RunOptions) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{
		RunID: uuid.New().String(),
	}
	r.log.Info("Starting run", "runID", result.RunID, "items", len(items), "maxParallel", opts.MaxParallel, "retry", opts.RetryFailed)

	result.Outcomes = r.dispatcher.RunAll(ctx, items, opts.MaxParallel)

	var retryErr error
	if failed := result.FailedCases(); opts.RetryFailed && len(failed) > 0 {
		updated, err := r.retry.RetryAs(ctx, rerunBasename(items), failed)
		if err != nil {
			r.log.Error("Rerun of failed cases could not be started", "err", err)
			retryErr = err
		} else {
			result.applyCases(updated)
			result.Retried = true
		}
	}

	result.Duration = time.Since(start)
	return result, retryErr
}

// rerunBasename returns RerunBasename, suffixed when a work item already uses it
func rerunBasename(items []types.WorkItem) string {
	taken := make(map[string]bool, len(items))
	for _, item := range items {
		taken[item.Basename] = true
	}
	return types.UniqueBasename(RerunBasename, taken)
}
