package nunitrunner

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-nunit-runner/runner"
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// TestExecutor is responsible for running tests.
type TestExecutor interface {
	RunTests(ctx context.Context, items []types.WorkItem) (*runner.RunResult, error)
}

// DefaultTestExecutor runs work items with run options resolved from the
// run configuration and the command line overrides.
type DefaultTestExecutor struct {
	runner runner.TestRunner
	opts   runner.RunOptions
	logger log.Logger
}

// NewDefaultTestExecutor creates a new DefaultTestExecutor.
func NewDefaultTestExecutor(runner runner.TestRunner, opts runner.RunOptions, logger log.Logger) *DefaultTestExecutor {
	return &DefaultTestExecutor{
		runner: runner,
		opts:   opts,
		logger: logger,
	}
}

// RunTests runs the items and returns the results.
func (e *DefaultTestExecutor) RunTests(ctx context.Context, items []types.WorkItem) (*runner.RunResult, error) {
	e.logger.Info("Running all tests...", "items", len(items))
	result, err := e.runner.Run(ctx, items, e.opts)
	if err != nil {
		e.logger.Error("Error running tests", "error", err)
		return result, err
	}
	e.logger.Info("Test run completed", "run_id", result.RunID, "status", result.Status())
	return result, nil
}

// resolveRunOptions applies the command line overrides to the run configuration values
func resolveRunOptions(cfg *Config, maxParallel int, retryFailed bool) runner.RunOptions {
	opts := runner.RunOptions{
		MaxParallel: maxParallel,
		RetryFailed: retryFailed,
	}
	if cfg.MaxParallel != nil {
		opts.MaxParallel = *cfg.MaxParallel
	}
	if cfg.RetryFailed != nil {
		opts.RetryFailed = *cfg.RetryFailed
	}
	return opts
}
