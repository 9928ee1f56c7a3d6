package nunitrunner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-nunit-runner/aggregate"
	"github.com/ethereum-optimism/infra/op-nunit-runner/history"
	"github.com/ethereum-optimism/infra/op-nunit-runner/logging"
	"github.com/ethereum-optimism/infra/op-nunit-runner/registry"
	"github.com/ethereum-optimism/infra/op-nunit-runner/runner"
	"github.com/ethereum-optimism/infra/op-nunit-runner/service"
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// Service implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Service{}

// Service runs the configured NUnit tests, once or periodically, and merges
// the reports of tests that were split by category.
type Service struct {
	config   *Config
	version  string
	registry *registry.Registry

	executor   TestExecutor
	aggregator *aggregate.Aggregator
	formatter  ResultFormatter
	reporter   MetricsReporter
	scheduler  TestScheduler
	history    history.Connection // nil when run history is disabled
	servers    *service.Service   // nil when metrics are disabled

	mu     sync.Mutex
	result *runner.RunResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// Options holds the collaborators New builds by default. Zero fields are replaced with defaults.
type Options struct {
	Executor  runner.Executor
	Formatter ResultFormatter
	Reporter  MetricsReporter
	History   history.Connection
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error), opts Options) (*Service, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.New()
		config.Log.Error("No logger provided, using default")
	}

	config.Log.Debug("Creating runner service with config",
		"assembly", config.Assembly,
		"runConfig", config.RunConfig,
		"outputDir", config.OutputDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:           config.Log,
		RunConfigFile: config.RunConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	traces, err := logging.NewTraceFiles(config.OutputDir, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace writer: %w", err)
	}

	executor := opts.Executor
	if executor == nil {
		executor, err = runner.NewConsoleExecutor(runner.ExecutorConfig{
			NUnitConsole: config.NUnitConsole,
			Launcher:     config.Launcher,
			Assembly:     config.Assembly,
			OutputDir:    config.OutputDir,
			Log:          config.Log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create executor: %w", err)
		}
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Executor:         executor,
		OutputDir:        config.OutputDir,
		Traces:           traces,
		ProgressInterval: config.ProgressInterval,
		Log:              config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	runOpts := resolveRunOptions(config, reg.MaxParallelRuns(), reg.RetryFailedTests())

	s := &Service{
		config:           config,
		version:          version,
		registry:         reg,
		executor:         NewDefaultTestExecutor(testRunner, runOpts, config.Log),
		aggregator:       aggregate.NewAggregator(config.Log),
		formatter:        opts.Formatter,
		reporter:         opts.Reporter,
		history:          opts.History,
		shutdownCallback: shutdownCallback,
	}
	if s.formatter == nil {
		s.formatter = NewConsoleResultFormatter(config.Log, nil)
	}
	if s.reporter == nil {
		s.reporter = NewDefaultMetricsReporter()
	}
	if s.history == nil && config.HistoryDBURL != "" {
		db, err := history.New(ctx, config.HistoryDBURL, config.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		s.history = db
	}
	if s.history != nil {
		s.logLastRun(ctx)
	}
	if !config.RunOnce {
		s.scheduler = NewDefaultTestScheduler(config.RunInterval, config.Log)
		s.scheduler.RegisterCallback(func(ctx context.Context) error {
			_, err := s.runTests(ctx)
			return err
		})
	}

	config.Log.Info("Created registry and test runner", "items", len(reg.WorkItems()), "maxParallel", runOpts.MaxParallel, "retry", runOpts.RetryFailed)
	return s, nil
}

// Start runs the tests once, or starts the periodic runs.
// Start implements the cliapp.Lifecycle interface.
func (s *Service) Start(ctx context.Context) error {
	s.running.Store(true)
	s.startServers(ctx)

	if !s.config.RunOnce {
		s.config.Log.Info("Starting op-nunit-runner in continuous mode", "interval", s.config.RunInterval)
		return s.scheduler.Start(ctx)
	}

	s.config.Log.Info("Starting op-nunit-runner in run-once mode")
	result, err := s.runTests(ctx)
	if err != nil {
		s.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	s.config.Log.Info("Tests completed, exiting (run-once mode)")
	if err := exitError(result); err != nil {
		s.config.Log.Warn("Run-once test run completed with failures, returning exit code 1", "err", err)
		return err
	}

	go func() {
		s.shutdownCallback(nil)
	}()
	return nil
}

// runTests runs every work item, merges split reports and reports the results.
// It returns a RuntimeError for failures of the runner itself; test failures are
// only reflected in the result.
func (s *Service) runTests(ctx context.Context) (*runner.RunResult, error) {
	items := s.registry.WorkItems()
	result, runErr := s.executor.RunTests(ctx, items)
	if result == nil {
		return nil, NewRuntimeError(runErr)
	}

	switch result.Status() {
	case runner.StatusAllFailed:
		s.config.Log.Error("All tests have failed.")
	case runner.StatusSomeFailed:
		s.config.Log.Warn("Some tests were not successful.")
	}

	merged, mergeErr := s.combine(ctx, items)

	if err := s.formatter.FormatResults(result); err != nil {
		s.config.Log.Warn("Failed to print results", "err", err)
	}

	summary, err := logging.WriteSummary(s.config.OutputDir, logging.SummaryData{
		Result:    result,
		Timestamp: time.Now(),
		Merged:    merged,
	})
	if err != nil {
		s.config.Log.Warn("Failed to write summary", "err", err)
	} else {
		s.config.Log.Debug("Wrote summary", "path", summary)
	}

	s.reporter.ReportResults(result)
	s.recordHistory(ctx, result)

	s.mu.Lock()
	s.result = result
	s.mu.Unlock()

	s.config.Log.Info("Test run completed", "run_id", result.RunID, "status", result.Status(), "duration", runner.HumanDuration(result.Duration))

	switch {
	case runErr != nil:
		return result, NewRuntimeError(fmt.Errorf("failed to rerun failed tests: %w", runErr))
	case mergeErr != nil:
		return result, NewRuntimeError(mergeErr)
	}
	return result, nil
}

// combine merges the reports of every test that was split into several runs
// and returns the names of the merged tests.
func (s *Service) combine(ctx context.Context, items []types.WorkItem) ([]string, error) {
	var groups [][]types.WorkItem
	files := 0
	for _, group := range types.GroupByName(items) {
		if len(group) > 1 {
			groups = append(groups, group)
			files += len(group)
		}
	}
	if len(groups) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(groups))
	for _, group := range groups {
		names = append(names, group[0].Name)
	}
	s.config.Log.Info(fmt.Sprintf("There are %d files to combine into %d files (%s)", files, len(groups), strings.Join(names, ", ")))

	var errs []error
	var merged []string
	for _, group := range groups {
		inputs := make([]string, 0, len(group))
		for _, item := range group {
			inputs = append(inputs, filepath.Join(s.config.OutputDir, item.ReportFile()))
		}
		output := filepath.Join(s.config.OutputDir, types.ReportFileName(group[0].Name))

		if err := s.aggregator.Merge(ctx, inputs, output); err != nil {
			if errors.Is(err, aggregate.ErrNoMembers) {
				s.config.Log.Warn("No reports to combine", "test", group[0].Name)
				continue
			}
			errs = append(errs, fmt.Errorf("failed to combine reports of %s: %w", group[0].Name, err))
			continue
		}
		merged = append(merged, group[0].Name)
	}
	return merged, errors.Join(errs...)
}

func (s *Service) recordHistory(ctx context.Context, result *runner.RunResult) {
	if s.history == nil {
		return
	}
	if err := history.Record(ctx, s.history, result, time.Now()); err != nil {
		s.config.Log.Warn("Failed to record run history", "run_id", result.RunID, "err", err)
	}
}

// logLastRun logs the latest run recorded in the run history
func (s *Service) logLastRun(ctx context.Context) {
	run, err := s.history.LastRun(ctx)
	if err != nil {
		s.config.Log.Warn("Failed to read last run from run history", "err", err)
		return
	}
	if run == nil {
		s.config.Log.Info("No previous run in run history")
		return
	}
	s.config.Log.Info("Previous run",
		"run_id", run.ID,
		"status", run.Status,
		"retried", run.Retried,
		"finished", run.FinishedAt,
		"duration", run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond))
}

func (s *Service) startServers(ctx context.Context) {
	if !s.config.Metrics.Enabled || s.servers != nil {
		return
	}
	s.servers = service.New(service.Config{
		HealthzAddr: s.config.HealthzAddr,
		MetricsAddr: net.JoinHostPort(s.config.Metrics.ListenAddr, strconv.Itoa(s.config.Metrics.ListenPort)),
		Log:         s.config.Log,
	})
	s.servers.Start(ctx)
}

// Result returns the result of the latest run, nil before the first run completed
func (s *Service) Result() *runner.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Stop stops the op-nunit-runner service.
// Stop implements the cliapp.Lifecycle interface.
func (s *Service) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping op-nunit-runner")

	if !s.running.Load() {
		s.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	s.running.Store(false)

	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			return err
		}
		if err := s.scheduler.WaitForShutdown(ctx); err != nil {
			s.config.Log.Warn("Periodic runner did not stop in time", "err", err)
		}
	}
	if s.servers != nil {
		s.servers.Shutdown(ctx)
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.config.Log.Warn("Failed to close run history", "err", err)
		}
	}

	s.config.Log.Info("op-nunit-runner stopped successfully")
	return nil
}

// Stopped returns true if the op-nunit-runner service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (s *Service) Stopped() bool {
	return !s.running.Load()
}
