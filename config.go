package nunitrunner

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-nunit-runner/flags"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

// Config holds the application configuration
type Config struct {
	Assembly         string        // Test assembly handed to the console runner
	NUnitConsole     string        // Path to nunit-console
	Launcher         string        // Program the console runner is started with, empty to start it directly
	RunConfig        string        // Run configuration file listing the tests
	OutputDir        string        // Directory receiving reports and logs
	MaxParallel      *int          // Overrides the run configuration when set
	RetryFailed      *bool         // Overrides the run configuration when set
	RunInterval      time.Duration // Interval between test runs
	RunOnce          bool          // Indicates if the service should exit after one test run
	ProgressInterval time.Duration // Interval between progress updates, 0 disables them
	HistoryDBURL     string        // PostgreSQL connection string, empty disables run history
	HealthzAddr      string
	Metrics          opmetrics.CLIConfig
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	assembly, err := existingFile(ctx.String(flags.Assembly.Name), "assembly")
	if err != nil {
		return nil, err
	}
	console, err := existingFile(ctx.String(flags.NUnitConsole.Name), "nunit console")
	if err != nil {
		return nil, err
	}
	runConfig, err := existingFile(ctx.String(flags.RunConfig.Name), "run config")
	if err != nil {
		return nil, err
	}
	outputDir, err := existingDir(ctx.String(flags.OutputDir.Name), "output directory")
	if err != nil {
		return nil, err
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run interval cannot be negative: %s", runInterval)
	}

	cfg := &Config{
		Assembly:         assembly,
		NUnitConsole:     console,
		Launcher:         ctx.String(flags.Launcher.Name),
		RunConfig:        runConfig,
		OutputDir:        outputDir,
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		HistoryDBURL:     ctx.String(flags.HistoryDBURL.Name),
		HealthzAddr:      ctx.String(flags.HealthzAddr.Name),
		Metrics:          opmetrics.ReadCLIConfig(ctx),
		Log:              log,
	}

	if ctx.IsSet(flags.MaxParallel.Name) {
		v := ctx.Int(flags.MaxParallel.Name)
		if v < -1 {
			return nil, fmt.Errorf("max parallel must be -1 or greater, got %d", v)
		}
		cfg.MaxParallel = &v
	}
	if ctx.IsSet(flags.RetryFailed.Name) {
		v := ctx.Bool(flags.RetryFailed.Name)
		cfg.RetryFailed = &v
	}

	return cfg, nil
}

// existingFile resolves path to an absolute path and checks that it is a regular file
func existingFile(path string, what string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s '%s': %w", what, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", what, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s '%s' is a directory", what, abs)
	}
	return abs, nil
}

// existingDir resolves path to an absolute path and checks that it is a directory
func existingDir(path string, what string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s '%s': %w", what, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", what, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s '%s' is not a directory", what, abs)
	}
	return abs, nil
}
