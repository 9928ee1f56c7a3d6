package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

var _ Executor = (*ConsoleExecutor)(nil)

// Executor runs the external test tool.
type Executor interface {
	// Execute runs one invocation to completion. A non-zero exit code is
	// reported in the Execution; an error means the tool could not be started.
	Execute(ctx context.Context, inv Invocation) (*Execution, error)
}

// Invocation describes one run of the test tool
type Invocation struct {
	Basename string   // Report and log file basename
	Category string   // Category filter, empty for none
	Fixture  string   // Fixture filter, empty for none
	Cases    []string // Explicit case names, used by reruns
}

// Execution is the result of one run of the test tool
type Execution struct {
	ExitCode      int
	ReportPath    string
	OutputLogPath string
	Output        []byte // Tail of the tool's console output
	Duration      time.Duration
}

// Succeeded reports whether the tool exited with code 0
func (e *Execution) Succeeded() bool {
	return e.ExitCode == 0
}

// ExecutorConfig holds configuration for the console executor
type ExecutorConfig struct {
	NUnitConsole string // Path to nunit-console
	Launcher     string // Optional program the console runner is started with, e.g. mono
	Assembly     string // Test assembly
	OutputDir    string // Directory reports and logs are written to
	Log          log.Logger
}

// ConsoleExecutor runs the NUnit 2.x console runner
type ConsoleExecutor struct {
	console   string
	launcher  string
	assembly  string
	outputDir string
	log       log.Logger
}

// NewConsoleExecutor creates a new console executor
func NewConsoleExecutor(cfg ExecutorConfig) (*ConsoleExecutor, error) {
	if cfg.NUnitConsole == "" {
		return nil, fmt.Errorf("nunit console path cannot be empty")
	}
	if cfg.Assembly == "" {
		return nil, fmt.Errorf("assembly cannot be empty")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	return &ConsoleExecutor{
		console:   cfg.NUnitConsole,
		launcher:  cfg.Launcher,
		assembly:  cfg.Assembly,
		outputDir: cfg.OutputDir,
		log:       cfg.Log.New("component", "executor"),
	}, nil
}

// ReportPath returns where the report of an invocation with the given basename is written
func (e *ConsoleExecutor) ReportPath(basename string) string {
	return filepath.Join(e.outputDir, types.ReportFileName(basename))
}

// BuildArgs returns the console runner arguments for an invocation
func (e *ConsoleExecutor) BuildArgs(inv Invocation) []string {
	args := []string{
		e.assembly,
		XMLFlag + e.ReportPath(inv.Basename),
		OutputFlag + filepath.Join(e.outputDir, types.OutputLogName(inv.Basename)),
		LabelsFlag,
		TraceFlag,
		NoShadowFlag,
		NoLogoFlag,
	}

	if inv.Category != "" {
		args = append(args, IncludeFlag+inv.Category)
	}
	if inv.Fixture != "" {
		args = append(args, FixtureFlag+inv.Fixture)
	}
	if len(inv.Cases) > 0 {
		args = append(args, RunFlag+strings.Join(inv.Cases, ","))
	}

	return args
}

func (e *ConsoleExecutor) command(ctx context.Context, inv Invocation) *exec.Cmd {
	name, args := e.console, e.BuildArgs(inv)
	if e.launcher != "" {
		name, args = e.launcher, append([]string{e.console}, args...)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.outputDir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())
	return cmd
}

// Execute runs the console runner and waits for it to exit
func (e *ConsoleExecutor) Execute(ctx context.Context, inv Invocation) (*Execution, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if inv.Basename == "" {
		return nil, fmt.Errorf("invocation basename cannot be empty")
	}

	cmd := e.command(ctx, inv)
	output := newTailBuffer(defaultOutputTailBytes)
	cmd.Stdout = output
	cmd.Stderr = output

	e.log.Debug("Running console runner", "basename", inv.Basename, "cmd", cmd.String())

	start := time.Now()
	runErr := cmd.Run()
	execution := &Execution{
		ReportPath:    e.ReportPath(inv.Basename),
		OutputLogPath: filepath.Join(e.outputDir, types.OutputLogName(inv.Basename)),
		Output:        output.Bytes(),
		Duration:      time.Since(start),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to run console runner for %s: %w", inv.Basename, runErr)
		}
		execution.ExitCode = exitErr.ExitCode()
	}

	if output.Truncated() {
		e.log.Warn("Console output truncated", "basename", inv.Basename, "keptBytes", len(execution.Output))
	}

	return execution, nil
}
