package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_NUNIT_RUNNER"

var (
	Assembly = &cli.StringFlag{
		Name:     "assembly",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "ASSEMBLY"),
		Usage:    "Path to the test assembly to run (eg. 'Acme.Tests.dll')",
	}
	NUnitConsole = &cli.StringFlag{
		Name:     "nunit-console",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "NUNIT_CONSOLE"),
		Usage:    "Path to the NUnit 2.x console runner (eg. 'nunit-console.exe')",
	}
	RunConfig = &cli.StringFlag{
		Name:     "config",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:    "Path to the run configuration file (.yaml, .toml or .xml)",
	}
	OutputDir = &cli.StringFlag{
		Name:     "output-dir",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_DIR"),
		Usage:    "Directory receiving reports, test output and trace logs",
	}
	Launcher = &cli.StringFlag{
		Name:    "launcher",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LAUNCHER"),
		Usage:   "Program used to start the console runner (eg. 'mono'). Empty starts it directly.",
	}
	MaxParallel = &cli.IntFlag{
		Name:    "max-parallel",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_PARALLEL"),
		Usage:   "Maximum number of concurrent console runner processes, -1 for unbounded. Overrides the run configuration when set.",
		Action:  validateMaxParallel,
	}
	RetryFailed = &cli.BoolFlag{
		Name:    "retry-failed",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RETRY_FAILED"),
		Usage:   "Rerun failed test cases once after all runs completed. Overrides the run configuration when set.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates listing the longest running tests. Set to 0 to disable.",
	}
	HistoryDBURL = &cli.StringFlag{
		Name:    "history-db-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HISTORY_DB_URL"),
		Usage:   "PostgreSQL connection string used to record run history. Empty disables recording.",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Address of the healthz server, started together with the metrics server",
	}
)

var requiredFlags = []cli.Flag{
	Assembly,
	NUnitConsole,
	RunConfig,
	OutputDir,
}

var optionalFlags = []cli.Flag{
	Launcher,
	MaxParallel,
	RetryFailed,
	RunInterval,
	ProgressInterval,
	HistoryDBURL,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func validateMaxParallel(ctx *cli.Context, v int) error {
	if v < -1 {
		return fmt.Errorf("max-parallel must be -1 (unbounded) or greater, got %d", v)
	}
	return nil
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
