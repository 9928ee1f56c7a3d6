package runner

import (
	"time"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// Test tool invocation constants
const (
	// Console runner switches
	XMLFlag      = "/xml:"
	OutputFlag   = "/output:"
	IncludeFlag  = "/include:"
	FixtureFlag  = "/fixture:"
	RunFlag      = "/run:"
	LabelsFlag   = "/labels"
	TraceFlag    = "/trace=Error"
	NoShadowFlag = "/noshadow"
	NoLogoFlag   = "/nologo"

	// RerunBasename names the report and logs of the consolidated rerun
	// unless a work item already uses it
	RerunBasename = types.RerunBasename

	// Unbounded as maxParallel runs one worker per work item
	Unbounded = -1

	// DefaultProgressInterval is used when progress reporting is enabled without an interval
	DefaultProgressInterval = 30 * time.Second

	// maxRunningShown caps the number of running items listed in a progress update
	maxRunningShown = 3
)
