package nunitrunner

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-nunit-runner/runner"
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a marker for the outcome of a single run
func getResultString(o types.RunOutcome, retried bool) string {
	switch {
	case o.Err != nil:
		return "! error"
	case o.Succeeded:
		return "✓ pass"
	case retried && len(o.FailedCases()) == 0 && len(o.Cases) > 0:
		return "✓ fixed"
	default:
		return "✗ fail"
	}
}

// formatDuration formats a duration in seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// caseCounts returns the number of passed, failed and not executed cases
func caseCounts(cases []types.CaseOutcome) (passed int, failed int, notRun int) {
	for _, c := range cases {
		switch {
		case !c.Executed:
			notRun++
		case c.Failed():
			failed++
		case c.Result == types.ResultSuccess:
			passed++
		}
	}
	return passed, failed, notRun
}

// unresolvedFailures returns the failing cases left after the run and the runs that
// failed without such a case. A run whose failures were all fixed by the rerun is resolved.
func unresolvedFailures(result *runner.RunResult) (failedCases int, failedRuns int) {
	failedCases = len(result.FailedCases())
	for _, o := range result.Outcomes {
		if o.Succeeded || len(o.FailedCases()) > 0 {
			continue
		}
		if o.Err != nil || len(o.Cases) == 0 || !result.Retried {
			failedRuns++
		}
	}
	return failedCases, failedRuns
}

// exitError returns a TestFailureError when the run has unresolved failures
func exitError(result *runner.RunResult) error {
	failedCases, failedRuns := unresolvedFailures(result)
	if failedCases == 0 && failedRuns == 0 {
		return nil
	}
	return &TestFailureError{RunID: result.RunID, FailedCases: failedCases, FailedRuns: failedRuns}
}
