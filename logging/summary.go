package logging

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-nunit-runner/runner"
)

// SummaryFileName is the run summary written to the output directory
const SummaryFileName = "summary.log"

// SummaryData is everything the run summary reports
type SummaryData struct {
	Result    *runner.RunResult
	Timestamp time.Time
	Merged    []string // logical tests whose reports were combined
}

// FormatSummary renders the run summary as plain text
func FormatSummary(data SummaryData) string {
	var summary strings.Builder
	result := data.Result

	fmt.Fprintf(&summary, "TEST SUMMARY\n")
	fmt.Fprintf(&summary, "============\n")
	fmt.Fprintf(&summary, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(&summary, "Time: %s\n", data.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&summary, "Duration: %s\n", runner.HumanDuration(result.Duration))
	fmt.Fprintf(&summary, "Status: %s\n\n", result.Status())

	succeeded, failed := result.Counts()
	failedCases := result.FailedCases()
	fmt.Fprintf(&summary, "Runs:\n")
	fmt.Fprintf(&summary, "  Total:     %d\n", len(result.Outcomes))
	fmt.Fprintf(&summary, "  Succeeded: %d\n", succeeded)
	fmt.Fprintf(&summary, "  Failed:    %d\n", failed)
	fmt.Fprintf(&summary, "  Retried:   %t\n", result.Retried)
	fmt.Fprintf(&summary, "  Failing cases: %d\n\n", len(failedCases))

	if errored := result.StartErrors(); len(errored) > 0 {
		fmt.Fprintf(&summary, "Not started:\n")
		for _, o := range errored {
			fmt.Fprintf(&summary, "  - %s: %v\n", o.Item.Label(), o.Err)
		}
		fmt.Fprintf(&summary, "\n")
	}

	if len(failedCases) > 0 {
		fmt.Fprintf(&summary, "Failed tests:\n")
		for _, c := range failedCases {
			fmt.Fprintf(&summary, "  - %s (%s) [%s]\n", c.Name, c.ItemBasename, c.Result)
		}
		fmt.Fprintf(&summary, "\n")
	}

	if len(data.Merged) > 0 {
		fmt.Fprintf(&summary, "Combined reports: %s\n", strings.Join(data.Merged, ", "))
	}

	return summary.String()
}

// WriteSummary writes the formatted summary to summary.log in dir and returns its path
func WriteSummary(dir string, data SummaryData) (string, error) {
	path := filepath.Join(dir, SummaryFileName)
	file, err := NewAsyncFile(path)
	if err != nil {
		return "", err
	}
	if _, err := file.Write([]byte(FormatSummary(data))); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}
