package nunitrunner

import (
	"github.com/ethereum-optimism/infra/op-nunit-runner/metrics"
	"github.com/ethereum-optimism/infra/op-nunit-runner/runner"
)

// MetricsReporter is responsible for reporting metrics from test results.
type MetricsReporter interface {
	ReportResults(result *runner.RunResult)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the run summary to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(result *runner.RunResult) {
	succeeded, failed := result.Counts()
	metrics.RecordRun(
		result.RunID,
		string(result.Status()),
		succeeded,
		failed,
		result.Duration,
	)
}
