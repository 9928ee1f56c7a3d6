package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

const (
	MetricsNamespace = "nunit_runner"

	ItemSucceeded = "succeeded"
	ItemFailed    = "failed"
	ItemError     = "error"
)

var (
	Debug                bool = true
	validItemResults          = []string{ItemSucceeded, ItemFailed, ItemError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	itemRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "item_runs_total",
		Help:      "Count of test tool invocations per work item",
	}, []string{
		"name",
		"result",
	})

	itemRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "item_run_duration_seconds",
		Help:      "Wall-clock duration of test tool invocations",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{
		"name",
	})

	inFlightItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "inflight_items",
		Help:      "Number of work items currently executing",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of test cases by result",
	}, []string{
		"result",
	})

	retriedCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "retried_cases_total",
		Help:      "Count of rerun test cases by outcome",
	}, []string{
		"outcome",
	})

	mergedReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "merged_reports_total",
		Help:      "Count of partial reports merged per logical test",
	}, []string{
		"name",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Status of a test run",
	}, []string{
		"run_id",
		"status",
	})

	runItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_items",
		Help:      "Work items of a test run by result",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a test run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordItemRun records one invocation of the test tool for a work item
func RecordItemRun(name string, result string, duration time.Duration) {
	if !slices.Contains(validItemResults, result) {
		log.Error("RecordItemRun - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "item_runs_total",
			"name", name,
			"result", result)
	}
	itemRunsTotal.WithLabelValues(name, result).Inc()
	itemRunDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func SetInFlight(n int) {
	inFlightItems.Set(float64(n))
}

// RecordCases counts the case outcomes of one report
func RecordCases(cases []types.CaseOutcome) {
	for _, c := range cases {
		casesTotal.WithLabelValues(string(c.Result)).Inc()
	}
}

// RecordRetry records the outcome of a rerun of failed cases
func RecordRetry(fixed int, stillFailing int) {
	retriedCasesTotal.WithLabelValues("fixed").Add(float64(fixed))
	retriedCasesTotal.WithLabelValues("still_failing").Add(float64(stillFailing))
}

func RecordMerge(name string, members int) {
	mergedReportsTotal.WithLabelValues(name).Add(float64(members))
}

// RecordRun records the summary of a completed run
func RecordRun(runID string, status string, succeeded int, failed int, duration time.Duration) {
	runResults.WithLabelValues(runID, status).Set(1)
	runItems.WithLabelValues(runID, ItemSucceeded).Set(float64(succeeded))
	runItems.WithLabelValues(runID, ItemFailed).Set(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
