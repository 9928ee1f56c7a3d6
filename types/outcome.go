package types

import (
	"strings"
	"time"
)

// ResultKind is the result of a test case or suite as reported by the test tool
type ResultKind string

const (
	ResultSuccess      ResultKind = "Success"
	ResultFailure      ResultKind = "Failure"
	ResultError        ResultKind = "Error"
	ResultIgnored      ResultKind = "Ignored"
	ResultInconclusive ResultKind = "Inconclusive"
	ResultNotRunnable  ResultKind = "NotRunnable"
	ResultSkipped      ResultKind = "Skipped"
	ResultCancelled    ResultKind = "Cancelled"
	ResultUnknown      ResultKind = "Unknown"
)

var knownResults = []ResultKind{
	ResultSuccess,
	ResultFailure,
	ResultError,
	ResultIgnored,
	ResultInconclusive,
	ResultNotRunnable,
	ResultSkipped,
	ResultCancelled,
}

// String implements the Stringer interface for ResultKind
func (r ResultKind) String() string {
	return string(r)
}

// ParseResultKind maps a result attribute value to a known ResultKind.
// Anything unrecognised is ResultUnknown.
func ParseResultKind(s string) ResultKind {
	s = strings.TrimSpace(s)
	for _, k := range knownResults {
		if s == string(k) {
			return k
		}
	}
	return ResultUnknown
}

// IsFailed reports whether the result counts as a failed test
func (r ResultKind) IsFailed() bool {
	return r == ResultFailure || r == ResultError
}

// CaseOutcome is the result of one test case within a report
type CaseOutcome struct {
	Name     string // Identity of the case within its report
	Executed bool
	Result   ResultKind
	Success  bool
	Duration float64 // Seconds

	// Owning work item, set after execution
	ItemName     string
	ItemBasename string
}

// Failed reports whether the case ran and failed or errored
func (c CaseOutcome) Failed() bool {
	return c.Executed && c.Result.IsFailed()
}

// RunOutcome is the result of dispatching one WorkItem
type RunOutcome struct {
	Item      WorkItem
	Duration  time.Duration // Wall-clock duration of the invocation
	Succeeded bool          // Process exited with code 0
	ExitCode  int
	Cases     []CaseOutcome
	Err       error // Set when the invocation could not be started
}

// FailedCases returns the cases of the outcome that ran and failed
func (o RunOutcome) FailedCases() []CaseOutcome {
	var failed []CaseOutcome
	for _, c := range o.Cases {
		if c.Failed() {
			failed = append(failed, c)
		}
	}
	return failed
}
