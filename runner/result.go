package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// RunStatus summarises the process outcomes of a run
type RunStatus string

const (
	StatusAllFailed    RunStatus = "all_failed"
	StatusSomeFailed   RunStatus = "some_failed"
	StatusAllSucceeded RunStatus = "all_succeeded"
)

// RunResult captures the outcome of dispatching and retrying one run
type RunResult struct {
	RunID    string
	Outcomes []types.RunOutcome
	Retried  bool
	Duration time.Duration
}

// Status reports whether all, some or none of the items succeeded.
// A run without outcomes counts as all failed.
func (r *RunResult) Status() RunStatus {
	succeeded, failed := r.Counts()
	switch {
	case succeeded == 0:
		return StatusAllFailed
	case failed > 0:
		return StatusSomeFailed
	default:
		return StatusAllSucceeded
	}
}

// Counts returns the number of succeeded and failed items
func (r *RunResult) Counts() (succeeded int, failed int) {
	for _, o := range r.Outcomes {
		if o.Succeeded {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// FailedCases returns every case of the run that ran and failed
func (r *RunResult) FailedCases() []types.CaseOutcome {
	return FailedCases(r.Outcomes)
}

// FailedCases returns every case of the outcomes that ran and failed
func FailedCases(outcomes []types.RunOutcome) []types.CaseOutcome {
	var failed []types.CaseOutcome
	for _, o := range outcomes {
		failed = append(failed, o.FailedCases()...)
	}
	return failed
}

// StartErrors returns the outcomes whose invocation could not be started
func (r *RunResult) StartErrors() []types.RunOutcome {
	var errored []types.RunOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errored = append(errored, o)
		}
	}
	return errored
}

// applyCases replaces cases of the outcomes with updated versions, matched by
// owning item basename and case name
func (r *RunResult) applyCases(updated []types.CaseOutcome) {
	type key struct{ basename, name string }
	byKey := make(map[key]types.CaseOutcome, len(updated))
	for _, c := range updated {
		byKey[key{c.ItemBasename, c.Name}] = c
	}

	for i := range r.Outcomes {
		cases := r.Outcomes[i].Cases
		for j := range cases {
			if c, ok := byKey[key{cases[j].ItemBasename, cases[j].Name}]; ok {
				cases[j] = c
			}
		}
	}
}

// HumanDuration formats a duration as "1 hour(s) 2 minute(s) 3 second(s) 4 millisecond(s)",
// leaving out zero components
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	parts := []struct {
		value int64
		unit  string
	}{
		{int64(d / time.Hour), "hour(s)"},
		{int64(d % time.Hour / time.Minute), "minute(s)"},
		{int64(d % time.Minute / time.Second), "second(s)"},
		{int64(d % time.Second / time.Millisecond), "millisecond(s)"},
	}

	var out []string
	for _, p := range parts {
		if p.value > 0 {
			out = append(out, fmt.Sprintf("%d %s", p.value, p.unit))
		}
	}
	if len(out) == 0 {
		return "0 millisecond(s)"
	}
	return strings.Join(out, " ")
}
