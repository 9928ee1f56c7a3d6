package report

import (
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// Patch is the rerun outcome of one case, folded into its original report
type Patch struct {
	Name          string
	Result        types.ResultKind
	Success       bool
	Executed      bool
	RerunDuration float64
}

// ApplyRerun folds a rerun outcome into the case named by the patch and keeps
// the summary counters and suite results consistent with it. It reports false,
// leaving the document untouched, when the document has no such case.
func (d *Document) ApplyRerun(p Patch) bool {
	c := d.FindCase(p.Name)
	if c == nil {
		return false
	}

	previous := types.ParseResultKind(string(c.Result))
	if p.Result == types.ResultSuccess && previous != p.Result {
		c.Failure = nil
		if c.Result == types.ResultError {
			d.Errors = decrement(d.Errors)
		} else {
			d.Failures = decrement(d.Failures)
		}
	}

	c.Result = p.Result
	c.Executed = Flag(p.Executed)

	ignored := p.Result == types.ResultIgnored
	if c.Success != nil || !ignored {
		c.Success = NewFlag(p.Success)
	}
	if c.Time != nil || !ignored {
		c.Time = NewSeconds(Round3(c.Duration() + p.RerunDuration))
	}

	for _, s := range d.Suites() {
		if s.Time != nil {
			*s.Time = Seconds(Round3(float64(*s.Time) + p.RerunDuration))
		}
	}

	if d.Failures == 0 && d.Errors == 0 {
		d.markSucceeded()
	}
	return true
}

// markSucceeded sets result and success of every suite that carries them
func (d *Document) markSucceeded() {
	for _, s := range d.Suites() {
		if s.Result != "" {
			s.Result = types.ResultSuccess
		}
		if s.Success != nil {
			*s.Success = true
		}
	}
}

func decrement(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}
