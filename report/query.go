package report

import (
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

func walkSuites(s *Suite, fn func(*Suite)) {
	if s == nil {
		return
	}
	fn(s)
	if s.Results == nil {
		return
	}
	for _, child := range s.Results.Suites {
		walkSuites(child, fn)
	}
}

// Suites returns every test-suite of the document, depth first in document order
func (d *Document) Suites() []*Suite {
	var suites []*Suite
	walkSuites(d.Suite, func(s *Suite) {
		suites = append(suites, s)
	})
	return suites
}

// Cases returns every test-case of the document in document order
func (d *Document) Cases() []*Case {
	return d.Suite.Cases()
}

// Cases returns every test-case below the suite
func (s *Suite) Cases() []*Case {
	var cases []*Case
	walkSuites(s, func(s *Suite) {
		if s.Results != nil {
			cases = append(cases, s.Results.Cases...)
		}
	})
	return cases
}

// RemoveCases detaches every test-case below the suite, leaving nested suites in place
func (s *Suite) RemoveCases() {
	walkSuites(s, func(s *Suite) {
		if s.Results != nil {
			s.Results.Cases = nil
		}
	})
}

// AppendCases adds cases to the suite's own results
func (s *Suite) AppendCases(cases ...*Case) {
	if s.Results == nil {
		s.Results = &Results{}
	}
	s.Results.Cases = append(s.Results.Cases, cases...)
}

// FirstFixture returns the first TestFixture suite in document order, or nil
func (d *Document) FirstFixture() *Suite {
	for _, s := range d.Suites() {
		if s.Type == FixtureType {
			return s
		}
	}
	return nil
}

// FindCase returns the first test-case with the given name, or nil
func (d *Document) FindCase(name string) *Case {
	for _, c := range d.Cases() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Outcomes returns the case outcomes of the document in document order
func (d *Document) Outcomes() []types.CaseOutcome {
	cases := d.Cases()
	outcomes := make([]types.CaseOutcome, 0, len(cases))
	for _, c := range cases {
		outcomes = append(outcomes, c.Outcome())
	}
	return outcomes
}

// Outcome converts the case into a CaseOutcome without an owning work item
func (c *Case) Outcome() types.CaseOutcome {
	return types.CaseOutcome{
		Name:     c.Name,
		Executed: bool(c.Executed),
		Result:   types.ParseResultKind(string(c.Result)),
		Success:  c.Success != nil && bool(*c.Success),
		Duration: c.Duration(),
	}
}

// Duration returns the time attribute, 0 when absent
func (c *Case) Duration() float64 {
	if c.Time == nil {
		return 0
	}
	return float64(*c.Time)
}

// AssertCount returns the asserts attribute, 0 when absent
func (c *Case) AssertCount() int {
	if c.Asserts == nil {
		return 0
	}
	return *c.Asserts
}

// AddCategory appends a category entry, even when the case already carries one of that name
func (c *Case) AddCategory(name string) {
	if c.Categories == nil {
		c.Categories = &Categories{}
	}
	c.Categories.Items = append(c.Categories.Items, Category{Name: name})
}

// Names returns the category names in order
func (c *Categories) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		names = append(names, item.Name)
	}
	return names
}

// Has reports whether a category with the given name is present
func (c *Categories) Has(name string) bool {
	if c == nil {
		return false
	}
	for _, item := range c.Items {
		if item.Name == name {
			return true
		}
	}
	return false
}
