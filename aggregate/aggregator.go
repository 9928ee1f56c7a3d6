// Package aggregate merges the partial reports of a logical test that was
// split into several category runs back into a single report.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-nunit-runner/metrics"
	"github.com/ethereum-optimism/infra/op-nunit-runner/report"
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// ErrNoMembers is returned when none of the inputs of a merge could be read
var ErrNoMembers = errors.New("no reports to merge")

// Aggregator merges split reports
type Aggregator struct {
	log    log.Logger
	loc    *time.Location
	tracer trace.Tracer
}

// NewAggregator creates an aggregator. Report timestamps are interpreted in local time.
func NewAggregator(logger log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Aggregator{
		log:    logger.New("component", "aggregator"),
		loc:    time.Local,
		tracer: otel.Tracer("aggregator"),
	}
}

type counters struct {
	total        int
	errors       int
	failures     int
	notRun       int
	inconclusive int
	ignored      int
	skipped      int
	invalid      int
	asserts      int
}

func (c *counters) add(o counters) {
	c.total += o.total
	c.errors += o.errors
	c.failures += o.failures
	c.notRun += o.notRun
	c.inconclusive += o.inconclusive
	c.ignored += o.ignored
	c.skipped += o.skipped
	c.invalid += o.invalid
	c.asserts += o.asserts
}

// member is one parsed input of a merge
type member struct {
	index      int // position in the merge inputs
	path       string
	start      time.Time
	finish     time.Time
	counters   counters
	result     types.ResultKind
	success    bool
	fixture    string
	categories []string
	cases      []*report.Case
}

// overview is the reduced state of all members
type overview struct {
	start    time.Time
	finish   time.Time
	duration float64
	counters counters
	result   types.ResultKind
	success  bool
	cases    []*report.Case
	template *member
}

// Merge combines the reports at inputs into one report at outputPath and
// deletes every input other than outputPath. Every category of a member's
// fixture is appended to each of its cases. Inputs that do not exist are
// skipped; inputs that cannot be parsed contribute nothing. When no input
// can be read, ErrNoMembers is returned and nothing is written or deleted.
//
// The template of the merged report is the input with the shortest fixture
// name, the earliest input on ties. Cases are concatenated in the order
// members finish parsing, which is not deterministic.
func (a *Aggregator) Merge(ctx context.Context, inputs []string, outputPath string) error {
	ctx, span := a.tracer.Start(ctx, "merge")
	defer span.End()
	span.SetAttributes(attribute.String("output", outputPath), attribute.Int("inputs", len(inputs)))

	members := a.parse(ctx, inputs)
	if len(members) == 0 {
		return fmt.Errorf("%w for %s", ErrNoMembers, outputPath)
	}

	ov := reduce(members)
	if err := a.write(ov, outputPath); err != nil {
		span.RecordError(err)
		return err
	}

	a.removeInputs(inputs, outputPath)

	metrics.RecordMerge(strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath)), len(members))
	a.log.Info("Merged reports", "output", outputPath, "members", len(members), "cases", len(ov.cases), "result", ov.result)
	return nil
}

// parse reads every existing input concurrently
func (a *Aggregator) parse(ctx context.Context, inputs []string) []*member {
	p := pool.NewWithResults[*member]()
	for i, path := range inputs {
		if _, err := os.Stat(path); err != nil {
			a.log.Debug("Skipping missing report", "path", path)
			continue
		}
		p.Go(func() *member {
			m, err := a.parseMember(path)
			if err != nil {
				a.log.Warn("Skipping unreadable report", "path", path, "err", err)
				metrics.RecordErrorDetails("merge_parse", err)
				return nil
			}
			m.index = i
			return m
		})
	}

	var members []*member
	for _, m := range p.Wait() {
		if m != nil {
			members = append(members, m)
		}
	}
	return members
}

func (a *Aggregator) parseMember(path string) (*member, error) {
	doc, err := report.Load(path)
	if err != nil {
		return nil, err
	}

	finish, err := doc.FinishTime(a.loc)
	if err != nil {
		return nil, err
	}

	root := doc.Suite
	var rootTime float64
	if root.Time != nil {
		rootTime = float64(*root.Time)
	}

	fixture := doc.FirstFixture()
	if fixture == nil {
		return nil, &report.MalformedReportError{Path: path, Element: "test-suite type=" + report.FixtureType}
	}

	m := &member{
		path:   path,
		start:  finish.Add(-time.Duration(rootTime * float64(time.Second))),
		finish: finish,
		counters: counters{
			total:        doc.Total,
			errors:       doc.Errors,
			failures:     doc.Failures,
			notRun:       doc.NotRun,
			inconclusive: doc.Inconclusive,
			ignored:      doc.Ignored,
			skipped:      doc.Skipped,
			invalid:      doc.Invalid,
		},
		result:     types.ResultFailure,
		success:    root.Success != nil && bool(*root.Success),
		fixture:    fixture.Name,
		categories: fixture.Categories.Names(),
		cases:      doc.Cases(),
	}
	if root.Result == types.ResultSuccess {
		m.result = types.ResultSuccess
	}

	for _, c := range m.cases {
		m.counters.asserts += c.AssertCount()
		for _, category := range m.categories {
			c.AddCategory(category)
		}
	}

	return m, nil
}

func reduce(members []*member) *overview {
	ov := &overview{
		start:    members[0].start,
		finish:   members[0].finish,
		result:   types.ResultSuccess,
		success:  true,
		template: members[0],
	}

	for _, m := range members {
		if m.start.Before(ov.start) {
			ov.start = m.start
		}
		if m.finish.After(ov.finish) {
			ov.finish = m.finish
		}
		ov.counters.add(m.counters)
		if m.result == types.ResultFailure {
			ov.result = types.ResultFailure
		}
		if !m.success {
			ov.success = false
		}
		ov.cases = append(ov.cases, m.cases...)
		if m.isTemplateOver(ov.template) {
			ov.template = m
		}
	}

	ov.duration = ov.finish.Sub(ov.start).Seconds()
	return ov
}

// isTemplateOver reports whether m is a better template than other: the
// shortest fixture name wins and the earlier input wins on ties.
func (m *member) isTemplateOver(other *member) bool {
	if len(m.fixture) != len(other.fixture) {
		return len(m.fixture) < len(other.fixture)
	}
	return m.index < other.index
}

// write reloads the template report, fills it with the reduced values and saves it to outputPath
func (a *Aggregator) write(ov *overview, outputPath string) error {
	doc, err := report.Load(ov.template.path)
	if err != nil {
		return fmt.Errorf("failed to reload template report: %w", err)
	}

	doc.Total = ov.counters.total
	doc.Errors = ov.counters.errors
	doc.Failures = ov.counters.failures
	doc.NotRun = ov.counters.notRun
	doc.Inconclusive = ov.counters.inconclusive
	doc.Ignored = ov.counters.ignored
	doc.Skipped = ov.counters.skipped
	doc.Invalid = ov.counters.invalid
	doc.SetFinishTime(ov.finish)

	for _, s := range doc.Suites() {
		if s.Time != nil {
			*s.Time = report.Seconds(ov.duration)
		}
		if s.Result != "" {
			s.Result = ov.result
		}
		if s.Success != nil {
			*s.Success = report.Flag(ov.success)
		}
	}

	fixture := doc.FirstFixture()
	fixture.Categories = nil
	fixture.RemoveCases()
	fixture.AppendCases(ov.cases...)
	asserts := ov.counters.asserts
	fixture.Asserts = &asserts

	if err := doc.Save(outputPath); err != nil {
		return fmt.Errorf("failed to write merged report: %w", err)
	}
	return nil
}

func (a *Aggregator) removeInputs(inputs []string, outputPath string) {
	keep := filepath.Clean(outputPath)
	for _, path := range inputs {
		if filepath.Clean(path) == keep {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.log.Warn("Failed to remove merged input", "path", path, "err", err)
		}
	}
}
