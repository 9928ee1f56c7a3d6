package nunitrunner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-nunit-runner/history"
	"github.com/ethereum-optimism/infra/op-nunit-runner/logging"
	"github.com/ethereum-optimism/infra/op-nunit-runner/report"
	"github.com/ethereum-optimism/infra/op-nunit-runner/runner"
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// fixtureReport renders a report with a single fixture; results maps case names to results
func fixtureReport(fixture string, results map[string]string) string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := 0
	var cases strings.Builder
	for _, name := range names {
		result := results[name]
		success := "True"
		if result != "Success" {
			success = "False"
			failures++
		}
		fmt.Fprintf(&cases, `<test-case name="%s.%s" executed="True" result="%s" success="%s" time="0.250" asserts="1">`, fixture, name, result, success)
		if result == "Failure" {
			cases.WriteString(`<failure><message><![CDATA[boom]]></message></failure>`)
		}
		cases.WriteString("</test-case>\n")
	}

	result, success := "Success", "True"
	if failures > 0 {
		result, success = "Failure", "False"
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8" standalone="no"?>
<test-results name="Acme.Tests.dll" total="%d" errors="0" failures="%d" not-run="0" inconclusive="0" ignored="0" skipped="0" invalid="0" date="2020-03-14" time="10:00:00">
<test-suite type="Assembly" name="Acme.Tests.dll" executed="True" result="%s" success="%s" time="1.000" asserts="0"><results>
<test-suite type="TestFixture" name="%s" executed="True" result="%s" success="%s" time="1.000" asserts="0"><results>
%s</results></test-suite></results></test-suite></test-results>
`, len(results), failures, result, success, fixture, result, success, cases.String())
}

// scriptedExecutor writes canned reports into the output directory
type scriptedExecutor struct {
	outputDir string
	reports   map[string]string // basename -> report, Rerun for the rerun

	mu          sync.Mutex
	invocations []runner.Invocation
}

func (e *scriptedExecutor) Execute(ctx context.Context, inv runner.Invocation) (*runner.Execution, error) {
	e.mu.Lock()
	e.invocations = append(e.invocations, inv)
	e.mu.Unlock()

	path := filepath.Join(e.outputDir, types.ReportFileName(inv.Basename))
	content, ok := e.reports[inv.Basename]
	exitCode := 0
	if ok {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, err
		}
		if strings.Contains(content, `result="Failure"`) {
			exitCode = 1
		}
	} else {
		exitCode = 2
	}
	return &runner.Execution{
		ExitCode:   exitCode,
		ReportPath: path,
		Output:     []byte("\x1b[32mrun " + inv.Basename + "\x1b[0m\n"),
		Duration:   time.Millisecond,
	}, nil
}

func (e *scriptedExecutor) rerunInvocations() []runner.Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []runner.Invocation
	for _, inv := range e.invocations {
		if inv.Basename == runner.RerunBasename {
			out = append(out, inv)
		}
	}
	return out
}

type serviceFixture struct {
	cfg      *Config
	executor *scriptedExecutor
	table    *bytes.Buffer
	shutdown chan error
}

func newServiceFixture(t *testing.T, runConfig string, reports map[string]string) *serviceFixture {
	t.Helper()
	dir := t.TempDir()
	output := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(output, 0755))
	configPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(runConfig), 0644))

	return &serviceFixture{
		cfg: &Config{
			Assembly:     filepath.Join(dir, "Acme.Tests.dll"),
			NUnitConsole: filepath.Join(dir, "nunit-console.exe"),
			RunConfig:    configPath,
			OutputDir:    output,
			RunOnce:      true,
			Log:          log.NewLogger(log.DiscardHandler()),
		},
		executor: &scriptedExecutor{outputDir: output, reports: reports},
		table:    &bytes.Buffer{},
		shutdown: make(chan error, 1),
	}
}

func (f *serviceFixture) newService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(context.Background(), f.cfg, "test", func(err error) { f.shutdown <- err }, Options{
		Executor:  f.executor,
		Formatter: NewConsoleResultFormatter(f.cfg.Log, f.table),
	})
	require.NoError(t, err)
	return svc
}

func (f *serviceFixture) path(name string) string {
	return filepath.Join(f.cfg.OutputDir, name)
}

const splitRunConfig = `
max_parallel_runs: 2
retry_failed_tests: false
tests:
  - name: Checkout
    categories: [Smoke, Slow]
  - name: Search
`

func TestServiceRunOnceMergesSplitReports(t *testing.T) {
	f := newServiceFixture(t, splitRunConfig, map[string]string{
		"Checkout":   fixtureReport("Acme.Checkout", map[string]string{"Pays": "Success"}),
		"Checkout_2": fixtureReport("Acme.Checkout", map[string]string{"Refunds": "Success", "Ships": "Success"}),
		"Search":     fixtureReport("Acme.Search", map[string]string{"Finds": "Success"}),
	})
	svc := f.newService(t)

	require.NoError(t, svc.Start(context.Background()))
	select {
	case err := <-f.shutdown:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run-once mode should request shutdown after a successful run")
	}

	merged, err := report.Load(f.path("Checkout.xml"))
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Total)
	assert.Len(t, merged.Cases(), 3)
	assert.NoFileExists(t, f.path("Checkout_2.xml"))
	assert.FileExists(t, f.path("Search.xml"))

	trace, err := os.ReadFile(f.path("NUnitTrace_Checkout_2.log"))
	require.NoError(t, err)
	assert.Equal(t, "run Checkout_2\n", string(trace))

	summary, err := os.ReadFile(f.path(logging.SummaryFileName))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Status: all_succeeded")
	assert.Contains(t, string(summary), "Combined reports: Checkout")

	result := svc.Result()
	require.NotNil(t, result)
	assert.Len(t, result.Outcomes, 3)
	assert.Contains(t, f.table.String(), "Checkout_2")

	require.NoError(t, svc.Stop(context.Background()))
	assert.True(t, svc.Stopped())
}

const retryRunConfig = `
max_parallel_runs: 1
retry_failed_tests: true
tests:
  - name: Search
`

func TestServiceRunOnceRerunFixesFailures(t *testing.T) {
	f := newServiceFixture(t, retryRunConfig, map[string]string{
		"Search": fixtureReport("Acme.Search", map[string]string{"Finds": "Success", "FindsNothing": "Failure"}),
		"Rerun":  fixtureReport("Acme.Search", map[string]string{"FindsNothing": "Success"}),
	})
	svc := f.newService(t)

	require.NoError(t, svc.Start(context.Background()))

	reruns := f.executor.rerunInvocations()
	require.Len(t, reruns, 1)
	assert.Equal(t, []string{"Acme.Search.FindsNothing"}, reruns[0].Cases)

	patched, err := report.Load(f.path("Search.xml"))
	require.NoError(t, err)
	assert.Equal(t, 0, patched.Failures)
	assert.Equal(t, types.ResultSuccess, patched.Suite.Result)
	assert.NoFileExists(t, f.path("Rerun.xml"))
	assert.True(t, svc.Result().Retried)
}

func TestServiceRunOnceReportsRemainingFailures(t *testing.T) {
	f := newServiceFixture(t, retryRunConfig, map[string]string{
		"Search": fixtureReport("Acme.Search", map[string]string{"Finds": "Success", "FindsNothing": "Failure"}),
		"Rerun":  fixtureReport("Acme.Search", map[string]string{"FindsNothing": "Failure"}),
	})
	svc := f.newService(t)

	err := svc.Start(context.Background())
	require.True(t, IsTestFailureError(err), "got %v", err)
	var failure *TestFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, failure.FailedCases)

	select {
	case <-f.shutdown:
		t.Fatal("shutdown is left to the exit error handler")
	default:
	}
}

func TestServiceRequiresValidRunConfig(t *testing.T) {
	f := newServiceFixture(t, "tests: []\n", nil)
	_, err := New(context.Background(), f.cfg, "test", func(error) {}, Options{Executor: f.executor})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create registry")

	_, err = New(context.Background(), nil, "test", func(error) {}, Options{})
	assert.Error(t, err)
}

// memoryHistory keeps recorded runs in memory
type memoryHistory struct {
	mu           sync.Mutex
	runs         []history.Run
	items        []history.ItemRun
	lastRunCalls int
	closed       bool
}

func (h *memoryHistory) LastRun(ctx context.Context) (*history.Run, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRunCalls++
	if len(h.runs) == 0 {
		return nil, nil
	}
	run := h.runs[len(h.runs)-1]
	return &run, nil
}

func (h *memoryHistory) Begin(ctx context.Context) (history.Transactor, error) {
	return &memoryTx{h: h}, nil
}

func (h *memoryHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

type memoryTx struct {
	h     *memoryHistory
	runs  []history.Run
	items []history.ItemRun
}

func (tx *memoryTx) InsertRun(ctx context.Context, r history.Run) error {
	tx.runs = append(tx.runs, r)
	return nil
}

func (tx *memoryTx) InsertItemRun(ctx context.Context, ir history.ItemRun) (int, error) {
	tx.items = append(tx.items, ir)
	return len(tx.items), nil
}

func (tx *memoryTx) InsertCaseResult(ctx context.Context, cr history.CaseResult) error {
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	tx.h.mu.Lock()
	defer tx.h.mu.Unlock()
	tx.h.runs = append(tx.h.runs, tx.runs...)
	tx.h.items = append(tx.h.items, tx.items...)
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) {}

func TestServiceRunHistory(t *testing.T) {
	f := newServiceFixture(t, splitRunConfig, map[string]string{
		"Checkout":   fixtureReport("Acme.Checkout", map[string]string{"Pays": "Success"}),
		"Checkout_2": fixtureReport("Acme.Checkout", map[string]string{"Ships": "Success"}),
		"Search":     fixtureReport("Acme.Search", map[string]string{"Finds": "Success"}),
	})
	finished := time.Date(2020, 3, 14, 9, 0, 0, 0, time.UTC)
	hist := &memoryHistory{runs: []history.Run{{ID: "previous", Status: "some_failed", StartedAt: finished.Add(-time.Minute), FinishedAt: finished}}}

	svc, err := New(context.Background(), f.cfg, "test", func(err error) { f.shutdown <- err }, Options{
		Executor:  f.executor,
		Formatter: NewConsoleResultFormatter(f.cfg.Log, f.table),
		History:   hist,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hist.lastRunCalls, "the previous run is read at startup")

	require.NoError(t, svc.Start(context.Background()))
	select {
	case err := <-f.shutdown:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run-once mode should request shutdown after a successful run")
	}

	last, err := hist.LastRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, svc.Result().RunID, last.ID)
	assert.Equal(t, string(runner.StatusAllSucceeded), last.Status)
	assert.Len(t, hist.items, 3)

	require.NoError(t, svc.Stop(context.Background()))
	assert.True(t, hist.closed)
}
