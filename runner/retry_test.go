package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-nunit-runner/report"
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

func newTestRetry(t *testing.T, exec *fakeExecutor, traces TraceWriter) *RetryCoordinator {
	t.Helper()
	r, err := NewRetryCoordinator(RetryConfig{Executor: exec, OutputDir: exec.outputDir, Traces: traces, Log: testLogger()})
	require.NoError(t, err)
	return r
}

func failedCase(item, name string, duration float64) types.CaseOutcome {
	return types.CaseOutcome{
		Name:         name,
		Executed:     true,
		Result:       types.ResultFailure,
		Duration:     duration,
		ItemName:     item,
		ItemBasename: item,
	}
}

func TestNewRetryCoordinatorValidation(t *testing.T) {
	_, err := NewRetryCoordinator(RetryConfig{OutputDir: "out", Log: testLogger()})
	assert.Error(t, err)

	_, err = NewRetryCoordinator(RetryConfig{Executor: newFakeExecutor(t), Log: testLogger()})
	assert.Error(t, err)
}

func TestRetryPatchesOriginalReports(t *testing.T) {
	exec := newFakeExecutor(t)
	traces := newFakeTraces()
	r := newTestRetry(t, exec, traces)

	checkoutPath := filepath.Join(exec.outputDir, "Checkout.xml")
	searchPath := filepath.Join(exec.outputDir, "Search.xml")
	writeFile(t, checkoutPath, reportXML(
		fakeCase{name: "Acme.Checkout.Pays", result: "Success", time: 0.5},
		fakeCase{name: "Acme.Checkout.Discount", result: "Failure", time: 1.234},
	))
	writeFile(t, searchPath, reportXML(
		fakeCase{name: "Acme.Search.Finds", result: "Failure", time: 2},
		fakeCase{name: "Acme.Search.Sorts", result: "Error", time: 1},
	))
	exec.reports[RerunBasename] = reportXML(
		fakeCase{name: "Acme.Checkout.Discount", result: "Success", time: 0.5},
		fakeCase{name: "Acme.Search.Finds", result: "Failure", time: 0.25},
	)

	failed := []types.CaseOutcome{
		failedCase("Checkout", "Acme.Checkout.Discount", 1.234),
		failedCase("Search", "Acme.Search.Finds", 2),
		{Name: "Acme.Search.Sorts", Executed: true, Result: types.ResultError, Duration: 1, ItemName: "Search", ItemBasename: "Search"},
	}

	updated, err := r.Retry(context.Background(), failed)
	require.NoError(t, err)
	require.Len(t, updated, 3)

	// One consolidated invocation naming every case
	calls := exec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, RerunBasename, calls[0].Basename)
	assert.Equal(t, []string{"Acme.Checkout.Discount", "Acme.Search.Finds", "Acme.Search.Sorts"}, calls[0].Cases)

	assert.Equal(t, types.ResultSuccess, updated[0].Result)
	assert.True(t, updated[0].Success)
	assert.Equal(t, 1.734, updated[0].Duration)
	assert.Equal(t, types.ResultFailure, updated[1].Result)
	assert.Equal(t, 2.25, updated[1].Duration)
	assert.Equal(t, failed[2], updated[2], "cases missing from the rerun are unchanged")

	checkout, err := report.Load(checkoutPath)
	require.NoError(t, err)
	assert.Equal(t, 0, checkout.Failures)
	discount := checkout.FindCase("Acme.Checkout.Discount")
	assert.Equal(t, types.ResultSuccess, discount.Result)
	assert.Nil(t, discount.Failure)
	assert.Equal(t, 1.734, discount.Duration())
	for _, s := range checkout.Suites() {
		assert.Equal(t, types.ResultSuccess, s.Result)
		assert.True(t, bool(*s.Success))
		assert.Equal(t, 2.234, float64(*s.Time))
	}

	search, err := report.Load(searchPath)
	require.NoError(t, err)
	assert.Equal(t, 1, search.Failures)
	assert.Equal(t, 1, search.Errors)
	assert.Equal(t, 2.25, search.FindCase("Acme.Search.Finds").Duration())
	assert.Equal(t, types.ResultFailure, search.Suite.Result)

	_, err = os.Stat(filepath.Join(exec.outputDir, "Rerun.xml"))
	assert.True(t, os.IsNotExist(err), "rerun report is removed")
	_, traced := traces.get(RerunBasename)
	assert.True(t, traced)
}

func TestRetryNothingToDo(t *testing.T) {
	exec := newFakeExecutor(t)
	r := newTestRetry(t, exec, nil)

	updated, err := r.Retry(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, updated)
	assert.Empty(t, exec.calls())
}

func TestRetryStartFailure(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.startErrs[RerunBasename] = errors.New("cannot start")
	r := newTestRetry(t, exec, nil)

	original := reportXML(fakeCase{name: "A.Fails", result: "Failure", time: 1})
	path := filepath.Join(exec.outputDir, "A.xml")
	writeFile(t, path, original)

	failed := []types.CaseOutcome{failedCase("A", "A.Fails", 1)}
	updated, err := r.Retry(context.Background(), failed)

	require.Error(t, err)
	assert.Equal(t, failed, updated)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(content))
}

func TestRetryWithoutRerunReport(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.exitCodes[RerunBasename] = 2
	r := newTestRetry(t, exec, nil)

	failed := []types.CaseOutcome{failedCase("A", "A.Fails", 1)}
	updated, err := r.Retry(context.Background(), failed)

	require.NoError(t, err)
	assert.Equal(t, failed, updated)
}

func TestRetryMissingOwningReport(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.reports[RerunBasename] = reportXML(fakeCase{name: "A.Fails", result: "Success", time: 0.1})
	r := newTestRetry(t, exec, nil)

	updated, err := r.Retry(context.Background(), []types.CaseOutcome{failedCase("Gone", "A.Fails", 1)})

	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, types.ResultSuccess, updated[0].Result)
	assert.Equal(t, 1.1, updated[0].Duration)
}

func TestCaseNames(t *testing.T) {
	names := caseNames([]types.CaseOutcome{{Name: "b"}, {Name: "a"}, {Name: "b"}, {Name: "c"}})
	assert.Equal(t, []string{"b", "a", "c"}, names)
}

func TestRetryAsRejectsItemBasename(t *testing.T) {
	exec := newFakeExecutor(t)
	r := newTestRetry(t, exec, nil)

	original := reportXML(fakeCase{name: "A.Fails", result: "Failure", time: 1})
	path := filepath.Join(exec.outputDir, "Rerun.xml")
	writeFile(t, path, original)

	failed := []types.CaseOutcome{failedCase("Rerun", "A.Fails", 1)}
	updated, err := r.RetryAs(context.Background(), "Rerun", failed)

	require.Error(t, err)
	assert.Equal(t, failed, updated)
	assert.Empty(t, exec.calls())
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(content))
}
