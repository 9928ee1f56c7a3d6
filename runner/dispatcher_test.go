package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

func makeItems(n int) []types.WorkItem {
	items := make([]types.WorkItem, n)
	for i := range items {
		name := fmt.Sprintf("Test%d", i)
		items[i] = types.WorkItem{ID: i, Name: name, Basename: name}
	}
	return items
}

func newTestDispatcher(t *testing.T, exec Executor, traces TraceWriter) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherConfig{Executor: exec, Traces: traces, Log: testLogger()})
	require.NoError(t, err)
	return d
}

func TestNormalizeParallelism(t *testing.T) {
	tests := []struct {
		name        string
		maxParallel int
		items       int
		expected    int
	}{
		{"unbounded", -1, 7, 7},
		{"zero is serial", 0, 7, 1},
		{"bounded", 3, 7, 3},
		{"bound above item count", 10, 4, 4},
		{"serial", 1, 4, 1},
		{"below unbounded", -5, 4, 1},
		{"unbounded single item", -1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeParallelism(tt.maxParallel, tt.items))
		})
	}
}

func TestNewDispatcherRequiresExecutor(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{Log: testLogger()})
	assert.Error(t, err)
}

func TestRunAllCardinality(t *testing.T) {
	tests := []struct {
		name        string
		maxParallel int
		items       int
		maxObserved int32
	}{
		{"serial", 1, 6, 1},
		{"zero normalized to serial", 0, 4, 1},
		{"bounded", 3, 9, 3},
		{"unbounded", -1, 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor(t)
			exec.delay = 20 * time.Millisecond
			items := makeItems(tt.items)
			for _, item := range items {
				exec.reports[item.Basename] = reportXML(fakeCase{name: item.Name + ".Case", result: "Success", time: 0.1})
			}
			d := newTestDispatcher(t, exec, nil)

			outcomes := d.RunAll(context.Background(), items, tt.maxParallel)

			require.Len(t, outcomes, tt.items)
			var ids []int
			for _, o := range outcomes {
				ids = append(ids, o.Item.ID)
				assert.True(t, o.Succeeded)
				require.Len(t, o.Cases, 1)
				assert.Equal(t, o.Item.Name, o.Cases[0].ItemName)
				assert.Equal(t, o.Item.Basename, o.Cases[0].ItemBasename)
			}
			sort.Ints(ids)
			for i, id := range ids {
				assert.Equal(t, i, id)
			}
			assert.LessOrEqual(t, exec.maxRunning.Load(), tt.maxObserved)
			assert.Equal(t, 0, d.InFlight().Count())
		})
	}
}

func TestRunAllRespectsBound(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.delay = 30 * time.Millisecond
	d := newTestDispatcher(t, exec, nil)

	outcomes := d.RunAll(context.Background(), makeItems(8), 2)

	assert.Len(t, outcomes, 8)
	assert.Equal(t, int32(2), exec.maxRunning.Load())
}

func TestRunAllEmpty(t *testing.T) {
	d := newTestDispatcher(t, newFakeExecutor(t), nil)
	assert.Empty(t, d.RunAll(context.Background(), nil, 4))
}

func TestRunAllIsolatesFailures(t *testing.T) {
	exec := newFakeExecutor(t)
	items := makeItems(4)
	exec.reports["Test0"] = reportXML(fakeCase{name: "A.Pass", result: "Success", time: 0.2})
	exec.reports["Test1"] = reportXML(
		fakeCase{name: "B.Pass", result: "Success", time: 0.2},
		fakeCase{name: "B.Fail", result: "Failure", time: 0.3},
	)
	exec.exitCodes["Test1"] = 1
	exec.startErrs["Test2"] = errors.New("exec: no such file")
	exec.reports["Test3"] = "<test-results>not a report"
	traces := newFakeTraces()
	d := newTestDispatcher(t, exec, traces)

	outcomes := d.RunAll(context.Background(), items, 2)
	require.Len(t, outcomes, 4)

	byBasename := make(map[string]types.RunOutcome)
	for _, o := range outcomes {
		byBasename[o.Item.Basename] = o
	}

	ok := byBasename["Test0"]
	assert.True(t, ok.Succeeded)
	assert.NoError(t, ok.Err)
	assert.Len(t, ok.Cases, 1)

	failed := byBasename["Test1"]
	assert.False(t, failed.Succeeded)
	assert.Equal(t, 1, failed.ExitCode)
	require.Len(t, failed.Cases, 2)
	require.Len(t, failed.FailedCases(), 1)
	assert.Equal(t, "B.Fail", failed.FailedCases()[0].Name)

	notStarted := byBasename["Test2"]
	assert.False(t, notStarted.Succeeded)
	assert.Error(t, notStarted.Err)
	assert.Empty(t, notStarted.Cases)
	_, traced := traces.get("Test2")
	assert.False(t, traced)

	malformed := byBasename["Test3"]
	assert.True(t, malformed.Succeeded)
	assert.Empty(t, malformed.Cases)

	trace, traced := traces.get("Test1")
	assert.True(t, traced)
	assert.Equal(t, "console output of Test1", trace)
}

func TestRunAllPassesFilters(t *testing.T) {
	exec := newFakeExecutor(t)
	items := []types.WorkItem{
		{ID: 0, Name: "Checkout", Category: "Smoke", Fixture: "Acme.Checkout", Basename: "Checkout"},
	}
	d := newTestDispatcher(t, exec, nil)

	outcomes := d.RunAll(context.Background(), items, 1)

	require.Len(t, outcomes, 1)
	calls := exec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, Invocation{Basename: "Checkout", Category: "Smoke", Fixture: "Acme.Checkout"}, calls[0])
}

func TestRunAllCancelledContextStillYieldsOutcomes(t *testing.T) {
	exec := newFakeExecutor(t)
	for i := 0; i < 3; i++ {
		exec.startErrs[fmt.Sprintf("Test%d", i)] = context.Canceled
	}
	d := newTestDispatcher(t, exec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := d.RunAll(ctx, makeItems(3), -1)

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestRunAllProgressReporting(t *testing.T) {
	exec := newFakeExecutor(t)
	exec.delay = 15 * time.Millisecond
	d, err := NewDispatcher(DispatcherConfig{Executor: exec, ProgressInterval: 5 * time.Millisecond, Log: testLogger()})
	require.NoError(t, err)

	outcomes := d.RunAll(context.Background(), makeItems(4), 2)

	assert.Len(t, outcomes, 4)
	assert.Equal(t, 0, d.InFlight().Count())
}
