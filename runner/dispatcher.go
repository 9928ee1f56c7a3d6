package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-nunit-runner/metrics"
	"github.com/ethereum-optimism/infra/op-nunit-runner/report"
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// TraceWriter persists the console output of a test tool run
type TraceWriter interface {
	WriteTrace(basename string, output []byte) error
}

// DispatcherConfig holds configuration for a Dispatcher
type DispatcherConfig struct {
	Executor         Executor
	Traces           TraceWriter   // Optional
	ProgressInterval time.Duration // Zero disables periodic progress updates
	Log              log.Logger
}

// Dispatcher runs work items against an Executor with bounded concurrency
type Dispatcher struct {
	executor         Executor
	traces           TraceWriter
	progressInterval time.Duration
	inflight         *InFlight
	log              log.Logger
	tracer           trace.Tracer
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	return &Dispatcher{
		executor:         cfg.Executor,
		traces:           cfg.Traces,
		progressInterval: cfg.ProgressInterval,
		inflight:         NewInFlight(),
		log:              cfg.Log.New("component", "dispatcher"),
		tracer:           otel.Tracer("dispatcher"),
	}, nil
}

// InFlight returns the registry of currently executing items
func (d *Dispatcher) InFlight() *InFlight {
	return d.inflight
}

// NormalizeParallelism turns a configured parallelism into a worker count for n items:
// -1 is one worker per item, 0 is serial and positive values bound exactly.
func NormalizeParallelism(maxParallel int, n int) int {
	workers := maxParallel
	switch {
	case maxParallel == Unbounded:
		workers = n
	case maxParallel <= 0:
		workers = 1
	}
	return max(1, min(workers, n))
}

// resultSet is the collection of outcomes shared by the collect stage and readers
type resultSet struct {
	mu       sync.Mutex
	outcomes []types.RunOutcome
}

func (r *resultSet) add(outcome types.RunOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *resultSet) list() []types.RunOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.RunOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// RunAll executes every item and returns one outcome per item, in completion order.
// It returns only once every item has produced an outcome.
func (d *Dispatcher) RunAll(ctx context.Context, items []types.WorkItem, maxParallel int) []types.RunOutcome {
	if len(items) == 0 {
		d.log.Debug("No work items to execute")
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "dispatch")
	defer span.End()

	start := time.Now()
	workers := NormalizeParallelism(maxParallel, len(items))
	d.log.Info("Starting test runs", "items", len(items), "parallelism", workers)

	var progress *progressReporter
	if d.progressInterval > 0 {
		progress = startProgressReporter(d.log, d.inflight, len(items), d.progressInterval)
		defer progress.Stop()
	}

	// Every item is queued up front so workers never wait on the sender
	workChan := make(chan types.WorkItem, len(items))
	for _, item := range items {
		workChan <- item
	}
	close(workChan)

	resultChan := make(chan types.RunOutcome, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go d.worker(ctx, &wg, workChan, resultChan)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := &resultSet{}
	for outcome := range resultChan {
		d.collect(outcome)
		results.add(outcome)
		if progress != nil {
			progress.Completed()
		}
	}

	outcomes := results.list()
	d.log.Info("Test runs completed", "items", len(outcomes), "duration", time.Since(start).Truncate(time.Millisecond))
	return outcomes
}

// worker drains the work channel. Items are never dropped: with a cancelled
// context the executor fails to start and the item still yields an outcome.
func (d *Dispatcher) worker(ctx context.Context, wg *sync.WaitGroup, workChan <-chan types.WorkItem, resultChan chan<- types.RunOutcome) {
	defer wg.Done()
	for item := range workChan {
		resultChan <- d.run(ctx, item)
	}
}

func (d *Dispatcher) run(ctx context.Context, item types.WorkItem) types.RunOutcome {
	ctx, span := d.tracer.Start(ctx, fmt.Sprintf("run %s", item.Basename))
	defer span.End()
	span.SetAttributes(
		attribute.String("item.name", item.Name),
		attribute.String("item.category", item.Category),
	)

	count := d.inflight.Add(item)
	metrics.SetInFlight(count)
	d.log.Info("Starting test run", "item", item.Basename, "category", item.Category, "inflight", count)

	start := time.Now()
	execution, err := d.executor.Execute(ctx, Invocation{
		Basename: item.Basename,
		Category: item.Category,
		Fixture:  item.Fixture,
	})

	outcome := types.RunOutcome{Item: item}
	if err != nil {
		outcome.Err = err
		outcome.ExitCode = -1
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start")
		d.log.Error("Failed to start test run", "item", item.Basename, "err", err)
	} else {
		outcome.ExitCode = execution.ExitCode
		outcome.Succeeded = execution.Succeeded()
		outcome.Cases = d.parseCases(item, execution.ReportPath)
		d.writeTrace(item.Basename, execution.Output)
	}
	outcome.Duration = time.Since(start)

	count = d.inflight.Remove(item.ID)
	metrics.SetInFlight(count)
	d.log.Info("Finished test run", "item", item.Basename, "inflight", count)

	return outcome
}

// parseCases reads the item's report. A missing or malformed report yields no cases.
func (d *Dispatcher) parseCases(item types.WorkItem, path string) []types.CaseOutcome {
	doc, err := report.Load(path)
	if err != nil {
		d.log.Warn("Could not read report", "item", item.Basename, "path", path, "err", err)
		metrics.RecordErrorDetails("report", err)
		return nil
	}

	cases := doc.Outcomes()
	for i := range cases {
		cases[i].ItemName = item.Name
		cases[i].ItemBasename = item.Basename
	}
	return cases
}

func (d *Dispatcher) writeTrace(basename string, output []byte) {
	if d.traces == nil {
		return
	}
	if err := d.traces.WriteTrace(basename, output); err != nil {
		d.log.Warn("Failed to write trace log", "item", basename, "err", err)
	}
}

// collect handles one completed outcome. It runs on the single collector goroutine.
func (d *Dispatcher) collect(outcome types.RunOutcome) {
	result := metrics.ItemSucceeded
	switch {
	case outcome.Err != nil:
		result = metrics.ItemError
	case !outcome.Succeeded:
		result = metrics.ItemFailed
	}
	metrics.RecordItemRun(outcome.Item.Name, result, outcome.Duration)
	metrics.RecordCases(outcome.Cases)

	d.log.Info(fmt.Sprintf("Test %s is completed in %s", outcome.Item.Basename, HumanDuration(outcome.Duration)),
		"result", result,
		"exitCode", outcome.ExitCode,
		"cases", len(outcome.Cases),
		"failedCases", len(outcome.FailedCases()))
}
