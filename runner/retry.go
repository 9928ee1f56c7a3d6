package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-nunit-runner/metrics"
	"github.com/ethereum-optimism/infra/op-nunit-runner/report"
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// RetryConfig holds configuration for a RetryCoordinator
type RetryConfig struct {
	Executor  Executor
	OutputDir string      // Directory holding the original reports
	Traces    TraceWriter // Optional
	Log       log.Logger
}

// RetryCoordinator reruns failed cases and folds the rerun results back into
// the reports they came from
type RetryCoordinator struct {
	executor  Executor
	outputDir string
	traces    TraceWriter
	log       log.Logger
	tracer    trace.Tracer
}

// NewRetryCoordinator creates a new retry coordinator
func NewRetryCoordinator(cfg RetryConfig) (*RetryCoordinator, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	return &RetryCoordinator{
		executor:  cfg.Executor,
		outputDir: cfg.OutputDir,
		traces:    cfg.Traces,
		log:       cfg.Log.New("component", "retry"),
		tracer:    otel.Tracer("retry"),
	}, nil
}

// Retry reruns every failed case in one serial invocation and patches the
// owning reports. It returns the cases updated with the rerun results; cases
// the rerun did not report are returned unchanged. An error is returned only
// when the rerun could not be started, in which case nothing is patched.
func (r *RetryCoordinator) Retry(ctx context.Context, failed []types.CaseOutcome) ([]types.CaseOutcome, error) {
	return r.RetryAs(ctx, RerunBasename, failed)
}

// RetryAs is Retry with the rerun's report and logs named after basename.
// basename must not be the basename of an item whose report is patched.
func (r *RetryCoordinator) RetryAs(ctx context.Context, basename string, failed []types.CaseOutcome) ([]types.CaseOutcome, error) {
	if len(failed) == 0 {
		return nil, nil
	}
	for _, c := range failed {
		if c.ItemBasename == basename {
			return failed, fmt.Errorf("rerun basename %q is used by test %s", basename, c.ItemName)
		}
	}

	ctx, span := r.tracer.Start(ctx, "retry")
	defer span.End()
	span.SetAttributes(attribute.Int("cases", len(failed)), attribute.String("basename", basename))

	names := caseNames(failed)
	r.log.Info("Rerunning failed test cases", "cases", len(names), "basename", basename)

	execution, err := r.executor.Execute(ctx, Invocation{
		Basename: basename,
		Cases:    names,
	})
	if err != nil {
		span.RecordError(err)
		return failed, fmt.Errorf("failed to start rerun: %w", err)
	}
	if r.traces != nil {
		if err := r.traces.WriteTrace(basename, execution.Output); err != nil {
			r.log.Warn("Failed to write rerun trace log", "err", err)
		}
	}
	defer func() {
		if err := os.Remove(execution.ReportPath); err != nil && !os.IsNotExist(err) {
			r.log.Warn("Failed to remove rerun report", "path", execution.ReportPath, "err", err)
		}
	}()

	rerun, err := report.Load(execution.ReportPath)
	if err != nil {
		r.log.Warn("Could not read rerun report, keeping original results", "path", execution.ReportPath, "err", err)
		metrics.RecordErrorDetails("rerun_report", err)
		return failed, nil
	}

	rerunCases := make(map[string]*report.Case)
	for _, c := range rerun.Cases() {
		if _, ok := rerunCases[c.Name]; !ok {
			rerunCases[c.Name] = c
		}
	}

	updated := make([]types.CaseOutcome, len(failed))
	patches := make(map[string][]report.Patch)
	for i, c := range failed {
		updated[i] = c
		rc, ok := rerunCases[c.Name]
		if !ok {
			r.log.Debug("Case missing from rerun report", "case", c.Name)
			continue
		}

		outcome := rc.Outcome()
		updated[i].Duration = report.Round3(c.Duration + outcome.Duration)
		updated[i].Result = outcome.Result
		updated[i].Success = outcome.Success
		updated[i].Executed = outcome.Executed

		path := filepath.Join(r.outputDir, types.ReportFileName(c.ItemBasename))
		patches[path] = append(patches[path], report.Patch{
			Name:          c.Name,
			Result:        rc.Result,
			Success:       outcome.Success,
			Executed:      outcome.Executed,
			RerunDuration: outcome.Duration,
		})
	}

	r.patchReports(patches)

	fixed := 0
	for _, c := range updated {
		if !c.Failed() {
			fixed++
		}
	}
	metrics.RecordRetry(fixed, len(updated)-fixed)
	r.log.Info("Rerun completed", "cases", len(updated), "fixed", fixed, "stillFailing", len(updated)-fixed)

	return updated, nil
}

// patchReports loads, patches and saves each report once, in path order
func (r *RetryCoordinator) patchReports(patches map[string][]report.Patch) {
	paths := make([]string, 0, len(patches))
	for path := range patches {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		doc, err := report.Load(path)
		if err != nil {
			r.log.Warn("Could not read report to patch", "path", path, "err", err)
			continue
		}

		applied := 0
		for _, p := range patches[path] {
			if doc.ApplyRerun(p) {
				applied++
			} else {
				r.log.Debug("Case not found in report", "path", path, "case", p.Name)
			}
		}
		if applied == 0 {
			continue
		}

		if err := doc.Save(path); err != nil {
			r.log.Error("Failed to save patched report", "path", path, "err", err)
			metrics.RecordErrorDetails("patch_report", err)
			continue
		}
		r.log.Debug("Patched report", "path", path, "cases", applied)
	}
}

// caseNames returns the distinct case names in first-seen order
func caseNames(cases []types.CaseOutcome) []string {
	seen := make(map[string]bool, len(cases))
	var names []string
	for _, c := range cases {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		names = append(names, c.Name)
	}
	return names
}
