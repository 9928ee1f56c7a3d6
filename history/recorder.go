package history

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-nunit-runner/metrics"
	"github.com/ethereum-optimism/infra/op-nunit-runner/runner"
	"github.com/ethereum-optimism/infra/op-nunit-runner/types"
)

// Record stores the run, its item runs and their cases in one transaction.
// The transaction is rolled back on failure, also when ctx is already cancelled.
func Record(ctx context.Context, conn Connection, result *runner.RunResult, finishedAt time.Time) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	run := Run{
		ID:         result.RunID,
		Status:     string(result.Status()),
		Retried:    result.Retried,
		StartedAt:  finishedAt.Add(-result.Duration),
		FinishedAt: finishedAt,
	}
	if err := tx.InsertRun(ctx, run); err != nil {
		return err
	}

	for _, o := range result.Outcomes {
		id, err := tx.InsertItemRun(ctx, itemRun(result.RunID, o))
		if err != nil {
			return err
		}
		for _, c := range o.Cases {
			if err := tx.InsertCaseResult(ctx, CaseResult{
				ItemRunID: id,
				Name:      c.Name,
				Result:    string(c.Result),
				Executed:  c.Executed,
				Runtime:   c.Duration,
			}); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", result.RunID, err)
	}
	committed = true
	return nil
}

func itemRun(runID string, o types.RunOutcome) ItemRun {
	ir := ItemRun{
		RunID:    runID,
		Basename: o.Item.Basename,
		Name:     o.Item.Name,
		Category: o.Item.Category,
		ExitCode: o.ExitCode,
		Runtime:  o.Duration.Seconds(),
		Status:   metrics.ItemSucceeded,
	}
	switch {
	case o.Err != nil:
		ir.Status = metrics.ItemError
		ir.Message = o.Err.Error()
	case !o.Succeeded:
		ir.Status = metrics.ItemFailed
	}
	return ir
}
