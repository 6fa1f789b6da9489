package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/reconcile"
)

func newResult(kind, source string) *models.SyncResult {
	return &models.SyncResult{
		RunID:  uuid.NewString(),
		Kind:   kind,
		Source: source,
	}
}

// executePlan applies a reconciliation plan to the store in a fixed order:
// archives first so duplicate rows disappear before their replacements
// land, then updates, then creates. Counters accumulate onto the result.
func executePlan(ctx context.Context, store Store, plan *reconcile.Plan, res *models.SyncResult) error {
	for _, op := range plan.Archives {
		if err := store.Archive(ctx, op.ID); err != nil {
			return fmt.Errorf("executing archive of %s: %w", op.ID, err)
		}
		res.Archived++
		logger.L.Info("Archived ledger record", "runID", res.RunID, "id", op.ID, "reason", op.Reason)
	}
	for _, up := range plan.Updates {
		rec := up.Record
		if err := store.Update(ctx, up.ID, &rec); err != nil {
			return fmt.Errorf("executing update of %s: %w", up.ID, err)
		}
		res.Updated++
		logger.L.Debug("Updated ledger record", "runID", res.RunID, "id", up.ID, "contract", rec.ContractKey)
	}
	for i := range plan.Creates {
		rec := plan.Creates[i]
		id, err := store.Create(ctx, &rec)
		if err != nil {
			return fmt.Errorf("executing create for %s: %w", rec.ContractKey, err)
		}
		res.Created++
		logger.L.Debug("Created ledger record", "runID", res.RunID, "id", id, "contract", rec.ContractKey, "status", rec.Status)
	}
	res.Skipped += plan.Skipped
	res.Mismatched += plan.Mismatched
	return nil
}
