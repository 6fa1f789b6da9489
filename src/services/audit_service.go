package services

import (
	"context"
	"fmt"
	"time"

	"github.com/username/tradefolio/src/database"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/reconcile"
)

// AuditService computes what a reconciliation over the current ledger
// contents would do without writing anything. Useful as a dry run before a
// sync and as a health check that previous runs converged.
type AuditService struct {
	store      Store
	reconciler *reconcile.Reconciler
}

func NewAuditService(store Store, reconciler *reconcile.Reconciler) *AuditService {
	return &AuditService{store: store, reconciler: reconciler}
}

// Audit reports the pending duplicate archives among existing ledger rows.
// A clean ledger yields zero archives.
func (s *AuditService) Audit(ctx context.Context) (*models.SyncResult, error) {
	startedAt := time.Now()
	res := newResult("audit", "")

	existing, err := s.store.QueryAll(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("audit: loading existing ledger records: %w", err)
	}
	res.Parsed = len(existing)

	// Planning with no candidates exercises only the duplicate rules over
	// the existing rows.
	plan := s.reconciler.Plan(nil, existing, nil)
	res.Archived = len(plan.Archives)
	res.Updated = len(plan.Updates)

	for _, op := range plan.Archives {
		logger.L.Warn("Audit: duplicate ledger record pending archive", "runID", res.RunID, "id", op.ID, "reason", op.Reason)
	}
	logger.L.Info("Audit complete", "runID", res.RunID, "records", len(existing),
		"pendingArchives", res.Archived, "pendingUpdates", res.Updated)

	if dbErr := database.RecordRun(res, startedAt, nil); dbErr != nil {
		logger.L.Error("Failed to record run history", "runID", res.RunID, "error", dbErr)
	}
	return res, nil
}
