package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/username/tradefolio/src/database"
	"github.com/username/tradefolio/src/engine"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/reconcile"
)

// RebuildService destructively regenerates one source's ledger records:
// archive everything the source wrote, replay its full stored event history
// and recreate the episodes. User-entered strategy and tags are captured
// before the archive pass and restored onto the recreated records.
type RebuildService struct {
	store      Store
	reconciler *reconcile.Reconciler
}

func NewRebuildService(store Store, reconciler *reconcile.Reconciler) *RebuildService {
	return &RebuildService{store: store, reconciler: reconciler}
}

// RebuildSource takes the ledger source label, e.g. "Public (CSV)" or
// "SnapTrade".
func (s *RebuildService) RebuildSource(ctx context.Context, sourceLabel string) (*models.SyncResult, error) {
	startedAt := time.Now()
	res := newResult("rebuild", sourceLabel)
	err := s.rebuildSource(ctx, sourceLabel, res)

	if dbErr := database.RecordRun(res, startedAt, err); dbErr != nil {
		logger.L.Error("Failed to record run history", "runID", res.RunID, "error", dbErr)
	}
	return res, err
}

func (s *RebuildService) rebuildSource(ctx context.Context, sourceLabel string, res *models.SyncResult) error {
	existing, err := s.store.QueryAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("rebuild: loading existing ledger records: %w", err)
	}

	// Capture user classification before anything is archived.
	manual := reconcile.BuildManualIndex(existing)
	logger.L.Info("Captured manual classification", "runID", res.RunID, "entries", manual.Len())

	remaining := existing[:0]
	for i := range existing {
		rec := &existing[i]
		if !strings.EqualFold(rec.Source, sourceLabel) {
			remaining = append(remaining, *rec)
			continue
		}
		if err := s.store.Archive(ctx, rec.ID); err != nil {
			return fmt.Errorf("rebuild: archiving %s: %w", rec.ID, err)
		}
		res.Archived++
	}
	logger.L.Info("Archived source records for rebuild", "runID", res.RunID, "source", sourceLabel, "archived", res.Archived)

	events, err := database.EventsBySource(sourceLabel)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	res.Parsed = len(events)
	res.Usable = len(events)
	if len(events) == 0 {
		logger.L.Warn("No stored events for source; rebuild leaves it empty", "runID", res.RunID, "source", sourceLabel)
		return nil
	}

	builder := engine.NewPositionBuilder(modelForEvents(sourceLabel, events))
	states := builder.Build(events)

	plan := s.reconciler.Plan(states, remaining, manual)
	logger.L.Info("Rebuild plan computed",
		"runID", res.RunID, "source", sourceLabel, "episodes", len(states),
		"creates", len(plan.Creates), "updates", len(plan.Updates), "archives", len(plan.Archives))

	return executePlan(ctx, s.store, plan, res)
}
