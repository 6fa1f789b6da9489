package services

import (
	"context"
	"fmt"
	"time"

	"github.com/username/tradefolio/src/database"
	"github.com/username/tradefolio/src/engine"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/reconcile"
	"github.com/username/tradefolio/src/sources"
)

// SyncService pulls executed orders from the aggregation API, stores them
// in the local event log, rebuilds position episodes from the full stored
// history and reconciles the outcome against the ledger.
type SyncService struct {
	store      Store
	aggregator Aggregator
	reconciler *reconcile.Reconciler
	notifier   Notifier
	windowDays int
}

func NewSyncService(store Store, aggregator Aggregator, reconciler *reconcile.Reconciler, notifier Notifier, windowDays int) *SyncService {
	return &SyncService{
		store:      store,
		aggregator: aggregator,
		reconciler: reconciler,
		notifier:   notifier,
		windowDays: windowDays,
	}
}

// modelForEvents picks the accounting model for one rebuilt history. The
// aggregation API and the statement-style importers mark option rows with
// explicit open/close intent; any such row selects the intent model, which
// already falls back to direction rules for rows without an effect. Bare
// BUY/SELL histories use the direction model.
func modelForEvents(source string, events []models.TradeEvent) engine.Model {
	if source == sources.SourceAggregator {
		return engine.ModelIntent
	}
	for i := range events {
		if events[i].Effect != models.EffectNone {
			return engine.ModelIntent
		}
	}
	return engine.ModelDirection
}

// SyncAccounts runs one full synchronization pass over every linked
// account. Running it twice in a row without new broker activity produces
// no creates, updates or archives on the second pass.
func (s *SyncService) SyncAccounts(ctx context.Context) (*models.SyncResult, error) {
	startedAt := time.Now()
	res := newResult("sync", sources.SourceAggregator)
	err := s.syncAccounts(ctx, res)

	if dbErr := database.RecordRun(res, startedAt, err); dbErr != nil {
		logger.L.Error("Failed to record run history", "runID", res.RunID, "error", dbErr)
	}
	s.notify(res, err)
	return res, err
}

func (s *SyncService) syncAccounts(ctx context.Context, res *models.SyncResult) error {
	accounts, err := s.aggregator.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	logger.L.Info("Starting account sync", "runID", res.RunID, "accounts", len(accounts), "windowDays", s.windowDays)

	to := time.Now()
	from := to.AddDate(0, 0, -s.windowDays)

	var fetched []models.TradeEvent
	for _, acct := range accounts {
		events, stats, err := s.aggregator.ListOrders(ctx, acct.ID, from, to)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		res.Parsed += stats.Parsed
		res.Usable += stats.Usable
		fetched = append(fetched, events...)
	}

	inserted, duplicates, err := database.InsertEvents(fetched)
	if err != nil {
		return fmt.Errorf("sync: storing events: %w", err)
	}
	logger.L.Info("Stored aggregator events", "runID", res.RunID, "fetched", len(fetched), "new", inserted, "duplicates", duplicates)

	return reconcileSource(ctx, s.store, s.reconciler, sources.SourceAggregator, res)
}

// reconcileSource rebuilds every position episode from the stored event
// history of one source and applies the resulting plan to the ledger.
// Shared by the sync and import paths.
func reconcileSource(ctx context.Context, store Store, reconciler *reconcile.Reconciler, source string, res *models.SyncResult) error {
	events, err := database.EventsBySource(source)
	if err != nil {
		return err
	}

	builder := engine.NewPositionBuilder(modelForEvents(source, events))
	states := builder.Build(events)

	existing, err := store.QueryAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("loading existing ledger records: %w", err)
	}

	manual := reconcile.BuildManualIndex(existing)
	plan := reconciler.Plan(states, existing, manual)
	logger.L.Info("Reconciliation plan computed",
		"runID", res.RunID, "source", source, "episodes", len(states),
		"creates", len(plan.Creates), "updates", len(plan.Updates), "archives", len(plan.Archives),
		"skipped", plan.Skipped, "mismatched", plan.Mismatched)

	return executePlan(ctx, store, plan, res)
}

func (s *SyncService) notify(res *models.SyncResult, runErr error) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendRunReport(res, runErr); err != nil {
		logger.L.Error("Failed to send run report", "runID", res.RunID, "error", err)
	}
}
