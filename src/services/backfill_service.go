package services

import (
	"context"
	"fmt"
	"time"

	"github.com/username/tradefolio/src/database"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/reconcile"
	"github.com/username/tradefolio/src/sources"
	"github.com/username/tradefolio/src/utils"
)

// BackfillService seeds ledger records from the aggregation API's current
// open holdings. It covers positions whose opening trades predate the
// available order history: syncs alone would never materialize them.
type BackfillService struct {
	store      Store
	aggregator Aggregator
}

func NewBackfillService(store Store, aggregator Aggregator) *BackfillService {
	return &BackfillService{store: store, aggregator: aggregator}
}

// BackfillHoldings creates an OPEN record for every reported holding whose
// (account, contract) pair has no live ledger row yet. Holdings already
// represented are skipped, so repeated backfills create nothing new.
func (s *BackfillService) BackfillHoldings(ctx context.Context) (*models.SyncResult, error) {
	startedAt := time.Now()
	res := newResult("backfill", sources.SourceAggregator)
	err := s.backfillHoldings(ctx, res)

	if dbErr := database.RecordRun(res, startedAt, err); dbErr != nil {
		logger.L.Error("Failed to record run history", "runID", res.RunID, "error", dbErr)
	}
	return res, err
}

func (s *BackfillService) backfillHoldings(ctx context.Context, res *models.SyncResult) error {
	accounts, err := s.aggregator.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	existing, err := s.store.QueryAll(ctx, nil)
	if err != nil {
		return fmt.Errorf("backfill: loading existing ledger records: %w", err)
	}
	live := make(map[string]bool, len(existing))
	for i := range existing {
		live[reconcile.BaseKey(existing[i].Account, existing[i].ContractKey)] = true
	}

	for _, acct := range accounts {
		holdings, err := s.aggregator.ListOpenHoldings(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
		for i := range holdings {
			h := &holdings[i]
			res.Parsed++
			if live[reconcile.BaseKey(h.Account, h.ContractKey)] {
				res.Skipped++
				continue
			}
			res.Usable++

			rec := recordFromSnapshot(h)
			id, err := s.store.Create(ctx, &rec)
			if err != nil {
				return fmt.Errorf("backfill: creating record for %s: %w", h.ContractKey, err)
			}
			live[reconcile.BaseKey(h.Account, h.ContractKey)] = true
			res.Created++
			logger.L.Info("Backfilled holding", "runID", res.RunID, "id", id, "contract", h.ContractKey, "account", h.Account)
		}
	}
	return nil
}

// recordFromSnapshot maps a holding onto the ledger row shape. The true
// opening date is unknown; the snapshot date stands in so the row sorts
// sensibly and later syncs can move it earlier if real fills appear.
func recordFromSnapshot(h *models.PositionSnapshot) models.Record {
	qty := h.Qty
	if qty < 0 {
		qty = -qty
	}
	return models.Record{
		Ticker:      h.Ticker,
		ContractKey: h.ContractKey,
		Account:     h.Account,
		Source:      sources.SourceAggregator,
		Status:      models.StatusOpen,
		TradeType:   string(h.TradeType),
		Qty:         utils.RoundCents(qty),
		FillPrice:   utils.RoundCents(h.AvgPrice * h.Multiplier),
		OpenDate:    h.AsOf,
		LastAddDate: h.AsOf,
	}
}
