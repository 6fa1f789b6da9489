// Package services holds the orchestrators that tie the source adapters,
// the position engine and the reconciler to the external ledger store.
package services

import (
	"context"
	"time"

	"github.com/username/tradefolio/src/ledger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/sources"
)

// Store is the ledger surface the orchestrators need. Satisfied by
// ledger.RecordStore; tests substitute an in-memory fake.
type Store interface {
	QueryAll(ctx context.Context, filter *ledger.Filter) ([]models.Record, error)
	Create(ctx context.Context, rec *models.Record) (string, error)
	Update(ctx context.Context, id string, rec *models.Record) error
	Archive(ctx context.Context, id string) error
}

// Aggregator is the brokerage-aggregation API surface. Satisfied by
// sources.AggregatorClient.
type Aggregator interface {
	ListAccounts(ctx context.Context) ([]models.BrokerAccount, error)
	ListOrders(ctx context.Context, accountID string, from, to time.Time) ([]models.TradeEvent, sources.ParseStats, error)
	ListOpenHoldings(ctx context.Context, accountID string) ([]models.PositionSnapshot, error)
}

// Notifier delivers the run report after an orchestrator finishes.
type Notifier interface {
	SendRunReport(result *models.SyncResult, runErr error) error
}
