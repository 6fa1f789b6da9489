package models

import "time"

// Action is the literal direction of the broker transaction, not the
// open/close intent.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Effect is the explicit open/close intent for option trades, when the
// source exposes it. Empty for equities and for sources that only report
// BUY/SELL.
type Effect string

const (
	EffectNone        Effect = ""
	EffectBuyToOpen   Effect = "BUY_TO_OPEN"
	EffectSellToClose Effect = "SELL_TO_CLOSE"
	EffectSellToOpen  Effect = "SELL_TO_OPEN"
	EffectBuyToClose  Effect = "BUY_TO_CLOSE"
)

// TradeType classifies the instrument.
type TradeType string

const (
	TradeTypeStock TradeType = "Stock"
	TradeTypeCall  TradeType = "Call"
	TradeTypePut   TradeType = "Put"
)

// Record status values in the ledger store.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// TradeEvent is one economic event for one contract on one date, after
// normalization. Every source adapter produces these; nothing downstream
// ever sees a raw broker row.
type TradeEvent struct {
	Source      string    `json:"source"`       // source label, e.g. "SnapTrade", "Public (CSV)"
	Account     string    `json:"account"`      // canonical account label
	Date        time.Time `json:"date"`         // calendar date, broker-local
	Time        string    `json:"time"`         // optional wall-clock time, display only
	Action      Action    `json:"action"`       // BUY or SELL
	Effect      Effect    `json:"effect"`       // open/close intent when the source exposes it
	ContractKey string    `json:"contract_key"` // canonical contract identifier
	Ticker      string    `json:"ticker"`       // underlying symbol, normalized
	TradeType   TradeType `json:"trade_type"`
	Qty         float64   `json:"qty"`        // absolute count; sign carried by Action/Effect
	Price       float64   `json:"price"`      // per-share/contract, not multiplied
	Multiplier  float64   `json:"multiplier"` // 100 for options, 1 for equities
	DedupeKey   string    `json:"dedupe_key"` // hash of immutable source-row fields
}

// PositionState is the lot-accounting accumulator for one episode of one
// (account, contract) pair.
type PositionState struct {
	Source      string
	Account     string
	ContractKey string
	Ticker      string
	TradeType   TradeType
	Multiplier  float64

	OpenQty      float64 // signed; positive long, negative short, 0 flat
	AvgOpenPrice float64 // weighted average of the currently open quantity only

	// Lifetime totals for the episode, independent of partial closes.
	TotalOpenedQty      float64
	TotalOpenedNotional float64
	TotalClosedQty      float64
	TotalClosedNotional float64

	RealizedPL float64 // accumulated at every closing fill

	OpenDate      time.Time // date of first opening event
	OpenTime      string    // display only
	LastAddDate   time.Time // date of the most recent opening fill
	CloseDate     time.Time // date OpenQty last returned to exactly 0
	CloseTime     string
	LastClosePrice float64 // price of the most recent closing fill
}

// IsClosed reports whether the episode has returned to flat.
func (p *PositionState) IsClosed() bool {
	return !p.CloseDate.IsZero()
}

// LifetimeAvgOpenPrice is the average entry price over all opening fills of
// the episode, used for display independent of partial closes.
func (p *PositionState) LifetimeAvgOpenPrice() float64 {
	if p.TotalOpenedQty <= 0 {
		return 0
	}
	return p.TotalOpenedNotional / p.TotalOpenedQty
}

// AvgClosePrice is the average exit price over all closing fills.
func (p *PositionState) AvgClosePrice() float64 {
	if p.TotalClosedQty <= 0 {
		return 0
	}
	return p.TotalClosedNotional / p.TotalClosedQty
}

// Record is one row of the external positions ledger. The Strategy and Tags
// fields are user-owned: the reconciler never overwrites them once set
// except by explicit merge.
type Record struct {
	ID          string
	Ticker      string
	ContractKey string
	Account     string
	Source      string
	Status      string // OPEN or CLOSED
	TradeType   string
	Qty         float64
	FillPrice   float64 // display-scaled by multiplier
	OpenDate    time.Time
	OpenTime    string
	LastAddDate time.Time
	CloseDate   time.Time
	CloseTime   string
	ClosePrice  float64
	RealizedPL  float64
	Strategy    string
	Tags        []string
	Archived    bool
}

// PositionSnapshot is an open holding reported by the aggregation API,
// used to seed positions whose opening trade predates the history window.
type PositionSnapshot struct {
	Account     string
	ContractKey string
	Ticker      string
	TradeType   TradeType
	Qty         float64 // signed
	AvgPrice    float64
	Multiplier  float64
	AsOf        time.Time
}

// BrokerAccount is one linked account at the aggregation API.
type BrokerAccount struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Brokerage string `json:"brokerage"`
}

// ManualStrategyTags carries user-entered classification across rebuilds.
type ManualStrategyTags struct {
	Strategy string
	Tags     []string
}

// SyncResult is the structured outcome of one orchestrator run.
type SyncResult struct {
	RunID      string `json:"run_id"`
	Kind       string `json:"kind"` // sync, rebuild, backfill, audit, import
	Source     string `json:"source,omitempty"`
	Parsed     int    `json:"parsed"`
	Usable     int    `json:"usable"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Archived   int    `json:"archived"`
	Skipped    int    `json:"skipped"`
	Mismatched int    `json:"mismatched"`
}
