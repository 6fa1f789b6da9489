// Package engine turns a date-ordered stream of trade events for one
// (account, contract) pair into position episodes: open quantity, weighted
// average cost, realized P/L and open/close dates. One parametrized engine
// replaces the per-broker accounting variants; the model flag selects how
// open/close intent is derived from each event.
package engine

import (
	"sort"
	"time"

	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/utils"
)

// Model selects how an event's open/close intent is derived.
type Model int

const (
	// ModelDirection derives intent from BUY/SELL against the current net
	// position. Used for equities and for sources that only expose the
	// trade direction. An oversized closing fill flips into a fresh lot on
	// the opposite side.
	ModelDirection Model = iota
	// ModelIntent uses the explicit BTO/STC/STO/BTC effect carried by the
	// source. Closes are capped at the currently open opposite quantity;
	// excess is dropped rather than flipped, because explicit close intent
	// must never fabricate a new position.
	ModelIntent
)

type PositionBuilder struct {
	model Model
}

func NewPositionBuilder(model Model) *PositionBuilder {
	return &PositionBuilder{model: model}
}

// Build groups events by (account, contract key), orders each group
// chronologically and runs the accumulator. A position that returns to
// exactly flat and later sees another opening event starts a new episode,
// so one contract can yield several PositionStates over time.
//
// Degenerate groups (no opening volume observed, e.g. a close with no
// recorded open) produce no state.
func (b *PositionBuilder) Build(events []models.TradeEvent) []models.PositionState {
	grouped := groupByPosition(events)

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var states []models.PositionState
	for _, k := range keys {
		group := grouped[k]
		sortEvents(group)
		states = append(states, b.buildGroup(group)...)
	}
	return states
}

func (b *PositionBuilder) buildGroup(events []models.TradeEvent) []models.PositionState {
	var done []models.PositionState
	var cur *models.PositionState

	for i := range events {
		ev := &events[i]

		// Episode split: a fully closed state followed by an opening event
		// starts a fresh accumulator.
		if cur != nil && cur.IsClosed() && utils.IsFlat(cur.OpenQty) && b.opens(cur, ev) {
			done = append(done, *cur)
			cur = nil
		}
		if cur == nil {
			cur = newState(ev)
		}

		switch b.model {
		case ModelIntent:
			b.applyIntent(cur, ev)
		default:
			b.applyDirection(cur, ev)
		}
	}

	if cur != nil {
		done = append(done, *cur)
	}

	// Drop degenerate episodes: nothing ever opened.
	materialized := done[:0]
	for _, st := range done {
		if st.TotalOpenedQty <= 0 || st.OpenDate.IsZero() {
			continue
		}
		materialized = append(materialized, st)
	}
	return materialized
}

// opens reports whether an event would open or add exposure given the
// current (flat) state. Used only for episode splitting.
func (b *PositionBuilder) opens(p *models.PositionState, ev *models.TradeEvent) bool {
	if b.model == ModelIntent && ev.Effect != models.EffectNone {
		return ev.Effect == models.EffectBuyToOpen || ev.Effect == models.EffectSellToOpen
	}
	// Direction model: while flat, both BUY and SELL open exposure.
	return true
}

func newState(ev *models.TradeEvent) *models.PositionState {
	return &models.PositionState{
		Source:      ev.Source,
		Account:     ev.Account,
		ContractKey: ev.ContractKey,
		Ticker:      ev.Ticker,
		TradeType:   ev.TradeType,
		Multiplier:  ev.Multiplier,
	}
}

// applyDirection implements the direction-based model: BUY extends a long
// or covers a short, SELL extends a short or closes a long, with any
// oversized closing remainder flipping into a fresh lot on the other side.
func (b *PositionBuilder) applyDirection(p *models.PositionState, ev *models.TradeEvent) {
	qty := ev.Qty
	if ev.Action == models.ActionBuy {
		if p.OpenQty >= -utils.FlatEpsilon {
			b.open(p, ev, qty, +1)
			return
		}
		closed := utils.MinFloat(qty, -p.OpenQty)
		b.closeAgainstShort(p, ev, closed)
		if remainder := qty - closed; remainder > utils.FlatEpsilon {
			b.flip(p, ev, remainder, +1)
		}
		return
	}

	// SELL mirrors BUY.
	if p.OpenQty <= utils.FlatEpsilon {
		b.open(p, ev, qty, -1)
		return
	}
	closed := utils.MinFloat(qty, p.OpenQty)
	b.closeAgainstLong(p, ev, closed)
	if remainder := qty - closed; remainder > utils.FlatEpsilon {
		b.flip(p, ev, remainder, -1)
	}
}

// applyIntent implements the explicit-intent model. Events whose effect
// does not match the current state (a close with nothing open, an open
// against an existing opposite position) are dropped; partial histories
// make these expected, not errors.
func (b *PositionBuilder) applyIntent(p *models.PositionState, ev *models.TradeEvent) {
	switch ev.Effect {
	case models.EffectBuyToOpen:
		if p.OpenQty >= -utils.FlatEpsilon {
			b.open(p, ev, ev.Qty, +1)
		}
	case models.EffectSellToOpen:
		if p.OpenQty <= utils.FlatEpsilon {
			b.open(p, ev, ev.Qty, -1)
		}
	case models.EffectSellToClose:
		if p.OpenQty > utils.FlatEpsilon {
			b.closeAgainstLong(p, ev, utils.MinFloat(ev.Qty, p.OpenQty))
		}
	case models.EffectBuyToClose:
		if p.OpenQty < -utils.FlatEpsilon {
			b.closeAgainstShort(p, ev, utils.MinFloat(ev.Qty, -p.OpenQty))
		}
	default:
		// Source promised explicit intent but this row has none; fall back
		// to the direction rules for it.
		b.applyDirection(p, ev)
	}
}

// open adds qty to the side given by sign (+1 long, -1 short), reweighting
// the average entry price of the currently open quantity.
func (b *PositionBuilder) open(p *models.PositionState, ev *models.TradeEvent, qty float64, sign float64) {
	openAbs := utils.AbsFloat(p.OpenQty)
	p.AvgOpenPrice = (openAbs*p.AvgOpenPrice + qty*ev.Price) / (openAbs + qty)
	p.OpenQty += sign * qty

	p.TotalOpenedQty += qty
	p.TotalOpenedNotional += qty * ev.Price

	if p.OpenDate.IsZero() {
		p.OpenDate = ev.Date
		p.OpenTime = ev.Time
	}
	p.LastAddDate = ev.Date
	p.CloseDate = time.Time{}
	p.CloseTime = ""
}

// flip resets the open side after an oversized closing fill: the remainder
// starts a fresh lot at the fill price with a new open date. Lifetime
// totals keep accumulating; the ledger treats this as the same record.
func (b *PositionBuilder) flip(p *models.PositionState, ev *models.TradeEvent, qty float64, sign float64) {
	p.OpenQty = sign * qty
	p.AvgOpenPrice = ev.Price

	p.TotalOpenedQty += qty
	p.TotalOpenedNotional += qty * ev.Price

	p.OpenDate = ev.Date
	p.OpenTime = ev.Time
	p.LastAddDate = ev.Date
	p.CloseDate = time.Time{}
	p.CloseTime = ""
}

// closeAgainstLong realizes (closePrice - avgOpenPrice) * qty * multiplier.
func (b *PositionBuilder) closeAgainstLong(p *models.PositionState, ev *models.TradeEvent, qty float64) {
	p.RealizedPL += (ev.Price - p.AvgOpenPrice) * qty * p.Multiplier
	p.OpenQty -= qty
	b.recordClose(p, ev, qty)
}

// closeAgainstShort realizes (avgOpenPrice - closePrice) * qty * multiplier.
func (b *PositionBuilder) closeAgainstShort(p *models.PositionState, ev *models.TradeEvent, qty float64) {
	p.RealizedPL += (p.AvgOpenPrice - ev.Price) * qty * p.Multiplier
	p.OpenQty += qty
	b.recordClose(p, ev, qty)
}

func (b *PositionBuilder) recordClose(p *models.PositionState, ev *models.TradeEvent, qty float64) {
	p.TotalClosedQty += qty
	p.TotalClosedNotional += qty * ev.Price
	p.LastClosePrice = ev.Price

	if utils.IsFlat(p.OpenQty) {
		p.OpenQty = 0
		p.AvgOpenPrice = 0
		p.CloseDate = ev.Date
		p.CloseTime = ev.Time
	}
}

func groupByPosition(events []models.TradeEvent) map[string][]models.TradeEvent {
	grouped := make(map[string][]models.TradeEvent)
	for _, ev := range events {
		if ev.ContractKey == "" {
			continue
		}
		key := ev.Account + "|" + ev.ContractKey
		grouped[key] = append(grouped[key], ev)
	}
	return grouped
}

// sortEvents orders a group chronologically with a stable secondary key so
// same-day events replay identically across runs.
func sortEvents(events []models.TradeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := &events[i], &events[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.Action != b.Action {
			return a.Action < b.Action
		}
		return a.DedupeKey < b.DedupeKey
	})
}
