package engine

import (
	"math"
	"testing"
	"time"

	"github.com/username/tradefolio/src/models"
)

func day(d int) time.Time {
	return time.Date(2026, time.April, d, 0, 0, 0, 0, time.UTC)
}

func stockEvent(d int, action models.Action, qty, price float64, key string) models.TradeEvent {
	return models.TradeEvent{
		Source:      "Public (CSV)",
		Account:     "TAXABLE",
		Date:        day(d),
		Action:      action,
		ContractKey: "NFLX",
		Ticker:      "NFLX",
		TradeType:   models.TradeTypeStock,
		Qty:         qty,
		Price:       price,
		Multiplier:  1,
		DedupeKey:   key,
	}
}

func optionEvent(d int, effect models.Effect, qty, price float64, key string) models.TradeEvent {
	action := models.ActionSell
	if effect == models.EffectBuyToOpen || effect == models.EffectBuyToClose {
		action = models.ActionBuy
	}
	return models.TradeEvent{
		Source:      "SnapTrade",
		Account:     "IRA ROTH",
		Date:        day(d),
		Action:      action,
		Effect:      effect,
		ContractKey: "NFLX 260417C00082000",
		Ticker:      "NFLX",
		TradeType:   models.TradeTypeCall,
		Qty:         qty,
		Price:       price,
		Multiplier:  100,
		DedupeKey:   key,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestDirectionModelAveragesAndRealizes(t *testing.T) {
	events := []models.TradeEvent{
		stockEvent(1, models.ActionBuy, 2, 10, "a"),
		stockEvent(2, models.ActionBuy, 2, 20, "b"),
		stockEvent(3, models.ActionSell, 1, 18, "c"),
	}
	states := NewPositionBuilder(ModelDirection).Build(events)
	if len(states) != 1 {
		t.Fatalf("got %d states, want 1", len(states))
	}
	st := states[0]
	if !almostEqual(st.AvgOpenPrice, 15) {
		t.Errorf("AvgOpenPrice = %v, want 15", st.AvgOpenPrice)
	}
	if !almostEqual(st.OpenQty, 3) {
		t.Errorf("OpenQty = %v, want 3", st.OpenQty)
	}
	if !almostEqual(st.RealizedPL, 3) {
		t.Errorf("RealizedPL = %v, want 3", st.RealizedPL)
	}
	if st.IsClosed() {
		t.Error("state should still be open")
	}
	if !st.OpenDate.Equal(day(1)) || !st.LastAddDate.Equal(day(2)) {
		t.Errorf("dates = %v / %v, want day 1 / day 2", st.OpenDate, st.LastAddDate)
	}
}

func TestDirectionModelOversizedSellFlipsToShort(t *testing.T) {
	events := []models.TradeEvent{
		stockEvent(1, models.ActionBuy, 6, 30, "a"),
		stockEvent(2, models.ActionSell, 10, 40, "b"),
	}
	states := NewPositionBuilder(ModelDirection).Build(events)
	if len(states) != 1 {
		t.Fatalf("got %d states, want 1", len(states))
	}
	st := states[0]
	if !almostEqual(st.RealizedPL, 60) {
		t.Errorf("RealizedPL = %v, want 60", st.RealizedPL)
	}
	if !almostEqual(st.OpenQty, -4) {
		t.Errorf("OpenQty = %v, want -4", st.OpenQty)
	}
	if !almostEqual(st.AvgOpenPrice, 40) {
		t.Errorf("AvgOpenPrice = %v, want 40", st.AvgOpenPrice)
	}
	// The remainder lot opens fresh on the flip date.
	if !st.OpenDate.Equal(day(2)) {
		t.Errorf("OpenDate = %v, want day 2", st.OpenDate)
	}
	if st.IsClosed() {
		t.Error("flipped lot should be open")
	}
	if !almostEqual(st.TotalOpenedQty, 10) {
		t.Errorf("TotalOpenedQty = %v, want 10", st.TotalOpenedQty)
	}
}

func TestDirectionModelOversizedBuyCoversShortAndFlips(t *testing.T) {
	events := []models.TradeEvent{
		stockEvent(1, models.ActionSell, 6, 50, "a"),
		stockEvent(2, models.ActionBuy, 10, 40, "b"),
	}
	states := NewPositionBuilder(ModelDirection).Build(events)
	if len(states) != 1 {
		t.Fatalf("got %d states, want 1", len(states))
	}
	st := states[0]
	if !almostEqual(st.RealizedPL, 60) {
		t.Errorf("RealizedPL = %v, want 60", st.RealizedPL)
	}
	if !almostEqual(st.OpenQty, 4) {
		t.Errorf("OpenQty = %v, want 4", st.OpenQty)
	}
	if !almostEqual(st.AvgOpenPrice, 40) {
		t.Errorf("AvgOpenPrice = %v, want 40", st.AvgOpenPrice)
	}
	if !st.OpenDate.Equal(day(2)) {
		t.Errorf("OpenDate = %v, want the flip date", st.OpenDate)
	}
}

func TestDirectionModelFullLifecycle(t *testing.T) {
	events := []models.TradeEvent{
		stockEvent(2, models.ActionBuy, 10, 5, "a"),
		stockEvent(10, models.ActionSell, 4, 8, "b"),
		stockEvent(20, models.ActionSell, 6, 9, "c"),
	}
	states := NewPositionBuilder(ModelDirection).Build(events)
	if len(states) != 1 {
		t.Fatalf("got %d states, want 1", len(states))
	}
	st := states[0]
	if !almostEqual(st.RealizedPL, 36) {
		t.Errorf("RealizedPL = %v, want 36", st.RealizedPL)
	}
	if !almostEqual(st.OpenQty, 0) {
		t.Errorf("OpenQty = %v, want 0", st.OpenQty)
	}
	if !st.IsClosed() || !st.CloseDate.Equal(day(20)) {
		t.Errorf("CloseDate = %v, want day 20", st.CloseDate)
	}
	if !almostEqual(st.LifetimeAvgOpenPrice(), 5) {
		t.Errorf("LifetimeAvgOpenPrice = %v, want 5", st.LifetimeAvgOpenPrice())
	}
	if !almostEqual(st.AvgClosePrice(), 8.6) {
		t.Errorf("AvgClosePrice = %v, want 8.6", st.AvgClosePrice())
	}
}

func TestIntentModelCapsOversizedClose(t *testing.T) {
	events := []models.TradeEvent{
		optionEvent(1, models.EffectBuyToOpen, 2, 1.00, "a"),
		optionEvent(2, models.EffectSellToClose, 5, 2.00, "b"),
	}
	states := NewPositionBuilder(ModelIntent).Build(events)
	if len(states) != 1 {
		t.Fatalf("got %d states, want 1", len(states))
	}
	st := states[0]
	if !almostEqual(st.RealizedPL, 200) {
		t.Errorf("RealizedPL = %v, want 200", st.RealizedPL)
	}
	if !almostEqual(st.OpenQty, 0) {
		t.Errorf("OpenQty = %v, want 0", st.OpenQty)
	}
	if !st.IsClosed() || !st.CloseDate.Equal(day(2)) {
		t.Errorf("CloseDate = %v, want day 2", st.CloseDate)
	}
	// The excess must not flip into a short.
	if !almostEqual(st.TotalOpenedQty, 2) {
		t.Errorf("TotalOpenedQty = %v, want 2", st.TotalOpenedQty)
	}
}

func TestIntentModelDropsCloseWithNoOpen(t *testing.T) {
	events := []models.TradeEvent{
		optionEvent(1, models.EffectSellToClose, 2, 2.00, "a"),
	}
	states := NewPositionBuilder(ModelIntent).Build(events)
	if len(states) != 0 {
		t.Fatalf("got %d states, want 0 (degenerate episode)", len(states))
	}
}

func TestIntentModelShortRoundTrip(t *testing.T) {
	events := []models.TradeEvent{
		optionEvent(1, models.EffectSellToOpen, 1, 3.00, "a"),
		optionEvent(5, models.EffectBuyToClose, 1, 1.25, "b"),
	}
	states := NewPositionBuilder(ModelIntent).Build(events)
	if len(states) != 1 {
		t.Fatalf("got %d states, want 1", len(states))
	}
	st := states[0]
	if !almostEqual(st.RealizedPL, 175) {
		t.Errorf("RealizedPL = %v, want 175", st.RealizedPL)
	}
	if !st.IsClosed() {
		t.Error("short round trip should be closed")
	}
	if !almostEqual(st.AvgClosePrice(), 1.25) {
		t.Errorf("AvgClosePrice = %v, want 1.25", st.AvgClosePrice())
	}
}

func TestEpisodeSplitOnReopen(t *testing.T) {
	events := []models.TradeEvent{
		stockEvent(1, models.ActionBuy, 1, 10, "a"),
		stockEvent(2, models.ActionSell, 1, 12, "b"),
		stockEvent(3, models.ActionBuy, 2, 11, "c"),
	}
	states := NewPositionBuilder(ModelDirection).Build(events)
	if len(states) != 2 {
		t.Fatalf("got %d states, want 2 episodes", len(states))
	}
	first, second := states[0], states[1]
	if !first.IsClosed() || !almostEqual(first.RealizedPL, 2) {
		t.Errorf("first episode closed=%v PL=%v, want closed with PL 2", first.IsClosed(), first.RealizedPL)
	}
	if second.IsClosed() || !almostEqual(second.OpenQty, 2) {
		t.Errorf("second episode closed=%v qty=%v, want open with qty 2", second.IsClosed(), second.OpenQty)
	}
	if !second.OpenDate.Equal(day(3)) {
		t.Errorf("second episode OpenDate = %v, want day 3", second.OpenDate)
	}
}

func TestBuildIsOrderIndependent(t *testing.T) {
	forward := []models.TradeEvent{
		stockEvent(1, models.ActionBuy, 2, 10, "a"),
		stockEvent(1, models.ActionBuy, 3, 12, "b"),
		stockEvent(2, models.ActionSell, 4, 15, "c"),
	}
	reversed := []models.TradeEvent{forward[2], forward[0], forward[1]}

	a := NewPositionBuilder(ModelDirection).Build(forward)
	b := NewPositionBuilder(ModelDirection).Build(reversed)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("got %d and %d states, want 1 each", len(a), len(b))
	}
	if !almostEqual(a[0].RealizedPL, b[0].RealizedPL) ||
		!almostEqual(a[0].OpenQty, b[0].OpenQty) ||
		!almostEqual(a[0].AvgOpenPrice, b[0].AvgOpenPrice) ||
		!a[0].OpenDate.Equal(b[0].OpenDate) {
		t.Errorf("replay diverged:\n%+v\n%+v", a[0], b[0])
	}
}
