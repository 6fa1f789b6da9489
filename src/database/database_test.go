package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) {
	t.Helper()
	InitDB(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() {
		DB.Close()
		DB = nil
	})
}

func event(source, key, dedupe string, d int) models.TradeEvent {
	return models.TradeEvent{
		Source:      source,
		Account:     "TAXABLE",
		Date:        time.Date(2026, time.April, d, 0, 0, 0, 0, time.UTC),
		Action:      models.ActionBuy,
		ContractKey: key,
		Ticker:      key,
		TradeType:   models.TradeTypeStock,
		Qty:         2,
		Price:       10,
		Multiplier:  1,
		DedupeKey:   dedupe,
	}
}

func TestInsertEventsCollapsesDuplicates(t *testing.T) {
	setupTestDB(t)

	batch := []models.TradeEvent{
		event("Public (CSV)", "NFLX", "k1", 1),
		event("Public (CSV)", "NFLX", "k2", 2),
	}
	inserted, duplicates, err := InsertEvents(batch)
	if err != nil {
		t.Fatalf("InsertEvents() error = %v", err)
	}
	if inserted != 2 || duplicates != 0 {
		t.Fatalf("first insert = %d/%d, want 2/0", inserted, duplicates)
	}

	// Re-importing the same file plus one new row.
	batch = append(batch, event("Public (CSV)", "NFLX", "k3", 3))
	inserted, duplicates, err = InsertEvents(batch)
	if err != nil {
		t.Fatalf("InsertEvents() error = %v", err)
	}
	if inserted != 1 || duplicates != 2 {
		t.Fatalf("second insert = %d/%d, want 1/2", inserted, duplicates)
	}

	// The same dedupe key from a different source is a distinct row.
	inserted, duplicates, err = InsertEvents([]models.TradeEvent{event("Fidelity", "NFLX", "k1", 1)})
	if err != nil {
		t.Fatalf("InsertEvents() error = %v", err)
	}
	if inserted != 1 || duplicates != 0 {
		t.Fatalf("cross-source insert = %d/%d, want 1/0", inserted, duplicates)
	}
}

func TestEventsBySourceRoundTrip(t *testing.T) {
	setupTestDB(t)

	ev := event("Public (CSV)", "NFLX", "k1", 17)
	ev.Time = "09:31:02"
	ev.Effect = models.EffectBuyToOpen
	if _, _, err := InsertEvents([]models.TradeEvent{ev}); err != nil {
		t.Fatalf("InsertEvents() error = %v", err)
	}

	got, err := EventsBySource("Public (CSV)")
	if err != nil {
		t.Fatalf("EventsBySource() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	out := got[0]
	if out.Source != ev.Source || out.Account != ev.Account || out.DedupeKey != ev.DedupeKey {
		t.Errorf("round trip event = %+v", out)
	}
	if !out.Date.Equal(ev.Date) || out.Time != ev.Time {
		t.Errorf("date/time = %v %q, want %v %q", out.Date, out.Time, ev.Date, ev.Time)
	}
	if out.Action != models.ActionBuy || out.Effect != models.EffectBuyToOpen || out.TradeType != models.TradeTypeStock {
		t.Errorf("typed fields = %v %v %v", out.Action, out.Effect, out.TradeType)
	}
	if out.Qty != 2 || out.Price != 10 || out.Multiplier != 1 {
		t.Errorf("numerics = %v %v %v", out.Qty, out.Price, out.Multiplier)
	}

	other, err := EventsBySource("Fidelity")
	if err != nil {
		t.Fatalf("EventsBySource() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("got %d events for empty source, want 0", len(other))
	}
}

func TestRecordRun(t *testing.T) {
	setupTestDB(t)

	res := &models.SyncResult{
		RunID: "run-1", Kind: "sync", Source: "SnapTrade",
		Parsed: 10, Usable: 9, Created: 3, Updated: 2, Archived: 1, Skipped: 3,
	}
	if err := RecordRun(res, time.Now().Add(-time.Minute), nil); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	var kind string
	var created int
	if err := DB.QueryRow(`SELECT kind, created FROM runs WHERE id = ?`, "run-1").Scan(&kind, &created); err != nil {
		t.Fatalf("querying run row: %v", err)
	}
	if kind != "sync" || created != 3 {
		t.Errorf("stored run = %q/%d, want sync/3", kind, created)
	}
}
