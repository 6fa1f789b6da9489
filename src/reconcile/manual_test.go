package reconcile

import (
	"testing"
	"time"

	"github.com/username/tradefolio/src/models"
)

func classified(id string, open time.Time, strategy string, tags ...string) models.Record {
	r := stockRecord(id, "Public (CSV)", models.StatusClosed, 2, 10, open, day(10))
	r.Strategy = strategy
	r.Tags = tags
	return r
}

func TestManualIndexLookupMergesExactAndLoose(t *testing.T) {
	idx := BuildManualIndex([]models.Record{
		classified("a", day(1), "swing", "earnings"),
		classified("b", day(5), "", "hedge"),
	})

	// Exact hit on day 1 plus the contract-wide loose bucket.
	got := idx.Lookup("TAXABLE", "NFLX", day(1))
	if got.Strategy != "swing" {
		t.Errorf("Strategy = %q, want swing", got.Strategy)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "earnings" || got.Tags[1] != "hedge" {
		t.Errorf("Tags = %v, want union [earnings hedge]", got.Tags)
	}
}

func TestManualIndexLooseFallback(t *testing.T) {
	idx := BuildManualIndex([]models.Record{
		classified("a", day(1), "swing", "earnings"),
	})

	// Regenerated record whose open date shifted; only the loose key hits.
	got := idx.Lookup("TAXABLE", "NFLX", day(2))
	if got.Strategy != "swing" {
		t.Errorf("Strategy = %q, want swing via loose fallback", got.Strategy)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "earnings" {
		t.Errorf("Tags = %v, want [earnings]", got.Tags)
	}
}

func TestManualIndexIgnoresUnclassified(t *testing.T) {
	idx := BuildManualIndex([]models.Record{
		stockRecord("a", "Public (CSV)", models.StatusOpen, 2, 10, day(1), time.Time{}),
	})
	if idx.Len() != 0 {
		t.Errorf("Len = %d, want 0", idx.Len())
	}
	got := idx.Lookup("TAXABLE", "NFLX", day(1))
	if got.Strategy != "" || len(got.Tags) != 0 {
		t.Errorf("Lookup on empty index = %+v", got)
	}
}

func TestPlanRestoresManualClassificationOnCreate(t *testing.T) {
	r := newReconciler()
	manual := BuildManualIndex([]models.Record{
		classified("old", day(1), "swing", "earnings"),
	})

	plan := r.Plan([]models.PositionState{openStockState("Public (CSV)")}, nil, manual)
	if len(plan.Creates) != 1 {
		t.Fatalf("got %d creates, want 1", len(plan.Creates))
	}
	created := plan.Creates[0]
	if created.Strategy != "swing" || len(created.Tags) != 1 || created.Tags[0] != "earnings" {
		t.Errorf("classification not restored: strategy=%q tags=%v", created.Strategy, created.Tags)
	}
}
