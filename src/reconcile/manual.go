package reconcile

import (
	"time"

	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/utils"
)

// ManualIndex carries user-entered strategy/tags across destructive
// rebuilds. Entries are keyed by (account, contract key, open date) with a
// looser fallback key lacking the open date, so a regenerated record whose
// open date shifted slightly still recovers its classification.
type ManualIndex struct {
	exact map[string]models.ManualStrategyTags
	loose map[string]models.ManualStrategyTags
}

func NewManualIndex() *ManualIndex {
	return &ManualIndex{
		exact: make(map[string]models.ManualStrategyTags),
		loose: make(map[string]models.ManualStrategyTags),
	}
}

// BuildManualIndex extracts strategy/tags from every record where at least
// one of the two is set. Must run before any archive-all-then-recreate.
func BuildManualIndex(records []models.Record) *ManualIndex {
	idx := NewManualIndex()
	for i := range records {
		rec := &records[i]
		if rec.Strategy == "" && len(rec.Tags) == 0 {
			continue
		}
		entry := models.ManualStrategyTags{Strategy: rec.Strategy, Tags: rec.Tags}
		idx.add(idx.exact, manualKey(rec.Account, rec.ContractKey, rec.OpenDate), entry)
		idx.add(idx.loose, manualKey(rec.Account, rec.ContractKey, time.Time{}), entry)
	}
	return idx
}

// add merges an entry into a bucket: tag sets union, first non-empty
// strategy wins.
func (m *ManualIndex) add(bucket map[string]models.ManualStrategyTags, key string, entry models.ManualStrategyTags) {
	existing, ok := bucket[key]
	if !ok {
		bucket[key] = models.ManualStrategyTags{Strategy: entry.Strategy, Tags: unionTags(nil, entry.Tags)}
		return
	}
	if existing.Strategy == "" {
		existing.Strategy = entry.Strategy
	}
	existing.Tags = unionTags(existing.Tags, entry.Tags)
	bucket[key] = existing
}

// Lookup returns the classification for a regenerated record, merging an
// exact-date hit with a same-contract loose hit: the union of both tag
// sets, and the first non-empty strategy with the exact match preferred.
func (m *ManualIndex) Lookup(account, contractKey string, openDate time.Time) models.ManualStrategyTags {
	exact := m.exact[manualKey(account, contractKey, openDate)]
	loose := m.loose[manualKey(account, contractKey, time.Time{})]

	merged := models.ManualStrategyTags{Strategy: exact.Strategy}
	if merged.Strategy == "" {
		merged.Strategy = loose.Strategy
	}
	merged.Tags = unionTags(exact.Tags, loose.Tags)
	return merged
}

// Len reports how many exact-keyed entries the index holds.
func (m *ManualIndex) Len() int {
	return len(m.exact)
}

func manualKey(account, contractKey string, openDate time.Time) string {
	return BaseKey(account, contractKey) + "|" + utils.FormatISODate(openDate)
}

// unionTags merges two tag lists preserving first-seen order.
func unionTags(a, b []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tags := range [][]string{a, b} {
		for _, t := range tags {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
