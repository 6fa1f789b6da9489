// Package reconcile compares position states freshly computed from one
// source against the ledger rows that already exist from any source, and
// decides what to create, update, archive or leave alone. All decisions are
// gathered into a Plan first; nothing touches the store until the plan is
// executed, and executing the same plan inputs twice is a no-op.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/utils"
)

// closeDateToleranceDays absorbs reporting-timezone skew between sources
// when matching closed records.
const closeDateToleranceDays = 2

// RecordUpdate replaces the derived fields of an existing ledger row.
// User-owned fields (strategy, tags) are carried from the existing row,
// never from the candidate.
type RecordUpdate struct {
	ID     string
	Record models.Record
}

// ArchiveOp tombstones one ledger row.
type ArchiveOp struct {
	ID     string
	Reason string
}

// Plan is the computed set of store operations for one reconciliation run.
type Plan struct {
	Creates    []models.Record
	Updates    []RecordUpdate
	Archives   []ArchiveOp
	Skipped    int
	Mismatched int
}

type Reconciler struct {
	// priority lists source labels from highest to lowest; the live API
	// source comes first. Matching is case-insensitive on the label prefix
	// so "Public (CSV)" ranks as "Public".
	priority []string
	// cutoff is the date on or after which a higher-priority source
	// supersedes manually-imported open positions.
	cutoff time.Time
}

func NewReconciler(priority []string, cutoff time.Time) *Reconciler {
	return &Reconciler{priority: priority, cutoff: cutoff}
}

// Plan reconciles candidate states against the existing (non-archived)
// ledger rows. The manual index, when non-nil, supplies strategy/tags for
// newly created rows; updates always keep the existing row's user fields.
func (r *Reconciler) Plan(candidates []models.PositionState, existing []models.Record, manual *ManualIndex) *Plan {
	plan := &Plan{}

	orig := make(map[string]*models.Record, len(existing))
	work := make(map[string]*models.Record, len(existing))
	byFingerprint := make(map[string]string)
	byLoose := make(map[string]string)
	byBase := make(map[string][]string)
	claimed := make(map[string]bool)
	archived := make(map[string]string)

	for i := range existing {
		rec := &existing[i]
		if rec.Archived || rec.ID == "" {
			continue
		}
		cp := *rec
		orig[rec.ID] = rec
		work[rec.ID] = &cp
		byFingerprint[RecordFingerprint(rec)] = rec.ID
		if lf := LooseFingerprint(rec.ContractKey, rec.Account); lf != "" {
			// Keyed together with status so an open and a closed episode of
			// the same contract never collapse onto each other.
			byLoose[lf+"|"+rec.Status] = rec.ID
		}
		base := BaseKey(rec.Account, rec.ContractKey)
		byBase[base] = append(byBase[base], rec.ID)
	}

	for i := range candidates {
		st := &candidates[i]
		desired := RecordFromState(st)

		if id, ok := byFingerprint[StateFingerprint(st)]; ok && archived[id] == "" {
			claimed[id] = true
			applyDerived(work[id], &desired)
			continue
		}

		lf := LooseFingerprint(st.ContractKey, st.Account)
		if lf != "" {
			if id, ok := byLoose[lf+"|"+desired.Status]; ok && !claimed[id] && archived[id] == "" {
				claimed[id] = true
				plan.Mismatched++
				applyDerived(work[id], &desired)
				continue
			}
		}

		// A same-source row for this (account, contract) whose derived
		// fields drifted is this episode's row under new numbers: a
		// scale-in changes qty and fill price, a seeded holding carries a
		// placeholder open date. Adopt it instead of creating a second
		// live row next to it.
		if id := sameSourceBaseMatch(&desired, byBase, work, claimed, archived); id != "" {
			claimed[id] = true
			plan.Mismatched++
			applyDerived(work[id], &desired)
			continue
		}

		// Open-duplicate suppression: do not recreate a lower-priority open
		// position already superseded by a higher-priority record on or
		// after the cutoff. Recreating it would be archived again next run.
		if desired.Status == models.StatusOpen {
			if id := r.supersededBy(&desired, byBase, work, archived); id != "" {
				r.backfillOpenDate(work[id], desired.OpenDate)
				plan.Skipped++
				continue
			}
		}

		if manual != nil {
			m := manual.Lookup(desired.Account, desired.ContractKey, desired.OpenDate)
			desired.Strategy = m.Strategy
			desired.Tags = m.Tags
		}
		plan.Creates = append(plan.Creates, desired)
	}

	r.archiveClosedDuplicates(work, byBase, archived)
	r.archiveOpenDuplicates(work, byBase, archived)

	ids := make([]string, 0, len(work))
	for id := range work {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if reason := archived[id]; reason != "" {
			plan.Archives = append(plan.Archives, ArchiveOp{ID: id, Reason: reason})
			continue
		}
		if recordDiffers(orig[id], work[id]) {
			plan.Updates = append(plan.Updates, RecordUpdate{ID: id, Record: *work[id]})
		} else if claimed[id] {
			plan.Skipped++
		}
	}

	return plan
}

// sameSourceBaseMatch finds an unclaimed record sharing the candidate's
// base key, status and source label. When several episodes of the same
// contract are live, a matching open date picks the right one; otherwise
// the first unclaimed match wins.
func sameSourceBaseMatch(desired *models.Record, byBase map[string][]string, work map[string]*models.Record, claimed map[string]bool, archived map[string]string) string {
	var fallback string
	for _, id := range byBase[BaseKey(desired.Account, desired.ContractKey)] {
		if claimed[id] || archived[id] != "" {
			continue
		}
		rec := work[id]
		if rec.Status != desired.Status || !sameSourceLabel(rec.Source, desired.Source) {
			continue
		}
		if sameDate(rec.OpenDate, desired.OpenDate) {
			return id
		}
		if fallback == "" {
			fallback = id
		}
	}
	return fallback
}

// supersededBy returns the ID of a higher-priority record with the same
// base key whose activity falls on or after the cutoff date, or "".
func (r *Reconciler) supersededBy(desired *models.Record, byBase map[string][]string, work map[string]*models.Record, archived map[string]string) string {
	for _, id := range byBase[BaseKey(desired.Account, desired.ContractKey)] {
		if archived[id] != "" {
			continue
		}
		rec := work[id]
		if r.rank(rec.Source) >= r.rank(desired.Source) {
			continue
		}
		if r.onOrAfterCutoff(rec) {
			return id
		}
	}
	return ""
}

// archiveClosedDuplicates resolves pairs of closed records from different
// sources that describe the same position: same base key, close dates equal
// or within the tolerance window. The loser is archived; its open date, if
// strictly earlier, is backfilled onto the winner first so history is never
// lost with the duplicate row.
func (r *Reconciler) archiveClosedDuplicates(work map[string]*models.Record, byBase map[string][]string, archived map[string]string) {
	bases := sortedKeys(byBase)
	for _, base := range bases {
		ids := byBase[base]
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, b := work[ids[i]], work[ids[j]]
				if archived[a.ID] != "" || archived[b.ID] != "" {
					continue
				}
				if a.Status != models.StatusClosed || b.Status != models.StatusClosed {
					continue
				}
				if sameSourceLabel(a.Source, b.Source) {
					continue
				}
				if !utils.WithinDays(a.CloseDate, b.CloseDate, closeDateToleranceDays) {
					continue
				}
				winner, loser := r.chooseWinner(a, b)
				r.backfillOpenDate(winner, loser.OpenDate)
				archived[loser.ID] = "duplicate of " + winner.ID
				logger.L.Debug("Archiving closed duplicate",
					"loser", loser.ID, "winner", winner.ID, "contract", winner.ContractKey)
			}
		}
	}
}

// archiveOpenDuplicates applies the open-position rule: once a
// higher-priority source shows activity for a contract on or after the
// cutoff, a lower-priority open record for the same base key is stale
// history and is archived outright, after open-date backfill.
func (r *Reconciler) archiveOpenDuplicates(work map[string]*models.Record, byBase map[string][]string, archived map[string]string) {
	for _, base := range sortedKeys(byBase) {
		ids := byBase[base]
		for _, loserID := range ids {
			loser := work[loserID]
			if archived[loserID] != "" || loser.Status != models.StatusOpen {
				continue
			}
			for _, winnerID := range ids {
				if winnerID == loserID || archived[winnerID] != "" {
					continue
				}
				winner := work[winnerID]
				if r.rank(winner.Source) >= r.rank(loser.Source) {
					continue
				}
				if !r.onOrAfterCutoff(winner) {
					continue
				}
				r.backfillOpenDate(winner, loser.OpenDate)
				archived[loserID] = "superseded by " + winnerID
				break
			}
		}
	}
}

// chooseWinner picks the surviving record of a duplicate pair: larger total
// quantity first (more complete lot capture), then earlier open date
// (longer history), then the higher-priority source.
func (r *Reconciler) chooseWinner(a, b *models.Record) (winner, loser *models.Record) {
	if a.Qty != b.Qty {
		if a.Qty > b.Qty {
			return a, b
		}
		return b, a
	}
	if !a.OpenDate.IsZero() && !b.OpenDate.IsZero() && !a.OpenDate.Equal(b.OpenDate) {
		if a.OpenDate.Before(b.OpenDate) {
			return a, b
		}
		return b, a
	}
	if r.rank(a.Source) <= r.rank(b.Source) {
		return a, b
	}
	return b, a
}

func (r *Reconciler) backfillOpenDate(winner *models.Record, openDate time.Time) {
	if openDate.IsZero() || winner.OpenDate.IsZero() {
		return
	}
	if openDate.Before(winner.OpenDate) {
		winner.OpenDate = openDate
	}
}

// rank returns the priority index of a source label; lower is higher
// priority, unknown labels rank last. Matching ignores case and
// parenthetical suffixes so "Public (CSV)" ranks as "Public".
func (r *Reconciler) rank(source string) int {
	label := baseSourceLabel(source)
	for i, p := range r.priority {
		if baseSourceLabel(p) == label {
			return i
		}
	}
	return len(r.priority)
}

func (r *Reconciler) onOrAfterCutoff(rec *models.Record) bool {
	if r.cutoff.IsZero() {
		return true
	}
	for _, d := range []time.Time{rec.OpenDate, rec.LastAddDate, rec.CloseDate} {
		if !d.IsZero() && !d.Before(r.cutoff) {
			return true
		}
	}
	return false
}

// applyDerived copies the engine-derived fields of desired onto the working
// copy of an existing record, leaving identity and user-owned fields alone.
func applyDerived(rec *models.Record, desired *models.Record) {
	rec.Status = desired.Status
	rec.Qty = desired.Qty
	rec.FillPrice = desired.FillPrice
	rec.LastAddDate = desired.LastAddDate
	rec.CloseDate = desired.CloseDate
	rec.CloseTime = desired.CloseTime
	rec.ClosePrice = desired.ClosePrice
	rec.RealizedPL = desired.RealizedPL
	// Open date only ever moves earlier; later dates from a partial source
	// must not erase history.
	if !desired.OpenDate.IsZero() && (rec.OpenDate.IsZero() || desired.OpenDate.Before(rec.OpenDate)) {
		rec.OpenDate = desired.OpenDate
		rec.OpenTime = desired.OpenTime
	}
}

func recordDiffers(orig, work *models.Record) bool {
	return orig.Status != work.Status ||
		utils.RoundCents(orig.Qty) != utils.RoundCents(work.Qty) ||
		utils.RoundCents(orig.FillPrice) != utils.RoundCents(work.FillPrice) ||
		utils.RoundCents(orig.ClosePrice) != utils.RoundCents(work.ClosePrice) ||
		utils.RoundCents(orig.RealizedPL) != utils.RoundCents(work.RealizedPL) ||
		!sameDate(orig.OpenDate, work.OpenDate) ||
		!sameDate(orig.LastAddDate, work.LastAddDate) ||
		!sameDate(orig.CloseDate, work.CloseDate)
}

func sameDate(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	return utils.DateOnly(a).Equal(utils.DateOnly(b))
}

func sameSourceLabel(a, b string) bool {
	return baseSourceLabel(a) == baseSourceLabel(b)
}

// baseSourceLabel strips a parenthetical suffix and normalizes case:
// "Public (CSV)" -> "PUBLIC".
func baseSourceLabel(s string) string {
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
