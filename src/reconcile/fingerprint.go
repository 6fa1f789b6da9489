package reconcile

import (
	"fmt"
	"strings"

	"github.com/username/tradefolio/src/contract"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/utils"
)

// Fingerprint is the exact duplicate-detection key: two records from
// different sources with equal fingerprints represent the same economic
// position and only one should survive. Source labels are deliberately
// excluded so "Public" and "Public (CSV)" collide.
func Fingerprint(contractKey, account string, openDate string, qty, fillPrice float64) string {
	return strings.Join([]string{
		contractKey,
		strings.ToUpper(strings.TrimSpace(account)),
		openDate,
		fmt.Sprintf("%.2f", utils.RoundCents(qty)),
		fmt.Sprintf("%.2f", utils.RoundCents(fillPrice)),
	}, "|")
}

// RecordFingerprint computes the exact fingerprint of a ledger record.
func RecordFingerprint(rec *models.Record) string {
	return Fingerprint(rec.ContractKey, rec.Account, utils.FormatISODate(rec.OpenDate), rec.Qty, rec.FillPrice)
}

// StateFingerprint computes the exact fingerprint of a freshly built
// position state, using the same display scaling the ledger row carries.
func StateFingerprint(st *models.PositionState) string {
	return Fingerprint(st.ContractKey, st.Account, utils.FormatISODate(st.OpenDate),
		displayQty(st), displayFillPrice(st))
}

// LooseFingerprint is the secondary option key used when exact contract
// string formatting differs across sources: account, underlying, expiry,
// call/put, strike as a decimal. Returns "" for non-option keys.
func LooseFingerprint(contractKey, account string) string {
	parts, ok := contract.ParseOption(contractKey)
	if !ok {
		return ""
	}
	return strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(account)),
		parts.Ticker,
		parts.Expiry,
		string(parts.Right),
		strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", parts.Strike()), "0"), "."),
	}, "|")
}

// BaseKey identifies one (account, contract) pair independent of episode.
func BaseKey(account, contractKey string) string {
	return strings.ToUpper(strings.TrimSpace(account)) + "|" + contractKey
}

func displayQty(st *models.PositionState) float64 {
	return utils.RoundCents(st.TotalOpenedQty)
}

// displayFillPrice is the lifetime average entry price scaled by the
// contract multiplier, matching the ledger's display convention.
func displayFillPrice(st *models.PositionState) float64 {
	return utils.RoundCents(st.LifetimeAvgOpenPrice() * st.Multiplier)
}
