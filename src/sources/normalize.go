// Package sources holds the per-source adapters that turn raw broker
// records into normalized trade events. Each adapter owns its parsing
// quirks; everything downstream sees only models.TradeEvent.
package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/username/tradefolio/src/contract"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/utils"
)

// ParseStats reports how many raw rows a source produced and how many
// survived normalization. Malformed rows are dropped, not errors.
type ParseStats struct {
	Parsed int
	Usable int
}

// BuildDedupeKey hashes the immutable fields of one source row. Two rows
// with identical immutable fields are the same row seen twice; legitimate
// repeated trades differ in at least one field (time, net amount, row id).
func BuildDedupeKey(fields ...string) string {
	input := strings.Join(fields, "|")
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// MapActionCode maps a raw broker action code onto direction and, when the
// code carries it, explicit open/close intent. A CANCEL_ prefix inverts the
// mapped effect before classification: cancels of opens are closes and vice
// versa. Unrecognized codes report ok=false and the row is dropped.
func MapActionCode(code string) (models.Action, models.Effect, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	c = strings.ReplaceAll(c, " ", "_")

	inverted := false
	if strings.HasPrefix(c, "CANCEL_") {
		inverted = true
		c = strings.TrimPrefix(c, "CANCEL_")
	}

	var effect models.Effect
	switch c {
	case "BUY", "B", "BOT", "YOU_BOUGHT":
		if inverted {
			return models.ActionSell, models.EffectNone, true
		}
		return models.ActionBuy, models.EffectNone, true
	case "SELL", "S", "SLD", "YOU_SOLD":
		if inverted {
			return models.ActionBuy, models.EffectNone, true
		}
		return models.ActionSell, models.EffectNone, true
	case "BTO", "BUY_TO_OPEN", "BUY_OPEN":
		effect = models.EffectBuyToOpen
	case "STC", "SELL_TO_CLOSE", "SELL_CLOSE":
		effect = models.EffectSellToClose
	case "STO", "SELL_TO_OPEN", "SELL_OPEN":
		effect = models.EffectSellToOpen
	case "BTC", "BUY_TO_CLOSE", "BUY_CLOSE":
		effect = models.EffectBuyToClose
	default:
		return "", models.EffectNone, false
	}

	if inverted {
		effect = invertEffect(effect)
	}
	return actionOfEffect(effect), effect, true
}

func invertEffect(e models.Effect) models.Effect {
	switch e {
	case models.EffectBuyToOpen:
		return models.EffectSellToClose
	case models.EffectSellToClose:
		return models.EffectBuyToOpen
	case models.EffectSellToOpen:
		return models.EffectBuyToClose
	case models.EffectBuyToClose:
		return models.EffectSellToOpen
	}
	return e
}

func actionOfEffect(e models.Effect) models.Action {
	switch e {
	case models.EffectBuyToOpen, models.EffectBuyToClose:
		return models.ActionBuy
	default:
		return models.ActionSell
	}
}

// classify resolves the canonical contract key, ticker, trade type and
// multiplier for a raw symbol.
func classify(rawSymbol string) (key, ticker string, tradeType models.TradeType, multiplier float64) {
	if parts, ok := contract.ParseOption(rawSymbol); ok {
		tt := models.TradeTypeCall
		if parts.Right == 'P' {
			tt = models.TradeTypePut
		}
		return parts.Key(), parts.Ticker, tt, 100
	}
	t := contract.NormalizeTicker(rawSymbol)
	return t, t, models.TradeTypeStock, 1
}

// usable applies the normalizer-side drop policy: non-finite or
// non-positive quantity, or non-finite/negative price, excludes the event
// before it ever reaches the engine. A zero price is valid (worthless
// expiration).
func usable(ev *models.TradeEvent) bool {
	return ev.ContractKey != "" &&
		!ev.Date.IsZero() &&
		utils.IsUsableQty(ev.Qty) &&
		utils.IsUsablePrice(ev.Price)
}

// parseAmount parses a numeric field tolerating currency symbols, commas
// and surrounding parentheses for negatives.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "$")
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}
