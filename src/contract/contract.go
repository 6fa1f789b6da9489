// Package contract normalizes the heterogeneous instrument and account
// identifiers reported by brokers into one comparable form. Every
// cross-source comparison in the reconciler goes through these keys.
package contract

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// OptionParts is a parsed canonical option identifier.
type OptionParts struct {
	Ticker       string // underlying, normalized
	Expiry       string // YYMMDD
	Right        byte   // 'C' or 'P'
	StrikeMillis int64  // strike in thousandths of a dollar
}

// Key renders the canonical option contract key, e.g. "NFLX 260417C00082000".
func (p OptionParts) Key() string {
	return fmt.Sprintf("%s %s%c%08d", p.Ticker, p.Expiry, p.Right, p.StrikeMillis)
}

// Strike returns the strike as a decimal dollar amount.
func (p OptionParts) Strike() float64 {
	return float64(p.StrikeMillis) / 1000
}

var (
	tickerCleanRe = regexp.MustCompile(`[^A-Z0-9.\-]`)
	optionRe      = regexp.MustCompile(`^([A-Z][A-Z0-9.\-]*?)\s*(\d{6})([CP])(\d+(?:\.\d+)?)$`)
)

// NormalizeTicker uppercases a symbol and strips everything except
// alphanumerics, '.' and '-'.
func NormalizeTicker(raw string) string {
	return tickerCleanRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "")
}

// ParseOption attempts to parse a raw broker option symbol. It accepts
// OCC-style keys ("NFLX 260417C00082000"), compact keys with whole-dollar or
// fractional strikes ("NFLX260417C82", "NFLX260417C82.5"), short-position
// '-' prefixes and arbitrary internal spacing or casing.
func ParseOption(raw string) (OptionParts, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "-")
	s = strings.Join(strings.Fields(s), " ")
	m := optionRe.FindStringSubmatch(s)
	if m == nil {
		return OptionParts{}, false
	}

	strikeStr := m[4]
	var millis int64
	if !strings.Contains(strikeStr, ".") && len(strikeStr) == 8 {
		// OCC encoding: already strike x 1000, zero padded.
		v, err := strconv.ParseInt(strikeStr, 10, 64)
		if err != nil {
			return OptionParts{}, false
		}
		millis = v
	} else {
		// Whole dollars, possibly fractional.
		v, err := strconv.ParseFloat(strikeStr, 64)
		if err != nil {
			return OptionParts{}, false
		}
		millis = int64(math.Round(v * 1000))
	}
	if millis <= 0 {
		return OptionParts{}, false
	}

	return OptionParts{
		Ticker:       NormalizeTicker(m[1]),
		Expiry:       m[2],
		Right:        m[3][0],
		StrikeMillis: millis,
	}, true
}

// CanonicalKey maps any raw broker symbol to its canonical contract key:
// the normalized option key when the symbol parses as an option, otherwise
// the bare normalized equity ticker.
func CanonicalKey(raw string) string {
	if parts, ok := ParseOption(raw); ok {
		return parts.Key()
	}
	return NormalizeTicker(raw)
}

// NormalizeAccount collapses broker-reported account labels onto one
// canonical label: case-insensitive, trimmed, alias-collapsed. Any label
// containing "ROTH" maps to "IRA ROTH" regardless of the alias table.
func NormalizeAccount(label string, aliases map[string]string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(label))
	if strings.Contains(cleaned, "ROTH") {
		return "IRA ROTH"
	}
	keys := make([]string, 0, len(aliases))
	for substr := range aliases {
		if substr != "" {
			keys = append(keys, substr)
		}
	}
	// Longer aliases match first so the most specific one wins; ties break
	// lexicographically so repeated runs normalize identically.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, substr := range keys {
		if strings.Contains(cleaned, strings.ToUpper(substr)) {
			return aliases[substr]
		}
	}
	return cleaned
}
