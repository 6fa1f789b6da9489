package sources

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/username/tradefolio/src/contract"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
)

// Dialect identifies one broker's plain-text history dump format.
type Dialect string

const (
	DialectFidelity Dialect = "Fidelity"
	DialectSchwab   Dialect = "Schwab"
	DialectEtrade   Dialect = "E*TRADE"
)

// TextImporter parses the plain-text trade history dumps of three brokers.
// Each dialect is one line shape; anything that does not match is skipped.
//
//	Fidelity: 04/17/2026 ROTH IRA YOU BOUGHT NFLX260417C82 2 4.50
//	Schwab:   04/17/2026 Buy to Open NFLX 260417C00082000 2 $4.50 IRA ROTH
//	E*TRADE:  BOT +2 NFLX260417C82 @4.50 04/17/26 Individual
type TextImporter struct {
	dialect Dialect
	aliases map[string]string
}

var (
	fidelityRe = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4})\s+(.+?)\s+(YOU BOUGHT|YOU SOLD)\s+(\S+)\s+([\d,.]+)\s+\$?([\d,.]+)\s*$`)
	schwabRe   = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4})\s+(Buy to Open|Sell to Close|Sell to Open|Buy to Close|Buy|Sell)\s+(\S+(?:\s\d{6}[CP]\d+)?)\s+([\d,.]+)\s+\$?([\d,.]+)\s+(.+?)\s*$`)
	etradeRe   = regexp.MustCompile(`^(BOT|SLD)\s+([+-]?[\d,.]+)\s+(\S+)\s+@\$?([\d,.]+)\s+(\d{2}/\d{2}/\d{2})\s+(.+?)\s*$`)
)

func NewTextImporter(dialect Dialect, aliases map[string]string) *TextImporter {
	return &TextImporter{dialect: dialect, aliases: aliases}
}

func (p *TextImporter) Label() string { return string(p.dialect) }

func (p *TextImporter) Parse(file io.Reader) ([]models.TradeEvent, ParseStats, error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []models.TradeEvent
	stats := ParseStats{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev, matched, ok := p.parseLine(line)
		if !matched {
			continue
		}
		stats.Parsed++
		if !ok {
			logger.L.Debug("Text importer: dropping unusable line", "dialect", p.dialect, "line", line)
			continue
		}
		stats.Usable++
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("text importer (%s): reading history dump: %w", p.dialect, err)
	}
	return events, stats, nil
}

// parseLine returns the event, whether the line matched the dialect's trade
// shape at all, and whether the matched line was usable.
func (p *TextImporter) parseLine(line string) (models.TradeEvent, bool, bool) {
	switch p.dialect {
	case DialectFidelity:
		m := fidelityRe.FindStringSubmatch(line)
		if m == nil {
			return models.TradeEvent{}, false, false
		}
		return p.build(m[1], "01/02/2006", m[2], m[3], m[4], m[5], m[6], line)
	case DialectSchwab:
		m := schwabRe.FindStringSubmatch(line)
		if m == nil {
			return models.TradeEvent{}, false, false
		}
		return p.build(m[1], "01/02/2006", m[6], m[2], m[3], m[4], m[5], line)
	case DialectEtrade:
		m := etradeRe.FindStringSubmatch(line)
		if m == nil {
			return models.TradeEvent{}, false, false
		}
		return p.build(m[5], "01/02/06", m[6], m[1], m[3], m[2], m[4], line)
	}
	return models.TradeEvent{}, false, false
}

func (p *TextImporter) build(dateStr, dateLayout, account, actionCode, symbol, qtyStr, priceStr, raw string) (models.TradeEvent, bool, bool) {
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return models.TradeEvent{}, true, false
	}
	action, effect, ok := MapActionCode(actionCode)
	if !ok {
		return models.TradeEvent{}, true, false
	}
	qty, qtyOK := parseAmount(qtyStr)
	price, priceOK := parseAmount(priceStr)
	if !qtyOK || !priceOK {
		return models.TradeEvent{}, true, false
	}
	if qty < 0 {
		qty = -qty
	}

	key, ticker, tradeType, multiplier := classify(symbol)

	ev := models.TradeEvent{
		Source:      p.Label(),
		Account:     contract.NormalizeAccount(account, p.aliases),
		Date:        date,
		Action:      action,
		Effect:      effect,
		ContractKey: key,
		Ticker:      ticker,
		TradeType:   tradeType,
		Qty:         qty,
		Price:       price,
		Multiplier:  multiplier,
		DedupeKey:   BuildDedupeKey(string(p.dialect), raw),
	}
	if !usable(&ev) {
		return models.TradeEvent{}, true, false
	}
	return ev, true, true
}
