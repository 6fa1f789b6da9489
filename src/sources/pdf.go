package sources

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/username/tradefolio/src/contract"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
)

// PDFImporter parses the activity section of a brokerage statement after
// text extraction. One trade per line:
//
//	04/17/2026 ROTH ACCT BUY TO OPEN 2 NFLX 260417C00082000 4.50 -900.00
//
// Lines that do not match the trade shape (headers, footers, totals) are
// skipped without counting as parse failures.
type PDFImporter struct {
	label   string
	aliases map[string]string
}

var pdfTradeRe = regexp.MustCompile(
	`^(\d{2}/\d{2}/\d{4})\s+(.+?)\s+(BUY TO OPEN|SELL TO CLOSE|SELL TO OPEN|BUY TO CLOSE|BUY|SELL)\s+([\d,.]+)\s+(\S+(?:\s\d{6}[CP]\d+)?)\s+([\d,.]+)\s+(-?[\d,.]+)\s*$`)

func NewPDFImporter(label string, aliases map[string]string) *PDFImporter {
	return &PDFImporter{label: label, aliases: aliases}
}

func (p *PDFImporter) Label() string { return p.label }

func (p *PDFImporter) Parse(file io.Reader) ([]models.TradeEvent, ParseStats, error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []models.TradeEvent
	stats := ParseStats{}
	for scanner.Scan() {
		m := pdfTradeRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		stats.Parsed++

		date, err := time.Parse("01/02/2006", m[1])
		if err != nil {
			continue
		}
		action, effect, ok := MapActionCode(m[3])
		if !ok {
			continue
		}
		qty, qtyOK := parseAmount(m[4])
		price, priceOK := parseAmount(m[6])
		if !qtyOK || !priceOK {
			continue
		}

		key, ticker, tradeType, multiplier := classify(m[5])

		ev := models.TradeEvent{
			Source:      p.label,
			Account:     contract.NormalizeAccount(m[2], p.aliases),
			Date:        date,
			Action:      action,
			Effect:      effect,
			ContractKey: key,
			Ticker:      ticker,
			TradeType:   tradeType,
			Qty:         qty,
			Price:       price,
			Multiplier:  multiplier,
			DedupeKey:   BuildDedupeKey(m[1], "", m[5], m[3], m[4], m[6], m[7]),
		}
		if !usable(&ev) {
			logger.L.Debug("PDF importer: dropping unusable trade line", "symbol", m[5])
			continue
		}
		stats.Usable++
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("pdf importer: reading statement text: %w", err)
	}
	return events, stats, nil
}
