package sources

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/username/tradefolio/src/contract"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
)

// CSVImporter parses brokerage activity CSV exports. Expected columns (by
// header name, order-independent):
//
//	Date, Time, Settle Date, Account, Action, Symbol, Quantity, Price, Net Amount
//
// Time, Settle Date and Net Amount may be empty; everything else is
// required for a row to be usable.
type CSVImporter struct {
	label   string
	aliases map[string]string
}

func NewCSVImporter(label string, aliases map[string]string) *CSVImporter {
	return &CSVImporter{label: label, aliases: aliases}
}

func (p *CSVImporter) Label() string { return p.label }

func (p *CSVImporter) Parse(file io.Reader) ([]models.TradeEvent, ParseStats, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("csv importer: reading file: %w", err)
	}
	if len(rows) == 0 {
		return nil, ParseStats{}, fmt.Errorf("csv importer: empty file")
	}

	col := indexHeader(rows[0])
	for _, required := range []string{"date", "account", "action", "symbol", "quantity", "price"} {
		if _, ok := col[required]; !ok {
			return nil, ParseStats{}, fmt.Errorf("csv importer: missing required column %q", required)
		}
	}

	var events []models.TradeEvent
	stats := ParseStats{}
	for _, row := range rows[1:] {
		stats.Parsed++
		ev, ok := p.parseRow(row, col)
		if !ok {
			continue
		}
		stats.Usable++
		events = append(events, ev)
	}
	return events, stats, nil
}

func (p *CSVImporter) parseRow(row []string, col map[string]int) (models.TradeEvent, bool) {
	field := func(name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	date, err := time.Parse("2006-01-02", field("date"))
	if err != nil {
		// Exports from older app versions use US-style dates.
		date, err = time.Parse("01/02/2006", field("date"))
		if err != nil {
			logger.L.Debug("CSV importer: unparseable date, dropping row", "value", field("date"))
			return models.TradeEvent{}, false
		}
	}

	action, effect, ok := MapActionCode(field("action"))
	if !ok {
		logger.L.Debug("CSV importer: unrecognized action code, dropping row", "value", field("action"))
		return models.TradeEvent{}, false
	}

	qty, qtyOK := parseAmount(field("quantity"))
	price, priceOK := parseAmount(field("price"))
	if !qtyOK || !priceOK {
		return models.TradeEvent{}, false
	}
	if qty < 0 {
		qty = -qty
	}

	key, ticker, tradeType, multiplier := classify(field("symbol"))

	ev := models.TradeEvent{
		Source:      p.label,
		Account:     contract.NormalizeAccount(field("account"), p.aliases),
		Date:        date,
		Time:        field("time"),
		Action:      action,
		Effect:      effect,
		ContractKey: key,
		Ticker:      ticker,
		TradeType:   tradeType,
		Qty:         qty,
		Price:       price,
		Multiplier:  multiplier,
		DedupeKey: BuildDedupeKey(
			field("date"), field("settle date"), field("symbol"),
			field("action"), field("quantity"), field("price"), field("net amount"),
		),
	}
	if !usable(&ev) {
		return models.TradeEvent{}, false
	}
	return ev, true
}

func indexHeader(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return col
}
