// Package database owns the local sqlite store of normalized trade events
// and run history. Source rows are inserted with a UNIQUE dedupe key so
// re-importing the same file or overlapping API windows collapses exact
// duplicates; the engine always rebuilds positions from the full stored
// event history for a source.
package database

import (
	"database/sql"
	"fmt"
	stdlog "log"
	"strings"
	"time"

	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/utils"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS trade_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		account TEXT NOT NULL,
		date TEXT NOT NULL,
		time TEXT,
		action TEXT NOT NULL,
		effect TEXT,
		contract_key TEXT NOT NULL,
		ticker TEXT NOT NULL,
		trade_type TEXT NOT NULL,
		qty REAL NOT NULL,
		price REAL NOT NULL,
		multiplier REAL NOT NULL,
		dedupe_key TEXT NOT NULL,
		imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source, dedupe_key)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		parsed INTEGER DEFAULT 0,
		usable INTEGER DEFAULT 0,
		created INTEGER DEFAULT 0,
		updated INTEGER DEFAULT 0,
		archived INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		mismatched INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_trade_events_source ON trade_events(source);
	CREATE INDEX IF NOT EXISTS idx_trade_events_contract ON trade_events(account, contract_key);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.", "path", databasePath)
	}
}

// InsertEvents stores normalized events, skipping rows whose dedupe key was
// already recorded for the source. Returns how many were inserted and how
// many collapsed as exact duplicates.
func InsertEvents(events []models.TradeEvent) (inserted, duplicates int, err error) {
	if len(events) == 0 {
		return 0, 0, nil
	}

	dbTx, err := DB.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("beginning event insert transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO trade_events
		(source, account, date, time, action, effect, contract_key, ticker, trade_type, qty, price, multiplier, dedupe_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing event insert statement: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		ev := &events[i]
		_, execErr := stmt.Exec(
			ev.Source, ev.Account, utils.FormatISODate(ev.Date), ev.Time,
			string(ev.Action), string(ev.Effect), ev.ContractKey, ev.Ticker,
			string(ev.TradeType), ev.Qty, ev.Price, ev.Multiplier, ev.DedupeKey,
		)
		if execErr != nil {
			if strings.Contains(strings.ToLower(execErr.Error()), "unique constraint failed") {
				duplicates++
				continue
			}
			return 0, 0, fmt.Errorf("inserting event (dedupeKey: %s): %w", ev.DedupeKey, execErr)
		}
		inserted++
	}

	if err := dbTx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing event inserts: %w", err)
	}
	return inserted, duplicates, nil
}

// EventsBySource returns the full stored event history for one source.
func EventsBySource(source string) ([]models.TradeEvent, error) {
	rows, err := DB.Query(`SELECT source, account, date, time, action, effect,
		contract_key, ticker, trade_type, qty, price, multiplier, dedupe_key
		FROM trade_events WHERE source = ? ORDER BY date, id`, source)
	if err != nil {
		return nil, fmt.Errorf("querying events for source %s: %w", source, err)
	}
	defer rows.Close()

	var events []models.TradeEvent
	for rows.Next() {
		var ev models.TradeEvent
		var dateStr, timeStr, action, effect, tradeType string
		if err := rows.Scan(&ev.Source, &ev.Account, &dateStr, &timeStr, &action, &effect,
			&ev.ContractKey, &ev.Ticker, &tradeType, &ev.Qty, &ev.Price, &ev.Multiplier, &ev.DedupeKey); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		ev.Date = utils.ParseISODate(dateStr)
		ev.Time = timeStr
		ev.Action = models.Action(action)
		ev.Effect = models.Effect(effect)
		ev.TradeType = models.TradeType(tradeType)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

// RecordRun appends one orchestrator run to the history table.
func RecordRun(res *models.SyncResult, startedAt time.Time, runErr error) error {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	_, err := DB.Exec(`INSERT INTO runs
		(id, kind, source, started_at, finished_at, parsed, usable, created, updated, archived, skipped, mismatched, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Kind, res.Source, startedAt, time.Now(),
		res.Parsed, res.Usable, res.Created, res.Updated, res.Archived, res.Skipped, res.Mismatched, errText,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", res.RunID, err)
	}
	return nil
}
