package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/username/tradefolio/src/database"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/reconcile"
	"github.com/username/tradefolio/src/sources"
)

// ImportService feeds a broker export file through its source adapter,
// stores the normalized events and reconciles the rebuilt episodes against
// the ledger. Importing the same file twice is a no-op: the event log
// collapses the duplicate rows and the reconciler skips unchanged records.
type ImportService struct {
	store      Store
	reconciler *reconcile.Reconciler
	aliases    map[string]string
}

func NewImportService(store Store, reconciler *reconcile.Reconciler, aliases map[string]string) *ImportService {
	return &ImportService{store: store, reconciler: reconciler, aliases: aliases}
}

// ImportFile parses one export file for the named source (e.g. "public-csv",
// "fidelity-text") and reconciles the outcome.
func (s *ImportService) ImportFile(ctx context.Context, source string, file io.Reader) (*models.SyncResult, error) {
	startedAt := time.Now()

	importer, err := sources.GetImporter(source, s.aliases)
	if err != nil {
		return nil, err
	}
	res := newResult("import", importer.Label())
	err = s.importFile(ctx, importer, file, res)

	if dbErr := database.RecordRun(res, startedAt, err); dbErr != nil {
		logger.L.Error("Failed to record run history", "runID", res.RunID, "error", dbErr)
	}
	return res, err
}

func (s *ImportService) importFile(ctx context.Context, importer sources.Importer, file io.Reader, res *models.SyncResult) error {
	events, stats, err := importer.Parse(file)
	if err != nil {
		return fmt.Errorf("import: parsing %s file: %w", importer.Label(), err)
	}
	res.Parsed = stats.Parsed
	res.Usable = stats.Usable

	inserted, duplicates, err := database.InsertEvents(events)
	if err != nil {
		return fmt.Errorf("import: storing events: %w", err)
	}
	logger.L.Info("Stored imported events",
		"runID", res.RunID, "source", importer.Label(),
		"parsed", stats.Parsed, "usable", stats.Usable, "new", inserted, "duplicates", duplicates)

	return reconcileSource(ctx, s.store, s.reconciler, importer.Label(), res)
}
