package sources

import (
	"fmt"
	"io"

	"github.com/username/tradefolio/src/models"
)

// Importer is a file-based source adapter. Parse never fails on individual
// malformed rows; those are dropped and reflected in the stats.
type Importer interface {
	Label() string
	Parse(file io.Reader) ([]models.TradeEvent, ParseStats, error)
}

// GetImporter returns the adapter for a source name.
func GetImporter(source string, aliases map[string]string) (Importer, error) {
	switch source {
	case "public-csv":
		return NewCSVImporter("Public (CSV)", aliases), nil
	case "statement-pdf":
		return NewPDFImporter("Statement (PDF)", aliases), nil
	case "fidelity-text":
		return NewTextImporter(DialectFidelity, aliases), nil
	case "schwab-text":
		return NewTextImporter(DialectSchwab, aliases), nil
	case "etrade-text":
		return NewTextImporter(DialectEtrade, aliases), nil
	default:
		return nil, fmt.Errorf("no importer available for source: %s", source)
	}
}
