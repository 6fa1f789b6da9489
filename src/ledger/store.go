package ledger

import (
	"context"
	"fmt"

	"github.com/username/tradefolio/src/models"
)

// Ledger database property names. The schema is fixed; the typed mapping
// below is the only place that knows them.
const (
	PropTicker      = "Ticker"
	PropContractKey = "Contract Key"
	PropAccount     = "Account"
	PropBroker      = "Broker"
	PropStatus      = "Status"
	PropType        = "Type"
	PropQty         = "Qty"
	PropFillPrice   = "Fill Price"
	PropOpenDate    = "Open Date"
	PropOpenTime    = "Open Time"
	PropLastAdd     = "Last Add Date"
	PropCloseDate   = "Close Date"
	PropCloseTime   = "Close Time"
	PropClosePrice  = "Close Price"
	PropRealizedPL  = "Realized P/L"
	PropStrategy    = "Strategy"
	PropTags        = "Tags"
)

// RecordStore maps ledger pages onto models.Record and back.
type RecordStore struct {
	client     *Client
	databaseID string
}

func NewRecordStore(client *Client, databaseID string) *RecordStore {
	return &RecordStore{client: client, databaseID: databaseID}
}

// QueryAll follows the cursor until has_more is exhausted and returns every
// matching, non-archived record.
func (s *RecordStore) QueryAll(ctx context.Context, filter *Filter) ([]models.Record, error) {
	var records []models.Record
	cursor := ""
	for {
		resp, err := s.client.QueryDatabase(ctx, s.databaseID, &QueryRequest{
			Filter:      filter,
			StartCursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("querying ledger database: %w", err)
		}
		for i := range resp.Results {
			page := &resp.Results[i]
			if page.Archived {
				continue
			}
			records = append(records, recordFromPage(page))
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return records, nil
}

// Create adds a ledger row and returns it with the store-assigned ID.
func (s *RecordStore) Create(ctx context.Context, rec *models.Record) (string, error) {
	page, err := s.client.CreatePage(ctx, s.databaseID, recordProperties(rec))
	if err != nil {
		return "", fmt.Errorf("creating ledger record for %s: %w", rec.ContractKey, err)
	}
	return page.ID, nil
}

// Update replaces the derived properties of an existing row.
func (s *RecordStore) Update(ctx context.Context, id string, rec *models.Record) error {
	if err := s.client.UpdatePage(ctx, id, recordProperties(rec)); err != nil {
		return fmt.Errorf("updating ledger record %s: %w", id, err)
	}
	return nil
}

// Archive tombstones a row; idempotent on double-archive.
func (s *RecordStore) Archive(ctx context.Context, id string) error {
	if err := s.client.ArchivePage(ctx, id); err != nil {
		return fmt.Errorf("archiving ledger record %s: %w", id, err)
	}
	return nil
}

// FilterByBroker matches records from one source label.
func FilterByBroker(source string) *Filter {
	return &Filter{Property: PropBroker, Select: &SelectFilter{Equals: source}}
}

// FilterByStatus matches OPEN or CLOSED records.
func FilterByStatus(status string) *Filter {
	return &Filter{Property: PropStatus, Select: &SelectFilter{Equals: status}}
}

// FilterByType matches one instrument type (Stock, Call, Put).
func FilterByType(tradeType string) *Filter {
	return &Filter{Property: PropType, Select: &SelectFilter{Equals: tradeType}}
}

// FilterByContract matches one (account, contract key) pair.
func FilterByContract(account, contractKey string) *Filter {
	return &Filter{And: []Filter{
		{Property: PropAccount, RichText: &TextFilter{Equals: account}},
		{Property: PropContractKey, RichText: &TextFilter{Equals: contractKey}},
	}}
}

func recordFromPage(page *Page) models.Record {
	return models.Record{
		ID:          page.ID,
		Ticker:      page.TitleText(PropTicker),
		ContractKey: page.Text(PropContractKey),
		Account:     page.Text(PropAccount),
		Source:      page.SelectName(PropBroker),
		Status:      page.SelectName(PropStatus),
		TradeType:   page.SelectName(PropType),
		Qty:         page.NumberValue(PropQty),
		FillPrice:   page.NumberValue(PropFillPrice),
		OpenDate:    page.DateValueStart(PropOpenDate),
		OpenTime:    page.Text(PropOpenTime),
		LastAddDate: page.DateValueStart(PropLastAdd),
		CloseDate:   page.DateValueStart(PropCloseDate),
		CloseTime:   page.Text(PropCloseTime),
		ClosePrice:  page.NumberValue(PropClosePrice),
		RealizedPL:  page.NumberValue(PropRealizedPL),
		Strategy:    page.Text(PropStrategy),
		Tags:        page.MultiSelectNames(PropTags),
		Archived:    page.Archived,
	}
}

func recordProperties(rec *models.Record) map[string]Property {
	props := map[string]Property{
		PropTicker:      TitleProp(rec.Ticker),
		PropContractKey: TextProp(rec.ContractKey),
		PropAccount:     TextProp(rec.Account),
		PropBroker:      SelectProp(rec.Source),
		PropStatus:      SelectProp(rec.Status),
		PropQty:         NumberProp(rec.Qty),
		PropFillPrice:   NumberProp(rec.FillPrice),
		PropOpenDate:    DateProp(rec.OpenDate),
		PropOpenTime:    TextProp(rec.OpenTime),
		PropLastAdd:     DateProp(rec.LastAddDate),
		PropRealizedPL:  NumberProp(rec.RealizedPL),
	}
	if rec.TradeType != "" {
		props[PropType] = SelectProp(rec.TradeType)
	}
	if rec.Status == models.StatusClosed {
		props[PropCloseDate] = DateProp(rec.CloseDate)
		props[PropCloseTime] = TextProp(rec.CloseTime)
		props[PropClosePrice] = NumberProp(rec.ClosePrice)
	}
	if rec.Strategy != "" {
		props[PropStrategy] = TextProp(rec.Strategy)
	}
	if len(rec.Tags) > 0 {
		props[PropTags] = MultiSelectProp(rec.Tags)
	}
	return props
}
