package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/username/tradefolio/src/contract"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/utils"
)

// SourceAggregator is the source label for events from the aggregation API.
const SourceAggregator = "SnapTrade"

// AggregatorClient talks to the brokerage-aggregation API: linked accounts,
// executed orders and current open holdings. Orders carry explicit
// open/close intent codes for options, bare BUY/SELL for equities.
type AggregatorClient struct {
	httpClient  *http.Client
	baseURL     string
	clientID    string
	consumerKey string
	aliases     map[string]string
}

func NewAggregatorClient(baseURL, clientID, consumerKey string, aliases map[string]string) *AggregatorClient {
	return &AggregatorClient{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		clientID:    clientID,
		consumerKey: consumerKey,
		aliases:     aliases,
	}
}

type rawOrder struct {
	ID           string  `json:"id"`
	Account      string  `json:"account_name"`
	Symbol       string  `json:"symbol"`
	OptionSymbol string  `json:"option_symbol"`
	Action       string  `json:"action"`
	Units        float64 `json:"total_quantity"`
	Price        float64 `json:"execution_price"`
	TradeDate    string  `json:"trade_date"` // ISO 8601
	TradeTime    string  `json:"trade_time"`
	NetAmount    float64 `json:"net_amount"`
	SettleDate   string  `json:"settle_date"`
}

type rawHolding struct {
	Account      string  `json:"account_name"`
	Symbol       string  `json:"symbol"`
	OptionSymbol string  `json:"option_symbol"`
	Units        float64 `json:"units"` // signed
	AvgPrice     float64 `json:"average_purchase_price"`
	AsOf         string  `json:"sync_date"`
}

// ListAccounts returns the linked brokerage accounts.
func (c *AggregatorClient) ListAccounts(ctx context.Context) ([]models.BrokerAccount, error) {
	var accounts []models.BrokerAccount
	if err := c.get(ctx, "/accounts", nil, &accounts); err != nil {
		return nil, fmt.Errorf("aggregator: listing accounts: %w", err)
	}
	return accounts, nil
}

// ListOrders returns normalized trade events for one account over a date
// range. Rows with unrecognized action codes or unusable numerics are
// dropped and reflected in the stats.
func (c *AggregatorClient) ListOrders(ctx context.Context, accountID string, from, to time.Time) ([]models.TradeEvent, ParseStats, error) {
	params := url.Values{}
	params.Set("start_date", utils.FormatISODate(from))
	params.Set("end_date", utils.FormatISODate(to))
	params.Set("state", "executed")

	var orders []rawOrder
	path := fmt.Sprintf("/accounts/%s/orders", accountID)
	if err := c.get(ctx, path, params, &orders); err != nil {
		return nil, ParseStats{}, fmt.Errorf("aggregator: listing orders for account %s: %w", accountID, err)
	}

	var events []models.TradeEvent
	stats := ParseStats{}
	for i := range orders {
		stats.Parsed++
		ev, ok := c.normalizeOrder(&orders[i])
		if !ok {
			continue
		}
		stats.Usable++
		events = append(events, ev)
	}
	return events, stats, nil
}

// ListOpenHoldings returns the account's current open positions, used to
// seed positions whose opening trade predates the history window.
func (c *AggregatorClient) ListOpenHoldings(ctx context.Context, accountID string) ([]models.PositionSnapshot, error) {
	var holdings []rawHolding
	path := fmt.Sprintf("/accounts/%s/positions", accountID)
	if err := c.get(ctx, path, nil, &holdings); err != nil {
		return nil, fmt.Errorf("aggregator: listing holdings for account %s: %w", accountID, err)
	}

	var snapshots []models.PositionSnapshot
	for i := range holdings {
		h := &holdings[i]
		symbol := h.OptionSymbol
		if symbol == "" {
			symbol = h.Symbol
		}
		key, ticker, tradeType, multiplier := classify(symbol)
		if key == "" || h.Units == 0 {
			continue
		}
		snapshots = append(snapshots, models.PositionSnapshot{
			Account:     contract.NormalizeAccount(h.Account, c.aliases),
			ContractKey: key,
			Ticker:      ticker,
			TradeType:   tradeType,
			Qty:         h.Units,
			AvgPrice:    h.AvgPrice,
			Multiplier:  multiplier,
			AsOf:        utils.ParseISODate(h.AsOf),
		})
	}
	return snapshots, nil
}

func (c *AggregatorClient) normalizeOrder(o *rawOrder) (models.TradeEvent, bool) {
	action, effect, ok := MapActionCode(o.Action)
	if !ok {
		logger.L.Debug("Aggregator: unrecognized action code, dropping order", "orderID", o.ID, "action", o.Action)
		return models.TradeEvent{}, false
	}

	symbol := o.OptionSymbol
	if symbol == "" {
		symbol = o.Symbol
	}
	key, ticker, tradeType, multiplier := classify(symbol)

	date, err := time.Parse(utils.ISODateFormat, o.TradeDate)
	if err != nil {
		// Some brokerages report a full timestamp.
		ts, tsErr := time.Parse(time.RFC3339, o.TradeDate)
		if tsErr != nil {
			logger.L.Debug("Aggregator: unparseable trade date, dropping order", "orderID", o.ID, "date", o.TradeDate)
			return models.TradeEvent{}, false
		}
		date = utils.DateOnly(ts)
	}

	qty := o.Units
	if qty < 0 {
		qty = -qty
	}

	ev := models.TradeEvent{
		Source:      SourceAggregator,
		Account:     contract.NormalizeAccount(o.Account, c.aliases),
		Date:        date,
		Time:        o.TradeTime,
		Action:      action,
		Effect:      effect,
		ContractKey: key,
		Ticker:      ticker,
		TradeType:   tradeType,
		Qty:         qty,
		Price:       o.Price,
		Multiplier:  multiplier,
		DedupeKey: BuildDedupeKey(
			o.TradeDate, o.SettleDate, symbol, o.Action,
			fmt.Sprintf("%v", o.Units), fmt.Sprintf("%v", o.Price), fmt.Sprintf("%v", o.NetAmount),
		),
	}
	if !usable(&ev) {
		return models.TradeEvent{}, false
	}
	return ev, true
}

func (c *AggregatorClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if params == nil {
		params = url.Values{}
	}
	params.Set("clientId", c.clientID)
	u += "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.consumerKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
