// Package ledger is the adapter to the external document database holding
// the positions ledger. It exposes paginated queries, create/update/archive
// of pages, and a typed record mapping; the rest of the system never sees
// raw property dictionaries.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/username/tradefolio/src/logger"
)

const (
	schemaCacheExpiration = 15 * time.Minute
	schemaCacheCleanup    = 30 * time.Minute
	defaultPageSize       = 100
)

// APIError is a non-2xx response from the store.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger store: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsArchivedConflict reports whether an error is the benign "page already
// archived" conflict. Eventual consistency can list a page as live after a
// prior run archived it; double-archiving must be a no-op, not a failure.
func IsArchivedConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "archived")
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	apiVersion string

	// The store enforces a global request rate; every call waits on the
	// limiter before hitting the wire.
	limiter *rate.Limiter

	schemaCache *cache.Cache
}

func NewClient(baseURL, token, apiVersion string, rps float64) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		apiVersion: apiVersion,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		schemaCache: cache.New(schemaCacheExpiration, schemaCacheCleanup),
	}
}

type QueryRequest struct {
	Filter      *Filter `json:"filter,omitempty"`
	StartCursor string  `json:"start_cursor,omitempty"`
	PageSize    int     `json:"page_size,omitempty"`
}

type QueryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// Filter is a conjunction/disjunction of property predicates. Exactly one
// of And/Or or the property fields is set.
type Filter struct {
	And      []Filter      `json:"and,omitempty"`
	Or       []Filter      `json:"or,omitempty"`
	Property string        `json:"property,omitempty"`
	Select   *SelectFilter `json:"select,omitempty"`
	RichText *TextFilter   `json:"rich_text,omitempty"`
}

type SelectFilter struct {
	Equals string `json:"equals,omitempty"`
}

type TextFilter struct {
	Equals   string `json:"equals,omitempty"`
	Contains string `json:"contains,omitempty"`
}

// Database is the schema half of the store needed here: the property map.
type Database struct {
	ID         string                     `json:"id"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// QueryDatabase runs one page of a database query.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, req *QueryRequest) (*QueryResponse, error) {
	if req.PageSize == 0 {
		req.PageSize = defaultPageSize
	}
	var resp QueryResponse
	path := fmt.Sprintf("/databases/%s/query", databaseID)
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDatabase fetches the database schema, memoized for the run.
func (c *Client) GetDatabase(ctx context.Context, databaseID string) (*Database, error) {
	if cached, found := c.schemaCache.Get(databaseID); found {
		return cached.(*Database), nil
	}
	var db Database
	if err := c.do(ctx, http.MethodGet, "/databases/"+databaseID, nil, &db); err != nil {
		return nil, err
	}
	c.schemaCache.Set(databaseID, &db, cache.DefaultExpiration)
	return &db, nil
}

type createPageRequest struct {
	Parent     pageParent          `json:"parent"`
	Properties map[string]Property `json:"properties"`
}

type pageParent struct {
	DatabaseID string `json:"database_id"`
}

// CreatePage adds one row to a database.
func (c *Client) CreatePage(ctx context.Context, databaseID string, props map[string]Property) (*Page, error) {
	req := createPageRequest{
		Parent:     pageParent{DatabaseID: databaseID},
		Properties: props,
	}
	var page Page
	if err := c.do(ctx, http.MethodPost, "/pages", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

type updatePageRequest struct {
	Properties map[string]Property `json:"properties,omitempty"`
	Archived   *bool               `json:"archived,omitempty"`
}

// UpdatePage replaces the given properties of an existing page.
func (c *Client) UpdatePage(ctx context.Context, pageID string, props map[string]Property) error {
	req := updatePageRequest{Properties: props}
	return c.do(ctx, http.MethodPatch, "/pages/"+pageID, req, nil)
}

// ArchivePage tombstones a page. Archiving an already-archived page is
// treated as success.
func (c *Client) ArchivePage(ctx context.Context, pageID string) error {
	archived := true
	req := updatePageRequest{Archived: &archived}
	err := c.do(ctx, http.MethodPatch, "/pages/"+pageID, req, nil)
	if err != nil && IsArchivedConflict(err) {
		logger.L.Debug("Page already archived, ignoring conflict", "pageID", pageID)
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting on store rate limiter: %w", err)
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", c.apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}
