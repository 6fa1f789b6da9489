package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func newTestStore(t *testing.T, handler http.Handler) (*RecordStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "secret-token", "2022-06-28", 1000)
	return NewRecordStore(client, "db1"), srv
}

func queryPage(id, ticker string, archived bool) map[string]any {
	return map[string]any{
		"id":       id,
		"archived": archived,
		"properties": map[string]any{
			"Ticker": map[string]any{"title": []map[string]any{{"plain_text": ticker}}},
			"Status": map[string]any{"select": map[string]any{"name": "OPEN"}},
			"Qty":    map[string]any{"number": 2},
		},
	}
}

func TestQueryAllFollowsCursorAndSkipsArchived(t *testing.T) {
	calls := 0
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/db1/query" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization = %q", got)
		}
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding query request: %v", err)
		}

		calls++
		w.Header().Set("Content-Type", "application/json")
		switch calls {
		case 1:
			if req.StartCursor != "" {
				t.Errorf("first call cursor = %q, want empty", req.StartCursor)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"results":     []map[string]any{queryPage("p1", "NFLX", false), queryPage("p2", "TSLA", true)},
				"has_more":    true,
				"next_cursor": "cursor-2",
			})
		default:
			if req.StartCursor != "cursor-2" {
				t.Errorf("second call cursor = %q, want cursor-2", req.StartCursor)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"results":  []map[string]any{queryPage("p3", "AMD", false)},
				"has_more": false,
			})
		}
	}))

	records, err := store.QueryAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("QueryAll() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (archived skipped)", len(records))
	}
	if records[0].ID != "p1" || records[0].Ticker != "NFLX" || records[0].Qty != 2 {
		t.Errorf("record = %+v", records[0])
	}
	if records[1].ID != "p3" {
		t.Errorf("record = %+v", records[1])
	}
}

func TestCreateSendsParentAndReturnsID(t *testing.T) {
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Parent     map[string]string   `json:"parent"`
			Properties map[string]Property `json:"properties"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding create request: %v", err)
		}
		if req.Parent["database_id"] != "db1" {
			t.Errorf("parent = %v", req.Parent)
		}
		if _, ok := req.Properties["Close Date"]; ok {
			t.Error("open record must not carry close properties")
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "new-page"})
	}))

	rec := models.Record{Ticker: "NFLX", ContractKey: "NFLX", Account: "TAXABLE",
		Source: "SnapTrade", Status: models.StatusOpen, Qty: 2, FillPrice: 10}
	id, err := store.Create(context.Background(), &rec)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != "new-page" {
		t.Errorf("id = %q, want new-page", id)
	}
}

func TestArchiveIdempotentOnConflict(t *testing.T) {
	calls := 0
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPatch || r.URL.Path != "/pages/p1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if calls == 1 {
			json.NewEncoder(w).Encode(map[string]any{"id": "p1", "archived": true})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  400,
			"code":    "validation_error",
			"message": "Can't update a page that is archived.",
		})
	}))

	if err := store.Archive(context.Background(), "p1"); err != nil {
		t.Fatalf("first Archive() error = %v", err)
	}
	if err := store.Archive(context.Background(), "p1"); err != nil {
		t.Fatalf("second Archive() must be a no-op, got %v", err)
	}
}

func TestUpdateSurfacesAPIError(t *testing.T) {
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"status": 404, "code": "object_not_found", "message": "Page not found",
		})
	}))

	rec := models.Record{Ticker: "NFLX", Status: models.StatusOpen}
	err := store.Update(context.Background(), "missing", &rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if IsArchivedConflict(err) {
		t.Error("not-found must not read as an archive conflict")
	}
	want := fmt.Sprintf("updating ledger record %s", "missing")
	if got := err.Error(); len(got) == 0 || got[:len(want)] != want {
		t.Errorf("error = %q, want prefix %q", got, want)
	}
}
