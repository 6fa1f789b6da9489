package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/username/tradefolio/src/config"
	"github.com/username/tradefolio/src/database"
	"github.com/username/tradefolio/src/ledger"
	"github.com/username/tradefolio/src/logger"
	"github.com/username/tradefolio/src/reconcile"
	"github.com/username/tradefolio/src/services"
	"github.com/username/tradefolio/src/sources"
	"github.com/username/tradefolio/src/utils"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// app holds the wired services shared by the CLI subcommands and the HTTP
// surface.
type app struct {
	sync     *services.SyncService
	importer *services.ImportService
	rebuild  *services.RebuildService
	backfill *services.BackfillService
	audit    *services.AuditService
}

func defaultPriority() []string {
	return []string{
		sources.SourceAggregator,
		"Public",
		"Statement",
		"Fidelity",
		"Schwab",
		"E*TRADE",
	}
}

func buildApp() *app {
	rules, err := config.LoadSourceRules(config.Cfg.SourceRulesPath)
	if err != nil {
		logger.L.Error("Failed to load source rules", "error", err)
		os.Exit(1)
	}
	priority := rules.Priority
	if len(priority) == 0 {
		priority = defaultPriority()
	}
	var cutoff time.Time
	if rules.CutoffDate != "" {
		cutoff = utils.ParseISODate(rules.CutoffDate)
	}
	reconciler := reconcile.NewReconciler(priority, cutoff)

	client := ledger.NewClient(
		config.Cfg.LedgerAPIBaseURL,
		config.Cfg.LedgerAPIToken,
		config.Cfg.LedgerAPIVersion,
		config.Cfg.StoreRateRPS,
	)
	store := ledger.NewRecordStore(client, config.Cfg.LedgerDatabaseID)

	aggregator := sources.NewAggregatorClient(
		config.Cfg.AggregatorBaseURL,
		config.Cfg.AggregatorClientID,
		config.Cfg.AggregatorConsumerKey,
		rules.Aliases,
	)
	notifier := services.NewNotifier()

	return &app{
		sync:     services.NewSyncService(store, aggregator, reconciler, notifier, config.Cfg.HistoryWindowDays),
		importer: services.NewImportService(store, reconciler, rules.Aliases),
		rebuild:  services.NewRebuildService(store, reconciler),
		backfill: services.NewBackfillService(store, aggregator),
		audit:    services.NewAuditService(store, reconciler),
	}
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.ImportDBPath)
	database.InitDB(config.Cfg.ImportDBPath)

	a := buildApp()
	ctx := context.Background()

	switch os.Args[1] {
	case "sync":
		finish(a.sync.SyncAccounts(ctx))
	case "import":
		if len(os.Args) < 4 {
			stdlog.Fatal("usage: tradefolio import <source> <file>")
		}
		file, err := os.Open(os.Args[3])
		if err != nil {
			stdlog.Fatalf("opening import file: %v", err)
		}
		defer file.Close()
		finish(a.importer.ImportFile(ctx, os.Args[2], file))
	case "rebuild":
		if len(os.Args) < 3 {
			stdlog.Fatal("usage: tradefolio rebuild <source-label>")
		}
		finish(a.rebuild.RebuildSource(ctx, os.Args[2]))
	case "backfill":
		finish(a.backfill.BackfillHoldings(ctx))
	case "audit":
		finish(a.audit.Audit(ctx))
	case "serve":
		serve(a)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tradefolio <command>

commands:
  sync                      pull executed orders from all linked accounts and reconcile
  import <source> <file>    import a broker export file (public-csv, statement-pdf,
                            fidelity-text, schwab-text, etrade-text)
  rebuild <source-label>    archive and regenerate one source's ledger records
  backfill                  seed open holdings that predate the order history
  audit                     report pending duplicates without writing anything
  serve                     run the HTTP trigger surface`)
}

// finish prints the run result as JSON and exits non-zero on failure.
func finish(res any, err error) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		logger.L.Error("Failed to encode run result", "error", encErr)
	}
	if err != nil {
		logger.L.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func serve(a *app) {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sync", func(w http.ResponseWriter, r *http.Request) {
		res, err := a.sync.SyncAccounts(r.Context())
		writeRunResult(w, res, err)
	})
	mux.HandleFunc("POST /api/rebuild", func(w http.ResponseWriter, r *http.Request) {
		label := r.URL.Query().Get("source")
		if label == "" {
			http.Error(w, "missing source query parameter", http.StatusBadRequest)
			return
		}
		res, err := a.rebuild.RebuildSource(r.Context(), label)
		writeRunResult(w, res, err)
	})
	mux.HandleFunc("POST /api/backfill", func(w http.ResponseWriter, r *http.Request) {
		res, err := a.backfill.BackfillHoldings(r.Context())
		writeRunResult(w, res, err)
	})
	mux.HandleFunc("GET /api/audit", func(w http.ResponseWriter, r *http.Request) {
		res, err := a.audit.Audit(r.Context())
		writeRunResult(w, res, err)
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	addr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      rateLimitMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("HTTP trigger surface listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func writeRunResult(w http.ResponseWriter, res any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
	json.NewEncoder(w).Encode(res)
}
