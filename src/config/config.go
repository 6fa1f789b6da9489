package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	LogLevel string
	Port     string

	// External ledger store (document database).
	LedgerAPIBaseURL string
	LedgerAPIToken   string
	LedgerAPIVersion string
	LedgerDatabaseID string
	StoreRateRPS     float64

	// Brokerage aggregation API.
	AggregatorBaseURL     string
	AggregatorClientID    string
	AggregatorConsumerKey string

	// Local import log.
	ImportDBPath string

	// Reconciliation knobs.
	SourceRulesPath   string
	HistoryWindowDays int

	// Optional run-report email.
	EmailReportsEnabled  bool
	MailgunDomain        string
	MailgunPrivateAPIKey string
	SenderEmail          string
	SenderName           string
	ReportRecipient      string
	NotifySendTimeout    time.Duration
}

// SourceRules holds account aliases, source priorities and the duplicate
// cutoff date, loaded from a YAML file so they can change without a rebuild.
type SourceRules struct {
	// Aliases maps a substring of a broker-reported account label (matched
	// case-insensitively) to the canonical account label.
	Aliases map[string]string `yaml:"aliases"`
	// Priority lists source labels from highest to lowest priority for
	// duplicate resolution.
	Priority []string `yaml:"priority"`
	// CutoffDate (ISO 8601) is the date on or after which a higher-priority
	// source supersedes manually-imported open positions.
	CutoffDate string `yaml:"cutoff_date"`
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults.")
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	ledgerToken := getEnv("LEDGER_API_TOKEN", "")
	if ledgerToken == "" {
		log.Fatal("FATAL: LEDGER_API_TOKEN is required but not set in environment or .env file.")
	}
	ledgerDatabaseID := getEnv("LEDGER_DATABASE_ID", "")
	if ledgerDatabaseID == "" {
		log.Fatal("FATAL: LEDGER_DATABASE_ID is required but not set in environment or .env file.")
	}

	storeRateRPS, err := strconv.ParseFloat(getEnv("STORE_RATE_LIMIT_RPS", "3"), 64)
	if err != nil || storeRateRPS <= 0 {
		log.Printf("WARNING: Invalid STORE_RATE_LIMIT_RPS. Using default 3. Error: %v", err)
		storeRateRPS = 3
	}

	Cfg = &AppConfig{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("PORT", "8080"),

		LedgerAPIBaseURL: getEnv("LEDGER_API_BASE_URL", "https://api.notion.com/v1"),
		LedgerAPIToken:   ledgerToken,
		LedgerAPIVersion: getEnv("LEDGER_API_VERSION", "2022-06-28"),
		LedgerDatabaseID: ledgerDatabaseID,
		StoreRateRPS:     storeRateRPS,

		AggregatorBaseURL:     getEnv("AGGREGATOR_BASE_URL", "https://api.snaptrade.com/api/v1"),
		AggregatorClientID:    getEnv("AGGREGATOR_CLIENT_ID", ""),
		AggregatorConsumerKey: getEnv("AGGREGATOR_CONSUMER_KEY", ""),

		ImportDBPath: getEnv("IMPORT_DB_PATH", "./tradefolio.db"),

		SourceRulesPath:   getEnv("SOURCE_RULES_PATH", "data/sources.yaml"),
		HistoryWindowDays: getEnvAsInt("HISTORY_WINDOW_DAYS", 365),

		EmailReportsEnabled:  getEnv("EMAIL_REPORTS_ENABLED", "false") == "true",
		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),
		SenderEmail:          getEnv("SENDER_EMAIL", "noreply@example.com"),
		SenderName:           getEnv("SENDER_NAME", "Tradefolio"),
		ReportRecipient:      getEnv("REPORT_RECIPIENT_EMAIL", ""),
		NotifySendTimeout:    getEnvAsDuration("NOTIFY_SEND_TIMEOUT", 10*time.Second),
	}

	if Cfg.EmailReportsEnabled {
		if Cfg.MailgunDomain == "" || Cfg.MailgunPrivateAPIKey == "" {
			log.Fatal("FATAL: MAILGUN_DOMAIN and MAILGUN_PRIVATE_API_KEY are required when EMAIL_REPORTS_ENABLED is true.")
		}
		if Cfg.ReportRecipient == "" {
			log.Fatal("FATAL: REPORT_RECIPIENT_EMAIL is required when EMAIL_REPORTS_ENABLED is true.")
		}
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, ImportDBPath=%s, LedgerDB=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.ImportDBPath, Cfg.LedgerDatabaseID)
}

// LoadSourceRules reads the YAML rules file. A missing file is not an error;
// built-in defaults still apply.
func LoadSourceRules(path string) (*SourceRules, error) {
	rules := &SourceRules{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Source rules file %s not found, using built-in defaults.", path)
			return rules, nil
		}
		return nil, fmt.Errorf("reading source rules %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("parsing source rules %s: %w", path, err)
	}
	return rules, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
