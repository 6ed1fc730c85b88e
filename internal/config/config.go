package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by DATA_BACKEND and STORE_FALLBACK.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	// HTTP Server
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Store
	DataBackend        string
	StoreFallback      string
	StoreTimeout       time.Duration
	StoreSeedFile      string
	SQLiteDBPath       string
	FirestoreProjectID string
	ReconcileInterval  time.Duration

	// Cache
	CacheTTL  time.Duration
	CacheSize int

	// Banking
	BankingAPIURL        string
	BankingTimeout       time.Duration
	BankingRateLimit     int
	SeedTransactionsFile string

	// Categorization
	CategoryRulesFile string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger export
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Advisor
	GeminiAPIKey string
	GeminiModel  string

	// Request protection
	RateLimitPerMinute int
	BlockSuspicious    bool
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8081"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DataBackend:        strings.ToLower(getEnv("DATA_BACKEND", BackendMemory)),
		StoreFallback:      strings.ToLower(getEnv("STORE_FALLBACK", "")),
		StoreTimeout:       getEnvDuration("STORE_TIMEOUT", 3*time.Second),
		StoreSeedFile:      getEnv("STORE_SEED_FILE", ""),
		SQLiteDBPath:       getEnv("SQLITE_DB_PATH", "./data/finboard.db"),
		FirestoreProjectID: getEnv("FIRESTORE_PROJECT_ID", ""),
		ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", 10*time.Second),

		CacheTTL:  getEnvDuration("CACHE_TTL", 2*time.Minute),
		CacheSize: getEnvInt("CACHE_SIZE", 256),

		BankingAPIURL:        getEnv("BANKING_API_URL", ""),
		BankingTimeout:       getEnvDuration("BANKING_TIMEOUT", 10*time.Second),
		BankingRateLimit:     getEnvInt("BANKING_RATE_LIMIT", 10),
		SeedTransactionsFile: getEnv("SEED_TRANSACTIONS_FILE", ""),

		CategoryRulesFile: getEnv("CATEGORY_RULES_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finboard"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Ledger"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		BlockSuspicious:    getEnvBool("BLOCK_SUSPICIOUS_REQUESTS", false),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels[:len(validLevels)-1]))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendFirestore}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.StoreFallback != "" {
		validFallbacks := []string{BackendMemory, BackendSQLite}
		if !slices.Contains(validFallbacks, c.StoreFallback) {
			errors = append(errors, fmt.Sprintf("invalid store fallback '%s': must be one of %v", c.StoreFallback, validFallbacks))
		} else if c.StoreFallback == c.DataBackend {
			errors = append(errors, fmt.Sprintf("store fallback '%s' must differ from the data backend", c.StoreFallback))
		}
	}

	if (c.DataBackend == BackendSQLite || c.StoreFallback == BackendSQLite) && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite")
	}
	if c.DataBackend == BackendFirestore && c.FirestoreProjectID == "" {
		errors = append(errors, "FIRESTORE_PROJECT_ID is required when using firestore backend")
	}
	if c.StoreSeedFile != "" {
		if _, err := os.Stat(c.StoreSeedFile); err != nil {
			errors = append(errors, fmt.Sprintf("store seed file is not readable: %s", c.StoreSeedFile))
		}
	}

	if c.StoreTimeout <= 0 || c.StoreTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be between 0 and 1 minute", c.StoreTimeout))
	}
	if c.ReconcileInterval < time.Second || c.ReconcileInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be between 1 second and 24 hours", c.ReconcileInterval))
	}

	if c.CacheSize < 1 || c.CacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be between 1 and 100000", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	// A live provider or a fixture file must supply transactions.
	if c.BankingAPIURL == "" && c.SeedTransactionsFile == "" {
		errors = append(errors, "either BANKING_API_URL or SEED_TRANSACTIONS_FILE must be set")
	}
	if c.BankingAPIURL != "" {
		if u, err := url.Parse(c.BankingAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid banking API URL '%s': must be an http(s) URL", c.BankingAPIURL))
		}
	}
	if c.BankingTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid banking timeout %v: must be positive", c.BankingTimeout))
	}
	if c.BankingRateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid banking rate limit %d: must be zero (unlimited) or positive", c.BankingRateLimit))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings the ledger export worker needs.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the ledger worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the ledger worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// UseGemini reports whether the LLM advisor is configured.
func (c *Config) UseGemini() bool {
	return c.GeminiAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
