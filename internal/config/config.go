package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Analysis
	FinancialMonthStartDay     int
	MerchantMatchThreshold     float64
	SubscriptionMinConfidence  float64
	SubscriptionLookbackMonths int
	ForecastHistoryMonths      int

	// Merchant resolution
	ResolverCacheSize int
	ResolverCacheTTL  time.Duration
	DedupInterval     time.Duration
	PendingBatchSize  int
	PendingInterval   time.Duration

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleForecastSheet      string
	GoogleSubscriptionsSheet string
	GoogleBudgetsSheet       string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transactions_imported"),

		FinancialMonthStartDay:     getEnvInt("FINANCIAL_MONTH_START_DAY", 1),
		MerchantMatchThreshold:     getEnvFloat("MERCHANT_MATCH_THRESHOLD", 0.7),
		SubscriptionMinConfidence:  getEnvFloat("SUBSCRIPTION_MIN_CONFIDENCE", 0.5),
		SubscriptionLookbackMonths: getEnvInt("SUBSCRIPTION_LOOKBACK_MONTHS", 13),
		ForecastHistoryMonths:      getEnvInt("FORECAST_HISTORY_MONTHS", 3),

		ResolverCacheSize: getEnvInt("RESOLVER_CACHE_SIZE", 1000),
		ResolverCacheTTL:  getEnvDuration("RESOLVER_CACHE_TTL", time.Hour),
		DedupInterval:     getEnvDuration("DEDUP_INTERVAL", 0),
		PendingBatchSize:  getEnvInt("PENDING_BATCH_SIZE", 100),
		PendingInterval:   getEnvDuration("PENDING_INTERVAL", 5*time.Minute),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleForecastSheet:      getEnv("GOOGLE_FORECAST_SHEET_NAME", "Forecast"),
		GoogleSubscriptionsSheet: getEnv("GOOGLE_SUBSCRIPTIONS_SHEET_NAME", "Subscriptions"),
		GoogleBudgetsSheet:       getEnv("GOOGLE_BUDGETS_SHEET_NAME", "Budgets"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
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

	if c.FinancialMonthStartDay < 1 || c.FinancialMonthStartDay > 31 {
		errors = append(errors, fmt.Sprintf("invalid financial month start day %d: must be between 1 and 31", c.FinancialMonthStartDay))
	}
	if c.MerchantMatchThreshold <= 0 || c.MerchantMatchThreshold > 1 {
		errors = append(errors, fmt.Sprintf("invalid merchant match threshold %v: must be in (0, 1]", c.MerchantMatchThreshold))
	}
	if c.SubscriptionMinConfidence < 0 || c.SubscriptionMinConfidence > 1 {
		errors = append(errors, fmt.Sprintf("invalid subscription min confidence %v: must be in [0, 1]", c.SubscriptionMinConfidence))
	}
	if c.SubscriptionLookbackMonths < 1 || c.SubscriptionLookbackMonths > 60 {
		errors = append(errors, fmt.Sprintf("invalid subscription lookback %d: must be between 1 and 60 months", c.SubscriptionLookbackMonths))
	}
	if c.ForecastHistoryMonths < 1 || c.ForecastHistoryMonths > 24 {
		errors = append(errors, fmt.Sprintf("invalid forecast history %d: must be between 1 and 24 months", c.ForecastHistoryMonths))
	}

	if c.ResolverCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid resolver cache size %d: must not be negative", c.ResolverCacheSize))
	}
	if c.ResolverCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid resolver cache TTL %v: must not be negative", c.ResolverCacheTTL))
	}
	if c.DedupInterval != 0 && c.DedupInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid dedup interval %v: must be 0 (run once) or at least 1 minute", c.DedupInterval))
	}
	if c.PendingBatchSize < 1 || c.PendingBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid pending batch size %d: must be between 1 and 1000", c.PendingBatchSize))
	}
	if c.PendingInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid pending interval %v: must be at least 1 second", c.PendingInterval))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateSheets checks the settings needed by the Google Sheets exporter.
// They are only required by binaries that export.
func (c *Config) ValidateSheets() error {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for sheets export")
	}
	if c.GoogleForecastSheet == "" || c.GoogleSubscriptionsSheet == "" {
		errors = append(errors, "forecast and subscriptions sheet names cannot be empty")
	}
	hasFile := c.GoogleServiceAccountFile != ""
	if !hasFile && c.GoogleServiceAccountJSON == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
	}
	if hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if len(errors) > 0 {
		return fmt.Errorf("sheets configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ParseLevel maps LOG_LEVEL values to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be one of debug, info, warn, error", s)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
