package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	Port      int
	LogLevel  string
	LogPretty bool

	StoreDriver string // memory, sqlite or postgres
	DatabaseURL string // postgres DSN
	SQLitePath  string

	KafkaBrokers []string // empty logs events instead of publishing them
	KafkaTopic   string

	PolygonAPIKey  string   // empty selects the static price table
	StaticPrices   []string // SYMBOL=PRICE pairs for the static table
	PolygonBaseURL string
	PriceCachePath string // empty disables the quote cache
	PriceCacheTTL  time.Duration

	LockTimeout       time.Duration
	PolicyFile        string
	ReconcileSchedule string // cron spec; empty disables the job
	ReconcileRepair   bool
	Currency          string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvAsInt("PORT", 8080),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", false),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SQLitePath:        getEnv("SQLITE_PATH", "./data/ledger.db"),
		KafkaBrokers:      getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "ledger_events"),
		PolygonAPIKey:     getEnv("POLYGON_API_KEY", ""),
		StaticPrices:      getEnvAsList("STATIC_PRICES"),
		PolygonBaseURL:    getEnv("POLYGON_BASE_URL", "https://api.polygon.io"),
		PriceCachePath:    getEnv("PRICE_CACHE_PATH", "./data/price_cache.db"),
		PriceCacheTTL:     getEnvAsDuration("PRICE_CACHE_TTL", 15*time.Minute),
		LockTimeout:       getEnvAsDuration("LOCK_TIMEOUT", 5*time.Second),
		PolicyFile:        getEnv("POLICY_FILE", ""),
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "0 3 * * *"),
		ReconcileRepair:   getEnvAsBool("RECONCILE_REPAIR", true),
		Currency:          strings.ToUpper(getEnv("CURRENCY", money.USD)),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want memory, sqlite or postgres)", c.StoreDriver)
	}

	if c.LockTimeout < 0 {
		return fmt.Errorf("LOCK_TIMEOUT must not be negative")
	}
	if c.PriceCacheTTL <= 0 {
		return fmt.Errorf("PRICE_CACHE_TTL must be positive")
	}
	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			return fmt.Errorf("invalid RECONCILE_SCHEDULE %q: %w", c.ReconcileSchedule, err)
		}
	}
	if money.GetCurrency(c.Currency) == nil {
		return fmt.Errorf("unknown CURRENCY %q", c.Currency)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
