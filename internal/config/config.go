package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Job store backends.
const (
	JobStoreMemory = "memory"
	JobStoreSQLite = "sqlite"
)

// Config holds all runtime configuration for the depot broker.
type Config struct {
	Port     int
	LogLevel string

	ExchangeURL     string
	ExchangeTimeout time.Duration

	SplitThreshold       decimal.Decimal
	BatchValueCeiling    decimal.Decimal
	PlacementConcurrency int

	ReaperInterval     time.Duration
	ReaperRetryAfter   time.Duration
	TombstoneRetention time.Duration

	JobStore      string
	SQLitePath    string
	RedisAddr     string // empty keeps prices in memory
	RedisPassword string
	RedisDB       int
	SeedFile      string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	exchangeTimeout, err := getDuration("EXCHANGE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EXCHANGE_TIMEOUT: %w", err)
	}

	threshold, err := getPositiveDecimal("SPLIT_THRESHOLD", decimal.NewFromInt(10_000))
	if err != nil {
		return nil, fmt.Errorf("invalid SPLIT_THRESHOLD: %w", err)
	}

	ceiling, err := getPositiveDecimal("BATCH_VALUE_CEILING", decimal.NewFromInt(5_000))
	if err != nil {
		return nil, fmt.Errorf("invalid BATCH_VALUE_CEILING: %w", err)
	}

	concurrency, err := getInt("PLACEMENT_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid PLACEMENT_CONCURRENCY: %w", err)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("invalid PLACEMENT_CONCURRENCY: %d, must be at least 1", concurrency)
	}

	reaperInterval, err := getDuration("REAPER_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid REAPER_INTERVAL: %w", err)
	}
	if reaperInterval <= 0 {
		return nil, fmt.Errorf("invalid REAPER_INTERVAL: %v, must be positive", reaperInterval)
	}

	reaperRetryAfter, err := getDuration("REAPER_RETRY_AFTER", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid REAPER_RETRY_AFTER: %w", err)
	}

	retention, err := getDuration("TOMBSTONE_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid TOMBSTONE_RETENTION: %w", err)
	}

	jobStore := getStr("JOB_STORE", JobStoreMemory)
	if jobStore != JobStoreMemory && jobStore != JobStoreSQLite {
		return nil, fmt.Errorf("invalid JOB_STORE: %q, must be one of: memory, sqlite", jobStore)
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:                 port,
		LogLevel:             logLevel,
		ExchangeURL:          getStr("EXCHANGE_URL", "http://localhost:9000"),
		ExchangeTimeout:      exchangeTimeout,
		SplitThreshold:       threshold,
		BatchValueCeiling:    ceiling,
		PlacementConcurrency: concurrency,
		ReaperInterval:       reaperInterval,
		ReaperRetryAfter:     reaperRetryAfter,
		TombstoneRetention:   retention,
		JobStore:             jobStore,
		SQLitePath:           getStr("SQLITE_PATH", "data/jobs.db"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		SeedFile:             os.Getenv("SEED_FILE"),
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		ShutdownTimeout:      shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getPositiveDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s must be greater than 0", v)
	}
	return d, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
