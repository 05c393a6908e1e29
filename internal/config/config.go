package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	BlobBackendPostgres = "postgres"
	BlobBackendRedis    = "redis"
	BlobBackendMemory   = "memory"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"salons"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"salons"`

	// Durable blob store backing the index, progress and stop records.
	BlobBackend   string `envconfig:"BLOB_BACKEND" default:"postgres"`
	BlobKeyPrefix string `envconfig:"BLOB_KEY_PREFIX" default:"salonindex:"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// When false, enrichment runs are executed in a detached goroutine of the
	// API process instead of being queued for a worker.
	EnableQueue bool `envconfig:"ENABLE_QUEUE" default:"true"`

	EnableAPI          bool   `envconfig:"ENABLE_API" default:"true"`
	EnableEnrichWorker bool   `envconfig:"ENABLE_ENRICH_WORKER" default:"false"`
	MigrationPath      string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Index
	IndexScanConcurrency int           `envconfig:"INDEX_SCAN_CONCURRENCY" default:"8"`
	IndexRebuildInterval time.Duration `envconfig:"INDEX_REBUILD_INTERVAL" default:"0"`
	RegionsFile          string        `envconfig:"REGIONS_FILE" default:"regions.yaml"`

	// Enrichment
	GeminiAPIKey        string `envconfig:"GEMINI_API_KEY"`
	GeminiModel         string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	EnrichRatePerMinute int    `envconfig:"ENRICH_RATE_PER_MINUTE" default:"30"`
	ProgressLogCap      int    `envconfig:"PROGRESS_LOG_CAP" default:"100"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/index_query.log"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win over .env files
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	switch c.BlobBackend {
	case BlobBackendPostgres, BlobBackendMemory:
	case BlobBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: REDIS_ADDR", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: BLOB_BACKEND=%q", ErrInvalidValue, c.BlobBackend)
	}

	if c.EnrichRatePerMinute < 0 {
		return fmt.Errorf("%w: ENRICH_RATE_PER_MINUTE must not be negative", ErrInvalidValue)
	}
	if c.IndexScanConcurrency < 0 {
		return fmt.Errorf("%w: INDEX_SCAN_CONCURRENCY must not be negative", ErrInvalidValue)
	}
	return nil
}

// ServerAddr is the listen address for the HTTP API.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
