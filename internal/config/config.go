/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects how change notifications travel between instances.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

const defaultPublicBaseURL = "http://localhost:8080"

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	PublicBaseURL string // Base for share links (e.g. https://slidify.app)
	DBBackend     DatabaseBackend
	DBDSN         string
	MediaRoot     string
	JWTSigningKey string
	TokenTTL      time.Duration
	MetricsBind   string

	// Shared secret for signed billing status webhooks; empty disables the endpoint.
	BillingWebhookSecret string

	// Upload limits
	MaxUploadSizeMB      int // per file
	MaxBatchFiles        int
	MaxBatchSizeMB       int
	FreeImageLimit       int
	PremiumImageLimit    int
	ThumbnailWidth       int
	UploadWorkers        int
	CollabPollInterval   time.Duration
	NotificationDebounce time.Duration

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN URL
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Cache and event bus
	EventBus      EventBusBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	InstanceID    string

	LegacyEnvWarnings []string
}

// Load reads an optional .env file and environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	envFile := getEnv("SLIDIFY_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	cfg := &Config{
		Environment:   getEnvAny([]string{"SLIDIFY_ENV", "APP_ENV"}, "development"),
		HTTPBind:      getEnv("SLIDIFY_HTTP_BIND", "0.0.0.0"),
		HTTPPort:      getEnvInt("SLIDIFY_HTTP_PORT", 8080),
		PublicBaseURL: strings.TrimRight(getEnv("SLIDIFY_PUBLIC_BASE_URL", defaultPublicBaseURL), "/"),
		DBBackend:     DatabaseBackend(getEnv("SLIDIFY_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"SLIDIFY_DB_DSN", "DATABASE_URL"}, ""),
		MediaRoot:     getEnv("SLIDIFY_MEDIA_ROOT", "./media"),
		JWTSigningKey: getEnv("SLIDIFY_JWT_SIGNING_KEY", ""),
		TokenTTL:      time.Duration(getEnvInt("SLIDIFY_TOKEN_TTL_HOURS", 24*7)) * time.Hour,
		MetricsBind:   getEnv("SLIDIFY_METRICS_BIND", "127.0.0.1:9000"),

		BillingWebhookSecret: getEnv("SLIDIFY_BILLING_WEBHOOK_SECRET", ""),

		MaxUploadSizeMB:      getEnvInt("SLIDIFY_MAX_UPLOAD_SIZE_MB", 10),
		MaxBatchFiles:        getEnvInt("SLIDIFY_MAX_BATCH_FILES", 10),
		MaxBatchSizeMB:       getEnvInt("SLIDIFY_MAX_BATCH_SIZE_MB", 50),
		FreeImageLimit:       getEnvInt("SLIDIFY_FREE_IMAGE_LIMIT", 15),
		PremiumImageLimit:    getEnvInt("SLIDIFY_PREMIUM_IMAGE_LIMIT", 100),
		ThumbnailWidth:       getEnvInt("SLIDIFY_THUMBNAIL_WIDTH", 320),
		UploadWorkers:        getEnvInt("SLIDIFY_UPLOAD_WORKERS", 4),
		CollabPollInterval:   time.Duration(getEnvInt("SLIDIFY_COLLAB_POLL_SECONDS", 30)) * time.Second,
		NotificationDebounce: time.Duration(getEnvInt("SLIDIFY_NOTIFICATION_DEBOUNCE_MS", 500)) * time.Millisecond,

		S3AccessKeyID:     getEnvAny([]string{"SLIDIFY_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SLIDIFY_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SLIDIFY_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnv("SLIDIFY_S3_BUCKET", ""),
		S3Endpoint:        getEnvAny([]string{"SLIDIFY_S3_ENDPOINT", "AWS_ENDPOINT_URL"}, ""),
		S3PublicBaseURL:   getEnv("SLIDIFY_S3_PUBLIC_BASE_URL", ""),
		S3UsePathStyle:    getEnvBool("SLIDIFY_S3_USE_PATH_STYLE", false),

		TracingEnabled:    getEnvBool("SLIDIFY_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SLIDIFY_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SLIDIFY_TRACING_SAMPLE_RATE", 1.0),

		EventBus:      EventBusBackend(getEnv("SLIDIFY_EVENT_BUS", string(EventBusMemory))),
		RedisAddr:     getEnv("SLIDIFY_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("SLIDIFY_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("SLIDIFY_REDIS_DB", 0),
		NATSURL:       getEnv("SLIDIFY_NATS_URL", "nats://localhost:4222"),
		InstanceID:    getEnv("SLIDIFY_INSTANCE_ID", ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SLIDIFY_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SLIDIFY_JWT_SIGNING_KEY must be provided")
	}

	if cfg.MaxUploadSizeMB <= 0 || cfg.MaxBatchFiles <= 0 || cfg.MaxBatchSizeMB <= 0 {
		return nil, fmt.Errorf("upload limits must be positive")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.PublicBaseURL == defaultPublicBaseURL {
			return nil, fmt.Errorf("SLIDIFY_PUBLIC_BASE_URL must be set in production")
		}
		if len(cfg.JWTSigningKey) < 32 {
			return nil, fmt.Errorf("SLIDIFY_JWT_SIGNING_KEY must be at least 32 characters in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"JWT_SIGNING_KEY": "use SLIDIFY_JWT_SIGNING_KEY",
		"BASE_URL":        "use SLIDIFY_PUBLIC_BASE_URL",
		"REDIS_URL":       "use SLIDIFY_REDIS_ADDR",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// MaxUploadSizeBytes returns the per-file upload ceiling in bytes.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadSizeMB) << 20
}

// MaxBatchSizeBytes returns the cumulative batch ceiling in bytes.
func (c *Config) MaxBatchSizeBytes() int64 {
	if c == nil || c.MaxBatchSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxBatchSizeMB) << 20
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}
