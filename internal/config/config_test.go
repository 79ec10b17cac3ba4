package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SLIDIFY_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SLIDIFY_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("SLIDIFY_JWT_SIGNING_KEY", "supersecret")
}

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	setRequired(t)
	t.Setenv("SLIDIFY_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.MaxUploadSizeBytes() != 10<<20 {
		t.Fatalf("unexpected default per-file limit: %d", cfg.MaxUploadSizeBytes())
	}
	if cfg.CollabPollInterval != 30*time.Second {
		t.Fatalf("unexpected poll interval: %v", cfg.CollabPollInterval)
	}
}

func TestLoadFallsBackToDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("SLIDIFY_DB_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/slidify")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN != "postgres://localhost/slidify" {
		t.Fatalf("unexpected dsn: %q", cfg.DBDSN)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	setRequired(t)
	t.Setenv("SLIDIFY_JWT_SIGNING_KEY", "")

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("SLIDIFY_JWT_SIGNING_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SLIDIFY_ENV_FILE", path)
	// godotenv never overrides variables that are already present, so unset it entirely.
	os.Unsetenv("SLIDIFY_JWT_SIGNING_KEY")
	t.Cleanup(func() { os.Unsetenv("SLIDIFY_JWT_SIGNING_KEY") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.JWTSigningKey != "from-file" {
		t.Fatalf("expected key from env file, got %q", cfg.JWTSigningKey)
	}
}

func TestLoadRejectsUnknownEventBus(t *testing.T) {
	setRequired(t)
	t.Setenv("SLIDIFY_EVENT_BUS", "kafka")

	if _, err := Load(); err == nil {
		t.Fatal("expected unsupported event bus to fail")
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SIGNING_KEY", "legacy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadProductionRequiresPublicBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("SLIDIFY_ENV", "production")
	t.Setenv("SLIDIFY_JWT_SIGNING_KEY", "0123456789abcdef0123456789abcdef")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a public base URL")
	}

	t.Setenv("SLIDIFY_PUBLIC_BASE_URL", "https://slidify.example.com/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected production config load to succeed: %v", err)
	}
	if cfg.PublicBaseURL != "https://slidify.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.PublicBaseURL)
	}
}
