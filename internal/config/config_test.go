package config

import (
	"strings"
	"testing"
	"time"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("COLLABDOC_BASE_URL", "https://docs.example.com")
	t.Setenv("COLLABDOC_PG_DSN", "postgres://localhost/collabdoc")
	t.Setenv("COLLABDOC_JWT_SECRET", "test-secret")
	t.Setenv("COLLABDOC_JWT_ISSUER", "collabdoc")
	t.Setenv("COLLABDOC_JWT_AUDIENCE", "collabdoc-clients")
	t.Setenv("COLLABDOC_ACCESS_TOKEN_TTL_HOURS", "1")
	t.Setenv("COLLABDOC_REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("COLLABDOC_SENDGRID_API_KEY", "SG.test")
	t.Setenv("COLLABDOC_EMAIL_FROM", "noreply@example.com")
	t.Setenv("COLLABDOC_EMAIL_FROM_NAME", "Collabdoc")
}

func TestLoad(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWT.AccessTTL != time.Hour {
		t.Fatalf("unexpected access ttl: %v", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.JWT.RefreshTTL)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default addr, got %s", cfg.HTTPAddr)
	}
	if cfg.Email.RetryCount != 3 || cfg.Email.RetryDelay != time.Second {
		t.Fatalf("unexpected email retry defaults: %d %v", cfg.Email.RetryCount, cfg.Email.RetryDelay)
	}
	if cfg.Email.Sandbox {
		t.Fatal("sandbox should default to false")
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setValidEnv(t)
	t.Setenv("COLLABDOC_JWT_SECRET", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "COLLABDOC_JWT_SECRET") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	setValidEnv(t)
	t.Setenv("COLLABDOC_ACCESS_TOKEN_TTL_HOURS", "0")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "COLLABDOC_ACCESS_TOKEN_TTL_HOURS") {
		t.Fatalf("expected positive ttl error, got %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	setValidEnv(t)
	t.Setenv("COLLABDOC_HTTP_ADDR", ":9090")
	t.Setenv("COLLABDOC_EMAIL_RETRY_COUNT", "5")
	t.Setenv("COLLABDOC_EMAIL_RETRY_DELAY_MS", "250")
	t.Setenv("COLLABDOC_EMAIL_SANDBOX", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.HTTPAddr)
	}
	if cfg.Email.RetryCount != 5 || cfg.Email.RetryDelay != 250*time.Millisecond {
		t.Fatalf("unexpected retry settings: %d %v", cfg.Email.RetryCount, cfg.Email.RetryDelay)
	}
	if !cfg.Email.Sandbox {
		t.Fatal("expected sandbox enabled")
	}
}
