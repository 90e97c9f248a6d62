package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "calls"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Media: MediaConfig{WebhookSecret: "hook", CredentialSecret: "media"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected error for production without DB_SSLMODE, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Call.FreeAllowanceSeconds != 900 || c.Call.ExtensionSeconds != 600 {
		t.Fatalf("unexpected call defaults: %+v", c.Call)
	}
	if c.Call.NoShowWarningAfter != 3*time.Minute || c.Call.NoShowHardAfter != 5*time.Minute {
		t.Fatalf("unexpected no-show defaults: %+v", c.Call)
	}
	if c.Call.DisconnectGrace != 30*time.Second || c.Call.MaxActivePerUser != 1 {
		t.Fatalf("unexpected defaults: %+v", c.Call)
	}
	if c.Signaling.Backend != SignalingRedis {
		t.Fatalf("expected redis signaling by default, got %q", c.Signaling.Backend)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected access ttl default, got %v", c.Auth.AccessTokenTTL)
	}
}

func TestValidate_RejectsInvertedNoShowThresholds(t *testing.T) {
	c := validLocal()
	c.Call.NoShowWarningAfter = 5 * time.Minute
	c.Call.NoShowHardAfter = 3 * time.Minute
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for hard threshold before warning")
	}
}

func TestValidate_MemorySignalingNotInProduction(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.Signaling.Backend = SignalingMemory
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "SIGNALING_BACKEND") {
		t.Fatalf("expected signaling backend error, got %v", err)
	}
}

func TestValidate_MediaSecretMustDifferFromJWT(t *testing.T) {
	c := validLocal()
	c.Media.CredentialSecret = c.Auth.JWTSecret
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for shared secret")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "calls")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MEDIA_WEBHOOK_SECRET", "hook")
	t.Setenv("MEDIA_CREDENTIAL_SECRET", "media")
	t.Setenv("CALL_EXTENSION_SECONDS", "300")
	t.Setenv("CALL_DISCONNECT_GRACE", "45s")
	t.Setenv("SIGNALING_BACKEND", "memory")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9090" || c.RedisAddr() != "cache:6379" {
		t.Fatalf("unexpected addrs: %s %s", c.HTTPAddr(), c.RedisAddr())
	}
	if c.Call.ExtensionSeconds != 300 || c.Call.DisconnectGrace != 45*time.Second {
		t.Fatalf("unexpected call config: %+v", c.Call)
	}
	if c.Signaling.Backend != SignalingMemory {
		t.Fatalf("expected memory backend, got %q", c.Signaling.Backend)
	}
}

func TestLoad_RejectsBadInteger(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("CALL_EXTENSION_SECONDS", "ten")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
