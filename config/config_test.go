package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  url: postgres://localhost:5432/dispatchflow
auth:
  jwt_secret: test-secret
field:
  token_salt: test-salt
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost:5432/dispatchflow" {
		t.Errorf("unexpected database url %q", cfg.Database.URL)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected default http addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.Quote.ExpiresMinutes != 120 {
		t.Errorf("expected default quote window 120, got %d", cfg.Quote.ExpiresMinutes)
	}
	if cfg.Field.SessionExpiresMinutes != 240 {
		t.Errorf("expected default session expiry 240, got %d", cfg.Field.SessionExpiresMinutes)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  url: postgres://localhost:5432/dispatchflow
auth:
  jwt_secret: test-secret
field:
  token_salt: test-salt
`)

	t.Setenv("DF_HTTP__ADDR", ":9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("expected env override :9090, got %q", cfg.HTTP.Addr)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		path := writeConfig(t, "config.toml", "")
		if _, err := Load(path); err == nil {
			t.Fatalf("expected error for unsupported format")
		}
	})

	t.Run("missing database url", func(t *testing.T) {
		path := writeConfig(t, "config.yaml", `
auth:
  jwt_secret: test-secret
field:
  token_salt: test-salt
`)
		if _, err := Load(path); err == nil {
			t.Fatalf("expected error for missing database url")
		}
	})
}
