package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MINDFUEL_IDENTITY_API_KEY", "env-key")
	t.Setenv("MINDFUEL_TRIVIA_BATCH_SIZE", "7")
	t.Setenv("REDIS_ADDR", "localhost:6380")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "8080"
logLevel: "info"
identityApiKey: "file-key"
triviaBatchSize: 5
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.IdentityAPIKey != "env-key" {
		t.Fatalf("identityApiKey = %q, want %q", cfg.IdentityAPIKey, "env-key")
	}
	if cfg.TriviaBatch != 7 {
		t.Fatalf("triviaBatchSize = %d, want 7", cfg.TriviaBatch)
	}
	if cfg.RedisAddr != "localhost:6380" {
		t.Fatalf("redisAddr = %q, want %q", cfg.RedisAddr, "localhost:6380")
	}
}

func TestLoadDefaultsUpstreamEndpoints(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "8080"
identityApiKey: "key"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.IdentityURL != DefaultIdentityURL {
		t.Fatalf("identityURL = %q, want default", cfg.IdentityURL)
	}
	if cfg.DocstoreURL != DefaultDocstoreURL {
		t.Fatalf("docstoreURL = %q, want default", cfg.DocstoreURL)
	}
	if cfg.TriviaBatch != 5 {
		t.Fatalf("triviaBatchSize = %d, want 5", cfg.TriviaBatch)
	}
}

func TestLoadRejectsMissingPort(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(`identityApiKey: "key"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Fatal("expected error for missing port")
	}
}

func TestParseDurations(t *testing.T) {
	ttl, err := ParseSessionTTL("")
	if err != nil || ttl != 30*time.Minute {
		t.Fatalf("ParseSessionTTL default = %v, %v", ttl, err)
	}
	quiet, err := ParseSearchQuiet("250ms")
	if err != nil || quiet != 250*time.Millisecond {
		t.Fatalf("ParseSearchQuiet = %v, %v", quiet, err)
	}
	if _, err := ParseSearchQuiet("bogus"); err == nil {
		t.Fatal("expected error for bad quiet period")
	}
}
