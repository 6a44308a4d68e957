package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if resolved != path {
		t.Errorf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Addr != Default().Addr {
		t.Errorf("expected default addr, got %s", cfg.Addr)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected default config written to %s: %v", path, err)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("addr: \":9999\"\ntyping_ttl: 10s\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("expected addr :9999 from file, got %s", cfg.Addr)
	}
	if cfg.TypingTTL != 10*time.Second {
		t.Errorf("expected typing_ttl 10s from file, got %s", cfg.TypingTTL)
	}
	// Untouched keys keep their defaults.
	if cfg.JWTIssuer != Default().JWTIssuer {
		t.Errorf("expected default jwt_issuer, got %s", cfg.JWTIssuer)
	}
}
