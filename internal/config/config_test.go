package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ListenAddr != ":3000" {
		t.Fatalf("expected :3000, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Cache.SweepInterval != time.Second {
		t.Fatalf("expected 1s sweep interval, got %s", cfg.Cache.SweepInterval)
	}
	if cfg.Auth.Enabled {
		t.Fatal("auth should be disabled by default")
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvcache.yaml")
	data := []byte(`
server:
  listen_addr: ":9000"
  log_format: json
cache:
  sweep_interval: 250ms
  max_keys: 1000
auth:
  enabled: true
  api_keys:
    - name: ci
      key: s3cret
invalidation:
  redis_addr: "redis:6379"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogFormat != "json" {
		t.Fatalf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Server.LogLevel != "info" {
		t.Fatalf("unset fields should keep defaults, got %q", cfg.Server.LogLevel)
	}
	if cfg.Cache.SweepInterval != 250*time.Millisecond || cfg.Cache.MaxKeys != 1000 {
		t.Fatalf("cache section not applied: %+v", cfg.Cache)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].Key != "s3cret" {
		t.Fatalf("auth keys not applied: %+v", cfg.Auth)
	}
	if cfg.Invalidation.RedisAddr != "redis:6379" || cfg.Invalidation.Channel != "kvcache:invalidate" {
		t.Fatalf("invalidation section not applied: %+v", cfg.Invalidation)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("KVCACHE_LISTEN_ADDR", "127.0.0.1:7000")
	t.Setenv("KVCACHE_SWEEP_INTERVAL", "2s")
	t.Setenv("KVCACHE_API_KEYS", "alice:k1, bob:k2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:7000" {
		t.Fatalf("unexpected listen addr %q", cfg.Server.ListenAddr)
	}
	if cfg.Cache.SweepInterval != 2*time.Second {
		t.Fatalf("unexpected sweep interval %s", cfg.Cache.SweepInterval)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys[1].Name != "bob" {
		t.Fatalf("unexpected auth config %+v", cfg.Auth)
	}
}

func TestLoadFromEnv_Port(t *testing.T) {
	t.Setenv("PORT", "4000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ListenAddr != ":4000" {
		t.Fatalf("expected :4000, got %q", cfg.Server.ListenAddr)
	}
}

func TestLoadFromEnv_Malformed(t *testing.T) {
	t.Setenv("KVCACHE_MAX_KEYS", "lots")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for malformed KVCACHE_MAX_KEYS")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("auth without keys should be rejected")
	}

	cfg = DefaultConfig()
	cfg.Tracing.SampleRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("sample rate above 1 should be rejected")
	}
}
