package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("Expected default listen addr, got %s", cfg.ListenAddr)
	}
	if cfg.StatusTTL() != 15*time.Minute {
		t.Errorf("Expected 900s status TTL, got %v", cfg.StatusTTL())
	}
	if cfg.AuditTTL() != 48*time.Hour {
		t.Errorf("Expected 48h audit TTL, got %v", cfg.AuditTTL())
	}
	if cfg.Audit.ScanCount != 100 {
		t.Errorf("Expected scan count 100, got %d", cfg.Audit.ScanCount)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
listenAddr: ":9090"
redis:
  addr: "redis.internal:6379"
  db: 2
audit:
  ttlSeconds: 3600
  scanCount: 25
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("Expected listen addr from file, got %s", cfg.ListenAddr)
	}
	if cfg.Redis.Addr != "redis.internal:6379" || cfg.Redis.DB != 2 {
		t.Errorf("Unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.AuditTTL() != time.Hour || cfg.Audit.ScanCount != 25 {
		t.Errorf("Unexpected audit config: %+v", cfg.Audit)
	}
	// Untouched sections keep their defaults.
	if cfg.Status.TTLSeconds != 900 {
		t.Errorf("Expected default status TTL, got %d", cfg.Status.TTLSeconds)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("AUTOSCALER_REDIS_ADDR", "env-redis:6379")
	t.Setenv("AUTOSCALER_AUDIT_TTL_SECONDS", "60")
	t.Setenv("AUTOSCALER_CLOUD_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("AUTOSCALER_CLOUD_RETRY_BASE_DELAY_MILLIS", "100")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Redis.Addr != "env-redis:6379" {
		t.Errorf("Expected env override, got %s", cfg.Redis.Addr)
	}
	if cfg.AuditTTL() != time.Minute {
		t.Errorf("Expected env audit TTL, got %v", cfg.AuditTTL())
	}
	if cfg.CloudRetry.MaxAttempts != 5 {
		t.Errorf("Expected env retry attempts, got %d", cfg.CloudRetry.MaxAttempts)
	}
	if cfg.CloudRetryBaseDelay() != 100*time.Millisecond {
		t.Errorf("Expected env retry base delay, got %v", cfg.CloudRetryBaseDelay())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("Load() with a missing file should fail")
	}
}
