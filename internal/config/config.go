package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string           `yaml:"listenAddr"`
	Redis      RedisConfig      `yaml:"redis"`
	Audit      AuditConfig      `yaml:"audit"`
	Status     StatusConfig     `yaml:"status"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	CloudRetry RetryConfig      `yaml:"cloudRetry"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuditConfig struct {
	TTLSeconds int64 `yaml:"ttlSeconds"`
	ScanCount  int64 `yaml:"scanCount"`
}

type StatusConfig struct {
	TTLSeconds int64 `yaml:"ttlSeconds"`
}

type KubernetesConfig struct {
	Kubeconfig string `yaml:"kubeconfig"`
	Namespace  string `yaml:"namespace"`
}

type RetryConfig struct {
	MaxAttempts     int   `yaml:"maxAttempts"`
	BaseDelayMillis int64 `yaml:"baseDelayMillis"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Audit: AuditConfig{
			TTLSeconds: 172800, // two days
			ScanCount:  100,
		},
		Status: StatusConfig{
			TTLSeconds: 900,
		},
		Kubernetes: KubernetesConfig{
			Namespace: "default",
		},
		CloudRetry: RetryConfig{
			MaxAttempts:     3,
			BaseDelayMillis: 250,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides, in that precedence order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ListenAddr = envOr("AUTOSCALER_LISTEN_ADDR", cfg.ListenAddr)
	cfg.Redis.Addr = envOr("AUTOSCALER_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envOr("AUTOSCALER_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envInt("AUTOSCALER_REDIS_DB", cfg.Redis.DB)
	cfg.Audit.TTLSeconds = envInt64("AUTOSCALER_AUDIT_TTL_SECONDS", cfg.Audit.TTLSeconds)
	cfg.Audit.ScanCount = envInt64("AUTOSCALER_AUDIT_SCAN_COUNT", cfg.Audit.ScanCount)
	cfg.Status.TTLSeconds = envInt64("AUTOSCALER_STATUS_TTL_SECONDS", cfg.Status.TTLSeconds)
	cfg.Kubernetes.Kubeconfig = envOr("AUTOSCALER_KUBECONFIG", cfg.Kubernetes.Kubeconfig)
	cfg.Kubernetes.Namespace = envOr("AUTOSCALER_KUBE_NAMESPACE", cfg.Kubernetes.Namespace)
	cfg.CloudRetry.MaxAttempts = envInt("AUTOSCALER_CLOUD_RETRY_MAX_ATTEMPTS", cfg.CloudRetry.MaxAttempts)
	cfg.CloudRetry.BaseDelayMillis = envInt64("AUTOSCALER_CLOUD_RETRY_BASE_DELAY_MILLIS", cfg.CloudRetry.BaseDelayMillis)
	return cfg, nil
}

func (c Config) AuditTTL() time.Duration {
	return time.Duration(c.Audit.TTLSeconds) * time.Second
}

func (c Config) StatusTTL() time.Duration {
	return time.Duration(c.Status.TTLSeconds) * time.Second
}

func (c Config) CloudRetryBaseDelay() time.Duration {
	return time.Duration(c.CloudRetry.BaseDelayMillis) * time.Millisecond
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
