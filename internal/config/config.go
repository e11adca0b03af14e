// Package config loads watcher configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
	CacheNone     = "none"
)

// Environment variables overriding file values.
const (
	EnvRPCURL             = "WATCHER_RPC_URL"
	EnvWSURL              = "WATCHER_WS_URL"
	EnvWebhookURL         = "WATCHER_WEBHOOK_URL"
	EnvNATSURL            = "WATCHER_NATS_URL"
	EnvNATSSubject        = "WATCHER_NATS_SUBJECT"
	EnvCacheBackend       = "WATCHER_CACHE_BACKEND"
	EnvPostgresDSN        = "WATCHER_POSTGRES_DSN"
	EnvRedisAddr          = "WATCHER_REDIS_ADDR"
	EnvRedisPassword      = "WATCHER_REDIS_PASSWORD"
	EnvRedisDB            = "WATCHER_REDIS_DB"
	EnvHistoryConcurrency = "WATCHER_HISTORY_CONCURRENCY"
	EnvLogLevel           = "WATCHER_LOG_LEVEL"
	EnvLogFormat          = "WATCHER_LOG_FORMAT"
	EnvMetricsAddr        = "WATCHER_METRICS_ADDR"
)

// RPCConfig configures the JSON-RPC HTTP client.
type RPCConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// WSConfig configures the subscription connection.
type WSConfig struct {
	URL               string        `yaml:"url"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
}

// WebhookConfig configures the chat webhook sink.
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// NATSConfig configures the optional NATS sink.
type NATSConfig struct {
	URL            string        `yaml:"url"`
	Subject        string        `yaml:"subject"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// CacheConfig selects the mint-origin cache backend.
type CacheConfig struct {
	Backend        string `yaml:"backend"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
}

// EnrichmentConfig tunes Create enrichment.
type EnrichmentConfig struct {
	OffChainTimeout    time.Duration `yaml:"offchain_timeout"`
	HistoryConcurrency int           `yaml:"history_concurrency"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the metrics listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Config aggregates all watcher configuration.
type Config struct {
	RPC        RPCConfig        `yaml:"rpc"`
	WS         WSConfig         `yaml:"ws"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	NATS       NATSConfig       `yaml:"nats"`
	Cache      CacheConfig      `yaml:"cache"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		RPC: RPCConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		WS: WSConfig{
			ReconnectDelay:    time.Second,
			MaxReconnectDelay: 30 * time.Second,
			MaxReconnects:     10,
			PingInterval:      30 * time.Second,
			ReadTimeout:       60 * time.Second,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			Subject:        "moonshot.launches",
			PublishTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			Backend:        CacheMemory,
			RedisKeyPrefix: "moonshot-watcher",
		},
		Enrichment: EnrichmentConfig{
			OffChainTimeout:    20 * time.Second,
			HistoryConcurrency: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if any),
// then dotenv files, then WATCHER_* environment variables. The result is validated.
func Load(path string, dotenv ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: unable to parse %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(dotenv...); err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from WATCHER_* environment variables.
func (c *Config) ApplyEnv() error {
	setString(&c.RPC.URL, EnvRPCURL)
	setString(&c.WS.URL, EnvWSURL)
	setString(&c.Webhook.URL, EnvWebhookURL)
	setString(&c.NATS.URL, EnvNATSURL)
	setString(&c.NATS.Subject, EnvNATSSubject)
	setString(&c.Cache.Backend, EnvCacheBackend)
	setString(&c.Cache.PostgresDSN, EnvPostgresDSN)
	setString(&c.Cache.RedisAddr, EnvRedisAddr)
	setString(&c.Cache.RedisPassword, EnvRedisPassword)
	setString(&c.Log.Level, EnvLogLevel)
	setString(&c.Log.Format, EnvLogFormat)
	setString(&c.Metrics.Addr, EnvMetricsAddr)

	if err := setInt(&c.Cache.RedisDB, EnvRedisDB); err != nil {
		return err
	}
	if err := setInt(&c.Enrichment.HistoryConcurrency, EnvHistoryConcurrency); err != nil {
		return err
	}
	return nil
}

// Validate ensures required fields are populated and durations are sane.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("config: rpc.url is required (%s)", EnvRPCURL)
	}
	if c.WS.URL == "" {
		return fmt.Errorf("config: ws.url is required (%s)", EnvWSURL)
	}
	if c.Webhook.URL == "" && c.NATS.URL == "" {
		return fmt.Errorf("config: at least one of webhook.url or nats.url is required")
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CachePostgres:
		if c.Cache.PostgresDSN == "" {
			return fmt.Errorf("config: cache.postgres_dsn is required for the postgres backend")
		}
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("config: cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}

	durations := map[string]time.Duration{
		"rpc.timeout":                 c.RPC.Timeout,
		"ws.reconnect_delay":          c.WS.ReconnectDelay,
		"ws.max_reconnect_delay":      c.WS.MaxReconnectDelay,
		"ws.ping_interval":            c.WS.PingInterval,
		"ws.read_timeout":             c.WS.ReadTimeout,
		"webhook.timeout":             c.Webhook.Timeout,
		"enrichment.offchain_timeout": c.Enrichment.OffChainTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.NATS.URL != "" && c.NATS.PublishTimeout <= 0 {
		return fmt.Errorf("config: nats.publish_timeout must be positive")
	}
	if c.RPC.MaxRetries < 0 {
		return fmt.Errorf("config: rpc.max_retries cannot be negative")
	}
	if c.WS.MaxReconnects < 0 {
		return fmt.Errorf("config: ws.max_reconnects cannot be negative")
	}
	if c.Enrichment.HistoryConcurrency <= 0 {
		return fmt.Errorf("config: enrichment.history_concurrency must be positive")
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", env, err)
	}
	*dst = n
	return nil
}
