// Package config loads application configuration from an optional YAML file
// overlaid by environment variables, so deployments can ship a base file and
// override per-environment values without editing it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s", "5m".
type Duration time.Duration

// UnmarshalYAML parses either a duration string ("250ms") or integer seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("duration must be a string or integer seconds")
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Admin    AdminConfig    `yaml:"admin"`
	Website  WebsiteConfig  `yaml:"website"`
	Receipts ReceiptsConfig `yaml:"receipts"`
	Loader   LoaderConfig   `yaml:"loader"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	PublicRateRPS   float64  `yaml:"public_rate_rps"`
	PublicRateBurst int      `yaml:"public_rate_burst"`
}

// LoggerConfig controls the slog handler built at startup.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig controls OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout or noop
}

// PostgresConfig configures the shared Postgres connection.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig configures the shared Redis client.
// An empty URL means Redis is not configured.
type RedisConfig struct {
	URL          string   `yaml:"url"`
	PoolSize     int      `yaml:"pool_size"`
	MinIdleConns int      `yaml:"min_idle_conns"`
	DialTimeout  Duration `yaml:"dial_timeout"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// AdminConfig protects the runtime-config ingest surface.
type AdminConfig struct {
	JWTSigningKey string   `yaml:"jwt_signing_key"`
	Issuer        string   `yaml:"issuer"`
	TokenTTL      Duration `yaml:"token_ttl"`
}

// WebsiteConfig selects the runtime-config document store.
type WebsiteConfig struct {
	Store    string   `yaml:"store"` // memory or postgres
	CacheTTL Duration `yaml:"cache_ttl"`
}

// ReceiptsConfig controls the consent-receipt pipeline.
type ReceiptsConfig struct {
	Store         string      `yaml:"store"` // memory or postgres
	Buffer        int         `yaml:"buffer"`
	DedupWindow   Duration    `yaml:"dedup_window"`
	Retention     Duration    `yaml:"retention"`
	SweepSchedule string      `yaml:"sweep_schedule"` // cron spec, e.g. "@hourly"
	Kafka         KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the optional receipt Kafka sink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoaderConfig tunes the consent engine embedded by hosts.
type LoaderConfig struct {
	UntaggedPolicy     string   `yaml:"untagged_policy"` // allow_resolved, allow_always, block_always
	ConfigTimeout      Duration `yaml:"config_timeout"`
	MaxConfigBytes     int64    `yaml:"max_config_bytes"`
	BreakerMaxFailures uint32   `yaml:"breaker_max_failures"`
	BreakerTimeout     Duration `yaml:"breaker_timeout"`
	BreakerInterval    Duration `yaml:"breaker_interval"`
}

// GatewayConfig enables the edge gateway host in front of a customer site.
type GatewayConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Upstream       string `yaml:"upstream"`
	SiteID         string `yaml:"site_id"`
	RuntimeBaseURL string `yaml:"runtime_base_url"` // where to fetch runtime configs; defaults to self
	SealKeyHex     string `yaml:"seal_key"`         // 32-byte hex key for the consent cookie sealer
	CookieSecure   bool   `yaml:"cookie_secure"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			PublicRateRPS:   50,
			PublicRateBurst: 100,
		},
		Logger: LoggerConfig{Level: "info", Format: "json", Output: "stdout"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		Admin: AdminConfig{
			// Development default; override in production.
			JWTSigningKey: "dev-secret-key-change-in-production",
			Issuer:        "assent",
			TokenTTL:      Duration(time.Hour),
		},
		Website: WebsiteConfig{Store: "memory", CacheTTL: Duration(5 * time.Minute)},
		Receipts: ReceiptsConfig{
			Store:         "memory",
			Buffer:        256,
			DedupWindow:   Duration(time.Minute),
			Retention:     Duration(365 * 24 * time.Hour),
			SweepSchedule: "@hourly",
			Kafka:         KafkaConfig{Topic: "assent.receipts.v1"},
		},
		Loader: LoaderConfig{
			UntaggedPolicy:     "allow_resolved",
			ConfigTimeout:      Duration(5 * time.Second),
			MaxConfigBytes:     1 << 20,
			BreakerMaxFailures: 5,
			BreakerTimeout:     Duration(30 * time.Second),
			BreakerInterval:    Duration(60 * time.Second),
		},
		Gateway: GatewayConfig{MaxBodyBytes: 4 << 20},
	}
}

// applyEnv overlays environment variables onto the configuration. Only the
// knobs that differ per deployment get an environment override.
func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "ASSENT_ADDR")
	setString(&c.Logger.Level, "ASSENT_LOG_LEVEL")
	setString(&c.Logger.Format, "ASSENT_LOG_FORMAT")
	setString(&c.Postgres.URL, "ASSENT_POSTGRES_URL")
	setString(&c.Redis.URL, "ASSENT_REDIS_URL")
	setString(&c.Admin.JWTSigningKey, "ASSENT_ADMIN_JWT_KEY")
	setString(&c.Website.Store, "ASSENT_WEBSITE_STORE")
	setString(&c.Receipts.Store, "ASSENT_RECEIPTS_STORE")
	setString(&c.Gateway.Upstream, "ASSENT_GATEWAY_UPSTREAM")
	setString(&c.Gateway.SiteID, "ASSENT_GATEWAY_SITE_ID")
	setString(&c.Gateway.SealKeyHex, "ASSENT_SEAL_KEY")
	setBool(&c.Gateway.Enabled, "ASSENT_GATEWAY_ENABLED")
	setBool(&c.Tracer.Enabled, "ASSENT_TRACER_ENABLED")
	setBool(&c.Receipts.Kafka.Enabled, "ASSENT_KAFKA_ENABLED")

	if v := os.Getenv("ASSENT_KAFKA_BROKERS"); v != "" {
		c.Receipts.Kafka.Brokers = strings.Split(v, ",")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err == nil {
			*dst = parsed
		}
	}
}

// Validate rejects configurations that cannot possibly serve.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	switch c.Website.Store {
	case "memory", "postgres":
	default:
		return fmt.Errorf("website.store must be memory or postgres, got %q", c.Website.Store)
	}
	switch c.Receipts.Store {
	case "memory", "postgres":
	default:
		return fmt.Errorf("receipts.store must be memory or postgres, got %q", c.Receipts.Store)
	}
	if c.Website.Store == "postgres" || c.Receipts.Store == "postgres" {
		if c.Postgres.URL == "" {
			return fmt.Errorf("postgres.url is required when a postgres store is selected")
		}
	}
	switch c.Loader.UntaggedPolicy {
	case "allow_resolved", "allow_always", "block_always":
	default:
		return fmt.Errorf("loader.untagged_policy must be allow_resolved, allow_always, or block_always, got %q", c.Loader.UntaggedPolicy)
	}
	if c.Receipts.Kafka.Enabled && len(c.Receipts.Kafka.Brokers) == 0 {
		return fmt.Errorf("receipts.kafka.brokers must not be empty when the kafka sink is enabled")
	}
	if c.Gateway.Enabled {
		if c.Gateway.Upstream == "" {
			return fmt.Errorf("gateway.upstream is required when the gateway is enabled")
		}
		if c.Gateway.SiteID == "" {
			return fmt.Errorf("gateway.site_id is required when the gateway is enabled")
		}
		if c.Gateway.SealKeyHex == "" {
			return fmt.Errorf("gateway.seal_key is required when the gateway is enabled")
		}
	}
	return nil
}
