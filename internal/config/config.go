// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAPIURL is the consent directory base URL used when KVKK_API_URL is unset.
const DefaultAPIURL = "https://37.9.200.138:1002/api/cari"

// Config holds application configuration loaded from the environment.
type Config struct {
	// APIURL is the consent directory base URL; the access key and /kvkk are appended per request.
	APIURL string `mapstructure:"KVKK_API_URL"`
	// APIKey is the access key embedded in the request path. Never logged.
	APIKey string `mapstructure:"KVKK_API_KEY"`
	// RequestTimeoutRaw bounds every directory request (e.g. "15s").
	RequestTimeoutRaw string `mapstructure:"KVKK_REQUEST_TIMEOUT"`
	// LookupRetries is how many times a failed lookup or update is retried. Creates are never retried.
	LookupRetries int `mapstructure:"KVKK_LOOKUP_RETRIES"`
	// TLSInsecure skips certificate verification for directories on a bare IP. Refused in production.
	TLSInsecure bool `mapstructure:"KVKK_TLS_INSECURE"`

	// Host context used when no bundle file is given.
	HostToken          string `mapstructure:"HOST_TOKEN"`
	HostRequesterPhone string `mapstructure:"HOST_REQUESTER_PHONE"`
	// HostBundleFile is a JSON file with the host bundle; takes precedence over HOST_TOKEN.
	HostBundleFile string `mapstructure:"HOST_BUNDLE_FILE"`

	// AuditPhoneKey keys the phone digest in audit events and logs; empty falls back to plain SHA-256.
	AuditPhoneKey string `mapstructure:"AUDIT_PHONE_KEY"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the collector address; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When set, audit events are also published to Kafka.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path.
func LoadFile(envFile string) (*Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // ignore ErrConfigFileNotFound
	}

	v.AutomaticEnv()

	v.SetDefault("KVKK_API_URL", DefaultAPIURL)
	v.SetDefault("KVKK_API_KEY", "")
	v.SetDefault("KVKK_REQUEST_TIMEOUT", "15s")
	v.SetDefault("KVKK_LOOKUP_RETRIES", 2)
	v.SetDefault("KVKK_TLS_INSECURE", false)
	v.SetDefault("HOST_TOKEN", "")
	v.SetDefault("HOST_REQUESTER_PHONE", "")
	v.SetDefault("HOST_BUNDLE_FILE", "")
	v.SetDefault("AUDIT_PHONE_KEY", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "kvkk-permits")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "kvkk-consent-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "kvkk-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.APIURL = strings.TrimSuffix(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		return errors.New("config: KVKK_API_URL must be set")
	}
	d, err := time.ParseDuration(c.RequestTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: KVKK_REQUEST_TIMEOUT: %w", err)
	}
	if d <= 0 {
		return errors.New("config: KVKK_REQUEST_TIMEOUT must be positive")
	}
	if c.LookupRetries < 0 {
		return errors.New("config: KVKK_LOOKUP_RETRIES must not be negative")
	}
	if c.TLSInsecure && c.Production() {
		return errors.New("config: KVKK_TLS_INSECURE must not be true when APP_ENV=production")
	}
	return nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// RequestTimeout parses RequestTimeoutRaw. Returns 15s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeoutRaw)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means Kafka publishing is off.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
