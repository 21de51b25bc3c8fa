package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort          = 50051
	DefaultHTTPPort          = 8080
	DefaultSnapshotTTL       = 15 * time.Minute
	DefaultQueue             = "churn.batches"
	DefaultBrokerURLEnv      = "CHURN_BROKER_URL"
	DefaultPrefetch          = 10
	DefaultDSNEnv            = "CHURN_DATABASE_URL"
	DefaultRetention         = 30 * 24 * time.Hour
	DefaultRetentionInterval = time.Hour
	DefaultLogLevel          = "info"
)

// Storage backends.
const (
	BackendNone     = "none"
	BackendPostgres = "postgres"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// GRPCPort serves the gRPC health protocol (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates REST and gRPC clients.
	Auth AuthConfig `yaml:"auth"`

	// Broker locates the queue derived batches are consumed from.
	Broker BrokerConfig `yaml:"broker"`

	// Snapshot controls in-memory batch retention.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Storage controls persistence of run history.
	Storage StorageConfig `yaml:"storage"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// BrokerConfig locates the AMQP queue.
type BrokerConfig struct {
	// URLEnv names the environment variable holding the amqp:// URL.
	URLEnv string `yaml:"url_env"`

	// Queue is the durable queue the agents publish to.
	Queue string `yaml:"queue"`

	// Prefetch bounds unacknowledged deliveries held by the consumer.
	Prefetch int `yaml:"prefetch"`
}

// URL returns the broker URL resolved from the environment.
func (b BrokerConfig) URL() string { return lookupEnv(b.URLEnv) }

// SnapshotConfig controls in-memory batch retention.
type SnapshotConfig struct {
	// TTL is how long a source's latest batch stays live after it arrived.
	// Sources re-derive on the agent's scan interval, so TTL should exceed it.
	// Zero keeps batches until they are replaced.
	TTL time.Duration `yaml:"ttl"`
}

// StorageConfig selects where run history is persisted.
type StorageConfig struct {
	// Backend is postgres | none.
	Backend string `yaml:"backend"`

	// DSNEnv names the environment variable holding the postgres:// DSN.
	DSNEnv string `yaml:"dsn_env"`

	// Retention is how long runs are kept before purging.
	Retention time.Duration `yaml:"retention"`

	// RetentionInterval is how often the purge runs.
	RetentionInterval time.Duration `yaml:"retention_interval"`
}

// DSN returns the database DSN resolved from the environment.
func (s StorageConfig) DSN() string { return lookupEnv(s.DSNEnv) }

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "churn_rate > 30",
	// "rejected_pct >= 5", "cert_days_left < 14", "status == failed".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return lookupEnv(w.URLEnv) }

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel: DefaultLogLevel,
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Broker: BrokerConfig{
				URLEnv:   DefaultBrokerURLEnv,
				Queue:    DefaultQueue,
				Prefetch: DefaultPrefetch,
			},
			Snapshot: SnapshotConfig{
				TTL: DefaultSnapshotTTL,
			},
			Storage: StorageConfig{
				Backend:           BackendNone,
				DSNEnv:            DefaultDSNEnv,
				Retention:         DefaultRetention,
				RetentionInterval: DefaultRetentionInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port are both %d", s.GRPCPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required for apikey mode")
	}
	if s.Broker.Queue == "" {
		return fmt.Errorf("server.broker.queue must not be empty")
	}
	if s.Broker.Prefetch <= 0 {
		return fmt.Errorf("server.broker.prefetch must be positive")
	}
	if s.Snapshot.TTL < 0 {
		return fmt.Errorf("server.snapshot.ttl must not be negative")
	}
	switch s.Storage.Backend {
	case BackendNone, BackendPostgres:
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want postgres|none", s.Storage.Backend)
	}
	if s.Storage.Backend == BackendPostgres {
		if s.Storage.DSNEnv == "" {
			return fmt.Errorf("server.storage.dsn_env is required for the postgres backend")
		}
		if s.Storage.Retention <= 0 || s.Storage.RetentionInterval <= 0 {
			return fmt.Errorf("server.storage.retention and retention_interval must be positive")
		}
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name and condition are required", i)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}
