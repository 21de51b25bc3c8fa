package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScanInterval = 5 * time.Minute
	DefaultBufferSize   = 100
	DefaultWorkers      = 4
	DefaultQueue        = "churn.batches"
	DefaultBrokerURLEnv = "CHURN_BROKER_URL"
	DefaultMetricsAddr  = ":9464"
	DefaultLogLevel     = "info"
)

// DefaultDropColumns are the Telco spreadsheet columns removed before
// derivation. They either leak the outcome (Churn Score, CLTV, Churn Reason)
// or carry no signal (geography, constant counters).
var DefaultDropColumns = []string{
	"Count", "Country", "State", "City", "Zip Code", "Lat Long",
	"Latitude", "Longitude", "Churn Label", "Churn Score", "CLTV", "Churn Reason",
}

// Config is the top-level agent configuration. The `server:` key of a shared
// config file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// ScanInterval controls how often every source is reloaded and re-derived.
	ScanInterval time.Duration `yaml:"scan_interval"`

	// Workers bounds the number of goroutines deriving rows of one batch.
	Workers int `yaml:"workers"`

	// BufferSize is the maximum number of batches held in memory while the
	// broker is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// MetricsAddr is the listen address for the Prometheus /metrics endpoint.
	// Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// Broker configures the RabbitMQ connection derived batches are published to.
	Broker BrokerConfig `yaml:"broker"`

	// Clean configures column drops and imputation.
	Clean CleanConfig `yaml:"clean"`

	// Sources is the list of customer tables to derive.
	Sources []Source `yaml:"sources"`
}

// BrokerConfig locates the AMQP broker.
type BrokerConfig struct {
	// URLEnv names the environment variable holding the amqp:// URL.
	URLEnv string `yaml:"url_env"`

	// Queue is the durable queue batches are published to.
	Queue string `yaml:"queue"`
}

// URL returns the broker URL resolved from the environment.
func (b BrokerConfig) URL() string {
	if b.URLEnv == "" {
		return ""
	}
	return os.Getenv(b.URLEnv)
}

// CleanConfig controls the cleaning stage that runs before derivation.
type CleanConfig struct {
	// DropColumns lists headers removed from every table. Matching ignores
	// case, spaces and underscores.
	DropColumns []string `yaml:"drop_columns"`

	// ImputeZeroTenure sets a blank total_charges to 0 for zero-tenure rows.
	ImputeZeroTenure *bool `yaml:"impute_zero_tenure"`

	// Strict turns the first rejected row into a load error.
	Strict bool `yaml:"strict"`
}

// Impute reports whether zero-tenure imputation is enabled (default true).
func (c CleanConfig) Impute() bool {
	return c.ImputeZeroTenure == nil || *c.ImputeZeroTenure
}

// Source describes one customer table.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is the loader: csv | xlsx | http.
	Type string `yaml:"type"`

	// Path is the local file for csv and xlsx sources.
	Path string `yaml:"path"`

	// Sheet selects the worksheet of an xlsx source. Empty means the
	// workbook's active sheet.
	Sheet string `yaml:"sheet"`

	// Endpoint is the URL of an http source.
	Endpoint string `yaml:"endpoint"`

	// Auth configures how the agent authenticates to an http source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// Location returns the path or endpoint, whichever the source type uses.
func (s Source) Location() string {
	if s.Type == "http" {
		return s.Endpoint
	}
	return s.Path
}

// AuthConfig specifies the authentication mode for an http source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header name the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username string `yaml:"username"`
	// PasswordEnv names the environment variable holding the basic-auth password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return lookupEnv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return lookupEnv(a.PasswordEnv) }

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if cfg.Agent.Clean.DropColumns == nil {
		cfg.Agent.Clean.DropColumns = append([]string(nil), DefaultDropColumns...)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			LogLevel:     DefaultLogLevel,
			ScanInterval: DefaultScanInterval,
			Workers:      DefaultWorkers,
			BufferSize:   DefaultBufferSize,
			MetricsAddr:  DefaultMetricsAddr,
			Broker: BrokerConfig{
				URLEnv: DefaultBrokerURLEnv,
				Queue:  DefaultQueue,
			},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log_level %q unknown: want debug|info|warn|error", a.LogLevel)
	}
	if a.ScanInterval <= 0 {
		return fmt.Errorf("agent.scan_interval must be positive")
	}
	if a.Workers <= 0 {
		return fmt.Errorf("agent.workers must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.Broker.Queue == "" {
		return fmt.Errorf("agent.broker.queue is required")
	}

	seen := make(map[string]bool, len(a.Sources))
	for i, src := range a.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true

		switch src.Type {
		case "csv", "xlsx":
			if src.Path == "" {
				return fmt.Errorf("sources[%d] %q: path is required", i, src.ID)
			}
		case "http":
			if src.Endpoint == "" {
				return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
			}
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}

		switch src.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
		if src.Auth.Mode == "apikey" && src.Auth.Header == "" {
			return fmt.Errorf("sources[%d] %q: auth.header is required for apikey mode", i, src.ID)
		}
	}
	return nil
}
