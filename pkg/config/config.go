package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultRequestTimeout applies when request_timeout is unset or zero.
	DefaultRequestTimeout = 300 * time.Second
	// StartDateLayout is the required start_date layout.
	StartDateLayout = "2006-01-02T15:04:05Z"
)

// AuthMode identifies how requests are authenticated.
type AuthMode string

const (
	AuthModeNone     AuthMode = ""
	AuthModeOAuth    AuthMode = "oauth"
	AuthModeAPIToken AuthMode = "api_token"
)

// Config is the single configuration structure for a ticketsync run.
// It is organized into sections the same way for every command:
//   - Source: account, credentials, start date and request settings
//   - Reliability: retries, rate limiting and circuit breaking
//   - State: where replication state is loaded from and persisted to
//   - Output: where schema, record and state messages are written
//   - Observability: logging, metrics and tracing
type Config struct {
	Source        SourceConfig        `mapstructure:"source" yaml:"source" json:"source"`
	Reliability   ReliabilityConfig   `mapstructure:"reliability" yaml:"reliability" json:"reliability"`
	State         StateConfig         `mapstructure:"state" yaml:"state" json:"state"`
	Output        OutputConfig        `mapstructure:"output" yaml:"output" json:"output"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability" json:"observability"`
}

// SourceConfig describes the help desk account being replicated.
type SourceConfig struct {
	// Subdomain selects the tenant, e.g. "acme" for acme.zendesk.com
	Subdomain string `mapstructure:"subdomain" yaml:"subdomain" json:"subdomain"`
	// StartDate bounds the first run of every incremental stream
	StartDate string `mapstructure:"start_date" yaml:"start_date" json:"start_date"`
	// AccessToken is an OAuth bearer token; it takes precedence over API tokens
	AccessToken string `mapstructure:"access_token" yaml:"access_token" json:"access_token"`
	// Email and APIToken enable API token authentication
	Email    string `mapstructure:"email" yaml:"email" json:"email"`
	APIToken string `mapstructure:"api_token" yaml:"api_token" json:"api_token"`
	// RequestTimeout bounds every HTTP request; zero means DefaultRequestTimeout
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
	// BaseURL overrides https://<subdomain>.zendesk.com (tests, proxies)
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	// PageSize is the per_page / page[size] sent to listing endpoints
	PageSize int `mapstructure:"page_size" yaml:"page_size" json:"page_size"`

	MarketplaceName           string `mapstructure:"marketplace_name" yaml:"marketplace_name" json:"marketplace_name"`
	MarketplaceOrganizationID string `mapstructure:"marketplace_organization_id" yaml:"marketplace_organization_id" json:"marketplace_organization_id"`
	MarketplaceAppID          string `mapstructure:"marketplace_app_id" yaml:"marketplace_app_id" json:"marketplace_app_id"`
}

// ReliabilityConfig contains retry, rate limiting and circuit breaker settings.
type ReliabilityConfig struct {
	RetryAttempts    int           `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	MaxRetryDelay    time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay" json:"max_retry_delay"`
	RateLimitPerSec  float64       `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	RateBurst        int           `mapstructure:"rate_burst" yaml:"rate_burst" json:"rate_burst"`
	CircuitBreaker   bool          `mapstructure:"circuit_breaker" yaml:"circuit_breaker" json:"circuit_breaker"`
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" yaml:"open_timeout" json:"open_timeout"`
}

// StateConfig selects the state store backend.
type StateConfig struct {
	// Backend is one of "file", "s3", "gcs", "postgres" or "" (no persistence)
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`
	// Path is the file path for the file backend
	Path string `mapstructure:"path" yaml:"path" json:"path"`
	// Bucket and Key locate the object for the s3 and gcs backends
	Bucket string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Key    string `mapstructure:"key" yaml:"key" json:"key"`
	Region string `mapstructure:"region" yaml:"region" json:"region"`
	// DSN is the connection string for the postgres backend
	DSN string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	// Compression is one of "none", "gzip", "zstd", "lz4", "s2"
	Compression string `mapstructure:"compression" yaml:"compression" json:"compression"`
	// CredentialsFile is an optional GCP service account key
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file" json:"credentials_file"`
}

// OutputConfig selects the message emitter.
type OutputConfig struct {
	// Emitter is "stdout" or "kafka"
	Emitter  string   `mapstructure:"emitter" yaml:"emitter" json:"emitter"`
	Brokers  []string `mapstructure:"brokers" yaml:"brokers" json:"brokers"`
	Topic    string   `mapstructure:"topic" yaml:"topic" json:"topic"`
	ClientID string   `mapstructure:"client_id" yaml:"client_id" json:"client_id"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogEncoding       string  `mapstructure:"log_encoding" yaml:"log_encoding" json:"log_encoding"`
	EnableMetrics     bool    `mapstructure:"enable_metrics" yaml:"enable_metrics" json:"enable_metrics"`
	MetricsAddr       string  `mapstructure:"metrics_addr" yaml:"metrics_addr" json:"metrics_addr"`
	EnableTracing     bool    `mapstructure:"enable_tracing" yaml:"enable_tracing" json:"enable_tracing"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Source: SourceConfig{
			RequestTimeout: DefaultRequestTimeout,
			PageSize:       100,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:    5,
			RetryDelay:       time.Second,
			MaxRetryDelay:    60 * time.Second,
			RateLimitPerSec:  10,
			RateBurst:        10,
			CircuitBreaker:   true,
			FailureThreshold: 10,
			OpenTimeout:      30 * time.Second,
		},
		State: StateConfig{
			Compression: "none",
		},
		Output: OutputConfig{
			Emitter:  "stdout",
			ClientID: "ticketsync",
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogEncoding:       "json",
			TracingSampleRate: 1.0,
		},
	}
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	var missing []string
	if c.Source.StartDate == "" {
		missing = append(missing, "start_date")
	}
	if c.Source.Subdomain == "" && c.Source.BaseURL == "" {
		missing = append(missing, "subdomain")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config is missing required keys: %s", strings.Join(missing, ", "))
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	if c.AuthMode() == AuthModeNone {
		return fmt.Errorf("no suitable authentication keys provided: set access_token, or email and api_token")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec cannot be negative")
	}
	switch c.State.Backend {
	case "", "file":
		if c.State.Backend == "file" && c.State.Path == "" {
			return fmt.Errorf("state.path is required for the file backend")
		}
	case "s3", "gcs":
		if c.State.Bucket == "" || c.State.Key == "" {
			return fmt.Errorf("state.bucket and state.key are required for the %s backend", c.State.Backend)
		}
	case "postgres":
		if c.State.DSN == "" || c.State.Key == "" {
			return fmt.Errorf("state.dsn and state.key are required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	switch c.Output.Emitter {
	case "", "stdout":
	case "kafka":
		if len(c.Output.Brokers) == 0 || c.Output.Topic == "" {
			return fmt.Errorf("output.brokers and output.topic are required for the kafka emitter")
		}
	default:
		return fmt.Errorf("unknown emitter %q", c.Output.Emitter)
	}
	return nil
}

// StartTime parses the configured start date.
func (c *Config) StartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.Source.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("start_date must look like %s: %w", StartDateLayout, err)
	}
	return t.UTC(), nil
}

// AuthMode returns the credential mode in effect. OAuth has precedence.
func (c *Config) AuthMode() AuthMode {
	if c.Source.AccessToken != "" {
		return AuthModeOAuth
	}
	if c.Source.Email != "" && c.Source.APIToken != "" {
		return AuthModeAPIToken
	}
	return AuthModeNone
}

// Timeout returns the effective request timeout.
func (s *SourceConfig) Timeout() time.Duration {
	if s.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return s.RequestTimeout
}

// APIBaseURL returns the account's API root without a trailing slash.
func (s *SourceConfig) APIBaseURL() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s.zendesk.com", s.Subdomain)
}

// MarketplaceHeaders returns partner headers when all three marketplace keys are set.
func (s *SourceConfig) MarketplaceHeaders() map[string]string {
	if s.MarketplaceName == "" || s.MarketplaceOrganizationID == "" || s.MarketplaceAppID == "" {
		return nil
	}
	return map[string]string{
		"X-Zendesk-Marketplace-Name":            s.MarketplaceName,
		"X-Zendesk-Marketplace-Organization-Id": s.MarketplaceOrganizationID,
		"X-Zendesk-Marketplace-App-Id":          s.MarketplaceAppID,
	}
}
