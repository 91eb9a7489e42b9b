package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. TICKETSYNC_SOURCE_ACCESS_TOKEN.
const EnvPrefix = "TICKETSYNC"

// flatSourceKeys are accepted at the top level of a config file for
// compatibility with single-level tap configs and moved under source.
var flatSourceKeys = []string{
	"subdomain", "start_date", "access_token", "email", "api_token",
	"request_timeout", "base_url", "page_size",
	"marketplace_name", "marketplace_organization_id", "marketplace_app_id",
}

// Load reads a YAML or JSON configuration file, substitutes ${VAR}
// references, applies TICKETSYNC_* environment overrides and validates the
// result. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		v.SetConfigType(configType(path))
		if err := v.ReadConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		for _, key := range flatSourceKeys {
			if v.InConfig(key) {
				v.Set("source."+key, v.Get(key))
			}
		}
	}

	v.Set("source.request_timeout", normalizeTimeout(v.Get("source.request_timeout")))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to a YAML file
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("source.subdomain", d.Source.Subdomain)
	v.SetDefault("source.start_date", d.Source.StartDate)
	v.SetDefault("source.access_token", d.Source.AccessToken)
	v.SetDefault("source.email", d.Source.Email)
	v.SetDefault("source.api_token", d.Source.APIToken)
	v.SetDefault("source.request_timeout", d.Source.RequestTimeout)
	v.SetDefault("source.base_url", d.Source.BaseURL)
	v.SetDefault("source.page_size", d.Source.PageSize)
	v.SetDefault("source.marketplace_name", d.Source.MarketplaceName)
	v.SetDefault("source.marketplace_organization_id", d.Source.MarketplaceOrganizationID)
	v.SetDefault("source.marketplace_app_id", d.Source.MarketplaceAppID)

	v.SetDefault("reliability.retry_attempts", d.Reliability.RetryAttempts)
	v.SetDefault("reliability.retry_delay", d.Reliability.RetryDelay)
	v.SetDefault("reliability.max_retry_delay", d.Reliability.MaxRetryDelay)
	v.SetDefault("reliability.rate_limit_per_sec", d.Reliability.RateLimitPerSec)
	v.SetDefault("reliability.rate_burst", d.Reliability.RateBurst)
	v.SetDefault("reliability.circuit_breaker", d.Reliability.CircuitBreaker)
	v.SetDefault("reliability.failure_threshold", d.Reliability.FailureThreshold)
	v.SetDefault("reliability.open_timeout", d.Reliability.OpenTimeout)

	v.SetDefault("state.backend", d.State.Backend)
	v.SetDefault("state.path", d.State.Path)
	v.SetDefault("state.bucket", d.State.Bucket)
	v.SetDefault("state.key", d.State.Key)
	v.SetDefault("state.region", d.State.Region)
	v.SetDefault("state.compression", d.State.Compression)
	v.SetDefault("state.credentials_file", d.State.CredentialsFile)
	v.SetDefault("state.dsn", d.State.DSN)

	v.SetDefault("output.emitter", d.Output.Emitter)
	v.SetDefault("output.brokers", d.Output.Brokers)
	v.SetDefault("output.topic", d.Output.Topic)
	v.SetDefault("output.client_id", d.Output.ClientID)

	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.log_encoding", d.Observability.LogEncoding)
	v.SetDefault("observability.enable_metrics", d.Observability.EnableMetrics)
	v.SetDefault("observability.metrics_addr", d.Observability.MetricsAddr)
	v.SetDefault("observability.enable_tracing", d.Observability.EnableTracing)
	v.SetDefault("observability.tracing_sample_rate", d.Observability.TracingSampleRate)
}

// normalizeTimeout accepts durations ("90s") and bare seconds (300, "300",
// 12.5). Zero, empty or unparsable values fall back to the default.
func normalizeTimeout(raw interface{}) time.Duration {
	var seconds float64
	switch t := raw.(type) {
	case time.Duration:
		if t > 0 {
			return t
		}
		return DefaultRequestTimeout
	case int:
		seconds = float64(t)
	case int64:
		seconds = float64(t)
	case float64:
		seconds = t
	case string:
		s := strings.TrimSpace(t)
		if d, err := time.ParseDuration(s); err == nil {
			if d > 0 {
				return d
			}
			return DefaultRequestTimeout
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return DefaultRequestTimeout
		}
		seconds = f
	default:
		return DefaultRequestTimeout
	}
	if seconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(seconds * float64(time.Second))
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
