// Package config loads and validates the vitalsync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/njoerd114/vitalsync/internal/model"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// BackendURL is the base URL of the vitals backend (e.g. "https://vitals.example.com").
	BackendURL string `yaml:"backend_url"`

	// BackendToken is the bearer token used to authenticate with the backend.
	BackendToken string `yaml:"backend_token"`

	// UserID identifies the account the readings belong to.
	UserID string `yaml:"user_id"`

	// GatewayURL is the base URL of the local wearable gateway
	// (e.g. "http://localhost:8720").
	GatewayURL string `yaml:"gateway_url"`

	// PollInterval controls how often the device is polled for new readings.
	// Minimum 15s, maximum 30m. Defaults to 1m if unset.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Vitals lists the vital types to sync. Empty means all supported types.
	Vitals []model.VitalType `yaml:"vitals,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "vitalsync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/vitalsync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vitalsync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write marshals the config to YAML and writes it to path, creating parent
// directories as needed. The file is created with 0600 since it holds the
// backend token.
func (c *Config) Write(path string) error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// EnabledVitals returns the configured vitals, or every supported type when
// the list is empty.
func (c *Config) EnabledVitals() []model.VitalType {
	if len(c.Vitals) == 0 {
		return model.AllVitals()
	}
	return c.Vitals
}

// validate checks that all required fields are present and well-formed.
func (c *Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if err := validateHTTPURL(c.BackendURL); err != nil {
		return fmt.Errorf("backend_url: %w", err)
	}

	if c.BackendToken == "" {
		return fmt.Errorf("backend_token is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	if c.GatewayURL == "" {
		return fmt.Errorf("gateway_url is required")
	}
	if err := validateHTTPURL(c.GatewayURL); err != nil {
		return fmt.Errorf("gateway_url: %w", err)
	}

	if c.PollInterval == 0 {
		c.PollInterval = time.Minute
	}
	if c.PollInterval < 15*time.Second {
		return fmt.Errorf("poll_interval %v is too short (minimum 15s)", c.PollInterval)
	}
	if c.PollInterval > 30*time.Minute {
		return fmt.Errorf("poll_interval %v is too long (maximum 30m)", c.PollInterval)
	}

	for _, v := range c.Vitals {
		if !v.Valid() {
			return fmt.Errorf("vitals contains unknown type %q", v)
		}
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%q must be a valid http or https URL", raw)
	}
	return nil
}
