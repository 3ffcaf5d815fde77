// Package config provides configuration loading for repotrack.
//
// Configuration is assembled from defaults, an optional YAML file and
// REPOTRACK_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete repotrack configuration.
type Config struct {
	Repository RepositoryConfig `koanf:"repository"`
	Tracker    TrackerConfig    `koanf:"tracker"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Stub       StubConfig       `koanf:"stub"`
}

// RepositoryConfig describes how to reach the content repository.
type RepositoryConfig struct {
	Host                string   `koanf:"host"`
	Port                int      `koanf:"port"`
	SSLPort             int      `koanf:"ssl_port"`
	BaseURL             string   `koanf:"base_url"`
	SecureComms         string   `koanf:"secure_comms"` // none | https
	TLS                 TLSFiles `koanf:"tls"`
	APIKey              Secret   `koanf:"api_key"`
	APIKeyHeader        string   `koanf:"api_key_header"`
	MaxTotalConnections int      `koanf:"max_total_connections"`
	MaxHostConnections  int      `koanf:"max_host_connections"`
	SocketTimeout       Duration `koanf:"socket_timeout"`
	Compression         bool     `koanf:"compression"`
	RateLimit           float64  `koanf:"rate_limit"` // requests per second, 0 disables
	RateBurst           int      `koanf:"rate_burst"`
}

// TLSFiles locates the client certificate material used for mutual TLS.
type TLSFiles struct {
	CertFile           string `koanf:"cert_file"`
	KeyFile            string `koanf:"key_file"`
	CAFile             string `koanf:"ca_file"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
}

// TrackerConfig holds tracking client settings.
type TrackerConfig struct {
	CoreName          string `koanf:"core_name"`
	MaxResults        int    `koanf:"max_results"`
	DiagnosticsWindow int    `koanf:"diagnostics_window"`
	DictionaryFile    string `koanf:"dictionary_file"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig mirrors the subset of OTLP settings exposed on the CLI.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// StubConfig configures the protocol stub server.
type StubConfig struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	FixtureFile string `koanf:"fixture_file"`
}

// Secure reports whether the repository is reached over HTTPS.
func (r RepositoryConfig) Secure() bool {
	return r.SecureComms == "https"
}

// URL returns the absolute base URL of the repository's tracking API.
func (r RepositoryConfig) URL() string {
	scheme, port := "http", r.Port
	if r.Secure() {
		scheme, port = "https", r.SSLPort
	}
	base := "/" + strings.Trim(r.BaseURL, "/")
	if base == "/" {
		base = ""
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, r.Host, port, base)
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values with their defaults.
func applyDefaults(cfg *Config) {
	r := &cfg.Repository
	if r.Host == "" {
		r.Host = "localhost"
	}
	if r.Port == 0 {
		r.Port = 8080
	}
	if r.SSLPort == 0 {
		r.SSLPort = 8443
	}
	if r.BaseURL == "" {
		r.BaseURL = "/alfresco/service"
	}
	if r.SecureComms == "" {
		r.SecureComms = "none"
	}
	if r.APIKeyHeader == "" {
		r.APIKeyHeader = "X-Alfresco-Search-Secret"
	}
	if r.MaxTotalConnections == 0 {
		r.MaxTotalConnections = 40
	}
	if r.MaxHostConnections == 0 {
		r.MaxHostConnections = 40
	}
	if r.SocketTimeout == 0 {
		r.SocketTimeout = Duration(60 * time.Second)
	}
	if r.RateLimit > 0 && r.RateBurst == 0 {
		r.RateBurst = 1
	}

	if cfg.Tracker.CoreName == "" {
		cfg.Tracker.CoreName = "alfresco"
	}
	if cfg.Tracker.MaxResults == 0 {
		cfg.Tracker.MaxResults = 2000
	}
	if cfg.Tracker.DiagnosticsWindow == 0 {
		cfg.Tracker.DiagnosticsWindow = 250
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "repotrack"
	}

	if cfg.Stub.Host == "" {
		cfg.Stub.Host = "localhost"
	}
	if cfg.Stub.Port == 0 {
		cfg.Stub.Port = 8080
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	r := c.Repository
	if r.Host == "" {
		return errors.New("repository host is required")
	}
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("invalid repository port: %d (must be 1-65535)", r.Port)
	}
	if r.SSLPort < 1 || r.SSLPort > 65535 {
		return fmt.Errorf("invalid repository ssl_port: %d (must be 1-65535)", r.SSLPort)
	}
	switch r.SecureComms {
	case "none":
	case "https":
		if (r.TLS.CertFile == "") != (r.TLS.KeyFile == "") {
			return errors.New("tls cert_file and key_file must be set together")
		}
	default:
		return fmt.Errorf("secure_comms must be 'none' or 'https', got %q", r.SecureComms)
	}
	if r.MaxTotalConnections < 1 || r.MaxHostConnections < 1 {
		return errors.New("connection pool sizes must be positive")
	}
	if r.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative: %v", r.RateLimit)
	}

	if c.Tracker.MaxResults < 1 {
		return fmt.Errorf("tracker max_results must be positive, got %d", c.Tracker.MaxResults)
	}
	if c.Tracker.DiagnosticsWindow < 1 {
		return fmt.Errorf("tracker diagnostics_window must be positive, got %d", c.Tracker.DiagnosticsWindow)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if c.Stub.Port < 1 || c.Stub.Port > 65535 {
		return fmt.Errorf("invalid stub port: %d (must be 1-65535)", c.Stub.Port)
	}
	return nil
}
