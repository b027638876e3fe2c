package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Rules     RulesConfig    `yaml:"rules"`
	Origin    OriginConfig   `yaml:"origin"`
	PublicDir string         `yaml:"publicDir"` // Static files checked between beforeFiles and afterFiles
	Presets   PresetsConfig  `yaml:"presets"`
	Upstream  UpstreamConfig `yaml:"upstream"`
	Tracing   TracingConfig  `yaml:"tracing"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	TLS          TLSConfig     `yaml:"tls"`
	AdminAddr    string        `yaml:"adminAddr"`  // Listener for /_api and /metrics; empty disables it
	AdminToken   string        `yaml:"adminToken"` // Bearer token required by the admin API when set
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CertFile     string `yaml:"certFile"`
	KeyFile      string `yaml:"keyFile"`
	AutoGenerate bool   `yaml:"autoGenerate"` // Create a self-signed pair in StorePath when none exists
	StorePath    string `yaml:"storePath"`
}

// RulesConfig holds the location of the rule file
type RulesConfig struct {
	Path     string        `yaml:"path"`     // YAML or JSON rule file
	Watch    bool          `yaml:"watch"`    // Reload the rule file when it changes
	Debounce time.Duration `yaml:"debounce"` // Delay before reloading after a change
}

// OriginConfig holds the default upstream for unmatched requests
type OriginConfig struct {
	URL string `yaml:"url"`
}

// PresetsConfig enables built-in header sets applied before rule headers
type PresetsConfig struct {
	Source   string     `yaml:"source"` // Path pattern the presets apply to
	Security bool       `yaml:"security"`
	CORS     CORSConfig `yaml:"cors"`
}

// CORSConfig holds the CORS preset configuration
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowOrigin      string   `yaml:"allowOrigin"`
	AllowMethods     []string `yaml:"allowMethods"`
	AllowHeaders     []string `yaml:"allowHeaders"`
	ExposeHeaders    []string `yaml:"exposeHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// UpstreamConfig holds settings for proxied requests
type UpstreamConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	BreakerThreshold uint32        `yaml:"breakerThreshold"` // Consecutive failures before a host's breaker opens
	BreakerTimeout   time.Duration `yaml:"breakerTimeout"`   // Time an open breaker waits before probing
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled   bool          `yaml:"enabled"`
	MaxTraces int           `yaml:"maxTraces"`
	Retention time.Duration `yaml:"retention"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
	Output string `yaml:"output"` // stdout, stderr or a file path
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			AdminAddr:    "127.0.0.1:9090",
		},
		Rules: RulesConfig{
			Path:     "rules.yaml",
			Watch:    false,
			Debounce: 250 * time.Millisecond,
		},
		Presets: PresetsConfig{
			Source: "/:path*",
		},
		Upstream: UpstreamConfig{
			Timeout:          30 * time.Second,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:   true,
			MaxTraces: 1000,
			Retention: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if tls := c.Server.TLS; tls.Enabled {
		if (tls.CertFile == "") != (tls.KeyFile == "") {
			return fmt.Errorf("server.tls certFile and keyFile must be set together")
		}
		if tls.CertFile == "" && !tls.AutoGenerate && tls.StorePath == "" {
			return fmt.Errorf("server.tls requires certFile and keyFile, a storePath or autoGenerate")
		}
	}
	if c.Server.AdminAddr != "" {
		if _, _, err := net.SplitHostPort(c.Server.AdminAddr); err != nil {
			return fmt.Errorf("server.adminAddr: %w", err)
		}
	}
	if c.Rules.Path == "" {
		return fmt.Errorf("rules.path is required")
	}
	if c.Origin.URL != "" {
		u, err := url.Parse(c.Origin.URL)
		if err != nil {
			return fmt.Errorf("origin.url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("origin.url must be http or https, got %q", c.Origin.URL)
		}
	}
	if c.Tracing.MaxTraces < 0 {
		return fmt.Errorf("tracing.maxTraces must not be negative")
	}
	return nil
}
