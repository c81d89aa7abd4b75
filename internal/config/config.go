package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Validator ValidatorConfig `yaml:"validator"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Security  SecurityConfig  `yaml:"security"`
	TLS       TLSConfig       `yaml:"tls"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type SandboxConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
	MaxCallStack   int           `yaml:"max_call_stack"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	DatasetName    string        `yaml:"dataset_name"` // Name the dataset is bound to inside scripts
	FigureWidth    float64       `yaml:"figure_width_in"`
	FigureHeight   float64       `yaml:"figure_height_in"`
	MaxDatasets    int           `yaml:"max_datasets"` // Oldest uploaded dataset is evicted beyond this
}

// ExtractorConfig lists the fenced-block language tags treated as scripts.
type ExtractorConfig struct {
	Languages []string `yaml:"languages"`
}

type ValidatorConfig struct {
	MaxScriptBytes      int      `yaml:"max_script_bytes"`
	ExtraDenied         []string `yaml:"extra_denied"`
	ExtraAllowedModules []string `yaml:"extra_allowed_modules"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AuditBuffer     int           `yaml:"audit_buffer"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Protocol    string  `yaml:"protocol"` // grpc (default) or http
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	Sample      float64 `yaml:"sample_rate"`
}

type SecurityConfig struct {
	APIKeyHeader         string   `yaml:"api_key_header"`
	AllowedKeys          []string `yaml:"allowed_keys"`
	AllowUnauthenticated bool     `yaml:"allow_unauthenticated"`
	RateLimitRPS         float64  `yaml:"rate_limit_rps"`
	RateLimitBurst       int      `yaml:"rate_limit_burst"`
	MaxConcurrentTurns   int      `yaml:"max_concurrent_turns"` // Turns processed at once; extra requests get 429
}

// TLSConfig controls HTTPS/TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from env or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    65 * time.Second, // > max sandbox timeout + overhead
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  8 << 20, // 8MB, datasets are uploaded as CSV bodies
		},
		Sandbox: SandboxConfig{
			Timeout:        10 * time.Second,
			MaxTimeout:     60 * time.Second,
			MaxCallStack:   1000,
			MaxOutputBytes: 1 << 20,
			MaxConcurrent:  16,
			DatasetName:    "df",
			FigureWidth:    6,
			FigureHeight:   4,
			MaxDatasets:    64,
		},
		Extractor: ExtractorConfig{
			Languages: []string{"javascript", "js"},
		},
		Validator: ValidatorConfig{
			MaxScriptBytes: 256 * 1024,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxConns:        10,
			ConnMaxLifetime: 5 * time.Minute,
			AuditBuffer:     1000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Protocol:    "grpc",
			ServiceName: "analyst-sandbox",
			Sample:      0.1,
		},
		Security: SecurityConfig{
			APIKeyHeader:       "X-API-Key",
			RateLimitRPS:       20,
			RateLimitBurst:     40,
			MaxConcurrentTurns: 32,
		},
		TLS: TLSConfig{
			Enabled: false,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox.timeout must be positive")
	}
	if c.Sandbox.Timeout > c.Sandbox.MaxTimeout {
		return fmt.Errorf("sandbox.timeout (%s) must be <= max_timeout (%s)",
			c.Sandbox.Timeout, c.Sandbox.MaxTimeout)
	}
	if c.Sandbox.MaxConcurrent < 1 {
		return fmt.Errorf("sandbox.max_concurrent must be >= 1")
	}
	if c.Sandbox.MaxCallStack < 50 {
		return fmt.Errorf("sandbox.max_call_stack must be >= 50, got %d", c.Sandbox.MaxCallStack)
	}
	if c.Sandbox.MaxOutputBytes < 1024 {
		return fmt.Errorf("sandbox.max_output_bytes must be >= 1024")
	}
	if !isIdentifier(c.Sandbox.DatasetName) {
		return fmt.Errorf("sandbox.dataset_name %q is not a valid identifier", c.Sandbox.DatasetName)
	}
	if c.Sandbox.FigureWidth <= 0 || c.Sandbox.FigureHeight <= 0 {
		return fmt.Errorf("sandbox figure dimensions must be positive")
	}
	if c.Sandbox.MaxDatasets < 1 {
		return fmt.Errorf("sandbox.max_datasets must be >= 1")
	}
	if c.Security.MaxConcurrentTurns < 1 {
		return fmt.Errorf("security.max_concurrent_turns must be >= 1")
	}
	if len(c.Extractor.Languages) == 0 {
		return fmt.Errorf("extractor.languages must not be empty")
	}
	if c.Validator.MaxScriptBytes < 1 {
		return fmt.Errorf("validator.max_script_bytes must be >= 1")
	}
	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if c.Tracing.Protocol != "" && c.Tracing.Protocol != "grpc" && c.Tracing.Protocol != "http" {
			return fmt.Errorf("tracing.protocol must be grpc or http, got %q", c.Tracing.Protocol)
		}
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
