package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sandbox.Timeout != 10*time.Second {
		t.Errorf("Sandbox.Timeout = %s, want 10s", cfg.Sandbox.Timeout)
	}
	if cfg.Sandbox.DatasetName != "df" {
		t.Errorf("Sandbox.DatasetName = %q, want df", cfg.Sandbox.DatasetName)
	}
	if len(cfg.Extractor.Languages) != 2 || cfg.Extractor.Languages[0] != "javascript" {
		t.Errorf("Extractor.Languages = %v, want [javascript js]", cfg.Extractor.Languages)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"server port 0", func(c *Config) { c.Server.Port = 0 }, true},
		{"server port 99999", func(c *Config) { c.Server.Port = 99999 }, true},
		{"timeout > max_timeout", func(c *Config) {
			c.Sandbox.Timeout = 2 * time.Minute
			c.Sandbox.MaxTimeout = 1 * time.Minute
		}, true},
		{"zero timeout", func(c *Config) { c.Sandbox.Timeout = 0 }, true},
		{"max_concurrent 0", func(c *Config) { c.Sandbox.MaxConcurrent = 0 }, true},
		{"tiny call stack", func(c *Config) { c.Sandbox.MaxCallStack = 10 }, true},
		{"tiny output cap", func(c *Config) { c.Sandbox.MaxOutputBytes = 10 }, true},
		{"dataset name with space", func(c *Config) { c.Sandbox.DatasetName = "my data" }, true},
		{"dataset name leading digit", func(c *Config) { c.Sandbox.DatasetName = "1df" }, true},
		{"dataset name custom", func(c *Config) { c.Sandbox.DatasetName = "sales" }, false},
		{"no languages", func(c *Config) { c.Extractor.Languages = nil }, true},
		{"zero figure width", func(c *Config) { c.Sandbox.FigureWidth = 0 }, true},
		{"zero max datasets", func(c *Config) { c.Sandbox.MaxDatasets = 0 }, true},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }, true},
		{"tracing bad protocol", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Endpoint = "localhost:4317"
			c.Tracing.Protocol = "udp"
		}, true},
		{"zero concurrent turns", func(c *Config) { c.Security.MaxConcurrentTurns = 0 }, true},
		{"TLS enabled without cert", func(c *Config) {
			c.TLS.Enabled = true
		}, true},
		{"TLS enabled with cert+key", func(c *Config) {
			c.TLS.Enabled = true
			c.TLS.CertFile = "/etc/ssl/cert.pem"
			c.TLS.KeyFile = "/etc/ssl/key.pem"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
server:
  host: "127.0.0.1"
  port: 9090
sandbox:
  timeout: 15s
  max_timeout: 120s
  dataset_name: sales
extractor:
  languages: [javascript]
validator:
  extra_denied: ["fetch("]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Sandbox.Timeout != 15*time.Second {
		t.Errorf("Sandbox.Timeout = %s, want 15s", cfg.Sandbox.Timeout)
	}
	if cfg.Sandbox.DatasetName != "sales" {
		t.Errorf("Sandbox.DatasetName = %q, want sales", cfg.Sandbox.DatasetName)
	}
	if cfg.Sandbox.MaxCallStack != 1000 {
		t.Errorf("Sandbox.MaxCallStack = %d, want default 1000", cfg.Sandbox.MaxCallStack)
	}
	if len(cfg.Validator.ExtraDenied) != 1 || cfg.Validator.ExtraDenied[0] != "fetch(" {
		t.Errorf("Validator.ExtraDenied = %v, want [fetch(]", cfg.Validator.ExtraDenied)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error, got nil")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestAddress(t *testing.T) {
	cfg := DefaultConfig()
	want := "0.0.0.0:8080"
	if got := cfg.Address(); got != want {
		t.Errorf("Address() = %q, want %q", got, want)
	}

	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 3000
	want = "127.0.0.1:3000"
	if got := cfg.Address(); got != want {
		t.Errorf("Address() = %q, want %q", got, want)
	}
}
