package config

import (
	"testing"
	"time"

	"github.com/marmos91/fragments/pkg/adapter/rest"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_LogLevelNormalized(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
}

func TestApplyDefaults_Blob(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Blob.Type != "filesystem" {
		t.Errorf("Expected default blob type 'filesystem', got %q", cfg.Blob.Type)
	}

	if cfg.Blob.Filesystem == nil {
		t.Fatal("Expected Filesystem map to be initialized")
	}
	if path, ok := cfg.Blob.Filesystem["path"]; !ok || path != "/tmp/fragments/blobs" {
		t.Errorf("Expected default filesystem path '/tmp/fragments/blobs', got %v", path)
	}
	if mode := cfg.Blob.Filesystem["compression"]; mode != "auto" {
		t.Errorf("Expected default compression 'auto', got %v", mode)
	}

	if cfg.Blob.Memory == nil {
		t.Fatal("Expected Memory map to be initialized")
	}
	if region := cfg.Blob.S3["region"]; region != "us-east-1" {
		t.Errorf("Expected default S3 region 'us-east-1', got %v", region)
	}
}

func TestApplyDefaults_Metadata(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Metadata.Type != "badger" {
		t.Errorf("Expected default metadata type 'badger', got %q", cfg.Metadata.Type)
	}

	if cfg.Metadata.Memory == nil {
		t.Fatal("Expected Memory map to be initialized")
	}
	if path := cfg.Metadata.Badger["db_path"]; path != "/tmp/fragments/metadata" {
		t.Errorf("Expected default badger db_path '/tmp/fragments/metadata', got %v", path)
	}
	if path := cfg.Metadata.SQLite["path"]; path != "/tmp/fragments/metadata.db" {
		t.Errorf("Expected default sqlite path '/tmp/fragments/metadata.db', got %v", path)
	}
}

func TestApplyDefaults_HTTP(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	http := cfg.Adapters.HTTP

	// ApplyDefaults enables HTTP when it is in the unconfigured state so that
	// configs loaded without a config file pass validation.
	if !http.Enabled {
		t.Error("Expected HTTP Enabled to be true after ApplyDefaults on unconfigured state")
	}
	if http.Port != 8080 {
		t.Errorf("Expected default HTTP port 8080, got %d", http.Port)
	}
	if http.MaxBodyBytes != rest.DefaultMaxBodyBytes {
		t.Errorf("Expected default max_body_bytes %d, got %d", rest.DefaultMaxBodyBytes, http.MaxBodyBytes)
	}
	if http.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read_timeout 30s, got %v", http.ReadTimeout)
	}
	if http.WriteTimeout != 60*time.Second {
		t.Errorf("Expected default write_timeout 60s, got %v", http.WriteTimeout)
	}
	if http.IdleTimeout != 2*time.Minute {
		t.Errorf("Expected default idle_timeout 2m, got %v", http.IdleTimeout)
	}
	if http.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", http.ShutdownTimeout)
	}
	if http.RateLimit.RequestsPerSecond != 0 {
		t.Errorf("Expected rate limiting disabled by default, got %d rps", http.RateLimit.RequestsPerSecond)
	}
}

func TestApplyDefaults_RateLimitBurst(t *testing.T) {
	cfg := &Config{
		Adapters: AdaptersConfig{
			HTTP: rest.HTTPConfig{
				RateLimit: rest.RateLimitConfig{RequestsPerSecond: 20},
			},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Adapters.HTTP.RateLimit.Burst != 20 {
		t.Errorf("Expected burst to follow requests_per_second, got %d", cfg.Adapters.HTTP.RateLimit.Burst)
	}
}

func TestApplyDefaults_GC(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.GC.Enabled {
		t.Error("Expected GC disabled when not configured")
	}
	if cfg.GC.Interval != time.Hour {
		t.Errorf("Expected default gc interval 1h, got %v", cfg.GC.Interval)
	}
	if cfg.GC.BatchSize != 100 {
		t.Errorf("Expected default gc batch_size 100, got %d", cfg.GC.BatchSize)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/fragments.log",
		},
		Server: ServerConfig{
			ShutdownTimeout: 60 * time.Second,
		},
		Blob: BlobConfig{
			Type: "memory",
			Filesystem: map[string]any{
				"path": "/custom/path",
			},
		},
		Metadata: MetadataConfig{
			Type: "sqlite",
			SQLite: map[string]any{
				"path": ":memory:",
			},
		},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/fragments.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Blob.Type != "memory" {
		t.Errorf("Expected explicit blob type 'memory' to be preserved, got %q", cfg.Blob.Type)
	}
	if path := cfg.Blob.Filesystem["path"]; path != "/custom/path" {
		t.Errorf("Expected explicit filesystem path to be preserved, got %v", path)
	}
	if path := cfg.Metadata.SQLite["path"]; path != ":memory:" {
		t.Errorf("Expected explicit sqlite path to be preserved, got %v", path)
	}
}

func TestApplyDefaults_HTTPDisabled(t *testing.T) {
	cfg := &Config{
		Adapters: AdaptersConfig{
			HTTP: rest.HTTPConfig{
				Enabled: false,
				Port:    8080,
			},
		},
	}

	ApplyDefaults(cfg)

	if cfg.Adapters.HTTP.Enabled {
		t.Error("Expected explicit enabled: false with a port to stay disabled")
	}
	// Even disabled, other defaults should still be applied
	if cfg.Adapters.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read_timeout even when disabled, got %v", cfg.Adapters.HTTP.ReadTimeout)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.Blob.Type == "" {
		t.Error("Default config missing blob type")
	}
	if cfg.Metadata.Type == "" {
		t.Error("Default config missing metadata type")
	}
	if cfg.Auth.Users == nil {
		t.Error("Default config users should be an empty list, not nil")
	}
}
