package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:        "valid defaults",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 0 },
			expectError: true,
		},
		{
			name:        "empty bind address",
			mutate:      func(c *Config) { c.Server.BindAddress = "" },
			expectError: true,
		},
		{
			name:        "sample rate too low",
			mutate:      func(c *Config) { c.Audio.DefaultSampleRate = 4000 },
			expectError: true,
		},
		{
			name:        "non PCM-16 sample width",
			mutate:      func(c *Config) { c.Audio.DefaultSampleWidth = 4 },
			expectError: true,
		},
		{
			name:        "zero target duration",
			mutate:      func(c *Config) { c.Audio.TargetDuration = 0 },
			expectError: true,
		},
		{
			name:        "zero batch min chunks",
			mutate:      func(c *Config) { c.Batch.MinChunks = 0 },
			expectError: true,
		},
		{
			name:        "negative max reconnections",
			mutate:      func(c *Config) { c.Session.MaxReconnections = -1 },
			expectError: true,
		},
		{
			name:        "zero retention",
			mutate:      func(c *Config) { c.Session.Retention = 0 },
			expectError: true,
		},
		{
			name:        "unknown dedup backend",
			mutate:      func(c *Config) { c.Dedup.Backend = "memcached" },
			expectError: true,
		},
		{
			name: "redis backend without address",
			mutate: func(c *Config) {
				c.Dedup.Backend = "redis"
				c.Dedup.RedisAddr = ""
			},
			expectError: true,
		},
		{
			name:        "empty transcription endpoint",
			mutate:      func(c *Config) { c.Transcription.Endpoint = "" },
			expectError: true,
		},
		{
			name:        "empty llm model",
			mutate:      func(c *Config) { c.LLM.Model = "" },
			expectError: true,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	content := `
server:
  port: 9100
  bind_address: "127.0.0.1"
  max_message_size: 2097152
  write_timeout: 5
http:
  port: 9101
  address: "127.0.0.1"
  enabled: true
audio:
  default_sample_rate: 16000
  default_channels: 1
  default_sample_width: 2
  target_duration: 12.0
  flush_window: 8.0
  flush_check_interval: 1.0
  silence_rms: 100.0
batch:
  min_chunks: 3
  interval: 30.0
  max_tokens: 6000
session:
  disconnect_timeout: 300.0
  max_reconnections: 3
  retention: 3600.0
  sweep_interval: 300.0
dedup:
  backend: "memory"
  recent_size: 10
  ttl: 3600
transcription:
  endpoint: "http://localhost:9000/transcribe"
  api_key: "test-key"
  timeout: 30
  max_retries: 2
  max_concurrent: 8
llm:
  endpoint: "http://localhost:9000/complete"
  model: "gpt-4o-mini"
  timeout: 60
logging:
  level: "debug"
  format: "json"
  output: "stdout"
`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Expected server port 9100, got %d", cfg.Server.Port)
	}

	if cfg.Audio.GetTargetDuration() != 12*time.Second {
		t.Errorf("Expected target duration 12s, got %v", cfg.Audio.GetTargetDuration())
	}

	if cfg.Batch.GetInterval() != 30*time.Second {
		t.Errorf("Expected batch interval 30s, got %v", cfg.Batch.GetInterval())
	}

	if cfg.Session.GetDisconnectTimeout() != 5*time.Minute {
		t.Errorf("Expected disconnect timeout 5m, got %v", cfg.Session.GetDisconnectTimeout())
	}

	if cfg.Session.GetRetention() != time.Hour {
		t.Errorf("Expected retention 1h, got %v", cfg.Session.GetRetention())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error loading missing config file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("Expected error parsing invalid yaml")
	}
}
