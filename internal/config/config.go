package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Batch         BatchConfig         `yaml:"batch"`
	Session       SessionConfig       `yaml:"session"`
	Dedup         DedupConfig         `yaml:"dedup"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	LLM           LLMConfig           `yaml:"llm"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains WebSocket gateway configuration
type ServerConfig struct {
	Port           int    `yaml:"port"`
	BindAddress    string `yaml:"bind_address"`
	MaxMessageSize int64  `yaml:"max_message_size"` // bytes
	WriteTimeout   int    `yaml:"write_timeout"`    // seconds
}

// HTTPConfig contains the monitoring HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains audio buffering and flush parameters
type AudioConfig struct {
	DefaultSampleRate  int     `yaml:"default_sample_rate"`
	DefaultChannels    int     `yaml:"default_channels"`
	DefaultSampleWidth int     `yaml:"default_sample_width"` // bytes per sample
	TargetDuration     float64 `yaml:"target_duration"`      // seconds of audio per flush
	FlushWindow        float64 `yaml:"flush_window"`         // seconds of inactivity before a forced flush
	FlushCheckInterval float64 `yaml:"flush_check_interval"` // seconds between background flush checks
	SilenceRMS         float64 `yaml:"silence_rms"`          // RMS below which audio is treated as silence
}

// BatchConfig controls deferred speaker-attribution batching
type BatchConfig struct {
	MinChunks int     `yaml:"min_chunks"`
	Interval  float64 `yaml:"interval"`   // seconds between batch runs
	MaxTokens int     `yaml:"max_tokens"` // estimated-token ceiling forcing an early batch
}

// SessionConfig controls meeting session lifecycle timing
type SessionConfig struct {
	DisconnectTimeout float64 `yaml:"disconnect_timeout"` // seconds before a disconnected meeting finalizes
	MaxReconnections  int     `yaml:"max_reconnections"`
	Retention         float64 `yaml:"retention"`      // seconds a processed session is kept before removal
	SweepInterval     float64 `yaml:"sweep_interval"` // seconds between removal sweeps
}

// DedupConfig controls the transcript deduplication ledger
type DedupConfig struct {
	Backend       string `yaml:"backend"`     // "memory" or "redis"
	RecentSize    int    `yaml:"recent_size"` // bounded recent-text ring per meeting
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTL           int    `yaml:"ttl"` // seconds before redis keys expire
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// LLMConfig contains language-model API configuration
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Dedup.Validate(); err != nil {
		return fmt.Errorf("dedup config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates gateway server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.MaxMessageSize < 1024 {
		return fmt.Errorf("max_message_size must be at least 1024 bytes, got %d", s.MaxMessageSize)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.DefaultSampleRate < 8000 || a.DefaultSampleRate > 48000 {
		return fmt.Errorf("default_sample_rate must be between 8000 and 48000 Hz, got %d", a.DefaultSampleRate)
	}

	if a.DefaultChannels < 1 || a.DefaultChannels > 2 {
		return fmt.Errorf("default_channels must be 1 or 2, got %d", a.DefaultChannels)
	}

	if a.DefaultSampleWidth != 2 {
		return fmt.Errorf("default_sample_width must be 2 bytes (PCM-16), got %d", a.DefaultSampleWidth)
	}

	if a.TargetDuration <= 0 {
		return fmt.Errorf("target_duration must be positive, got %f", a.TargetDuration)
	}

	if a.FlushWindow <= 0 {
		return fmt.Errorf("flush_window must be positive, got %f", a.FlushWindow)
	}

	if a.FlushCheckInterval <= 0 {
		return fmt.Errorf("flush_check_interval must be positive, got %f", a.FlushCheckInterval)
	}

	if a.SilenceRMS < 0 {
		return fmt.Errorf("silence_rms cannot be negative, got %f", a.SilenceRMS)
	}

	return nil
}

// Validate validates batch configuration
func (b *BatchConfig) Validate() error {
	if b.MinChunks < 1 {
		return fmt.Errorf("min_chunks must be at least 1, got %d", b.MinChunks)
	}

	if b.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %f", b.Interval)
	}

	if b.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", b.MaxTokens)
	}

	return nil
}

// Validate validates session lifecycle configuration
func (s *SessionConfig) Validate() error {
	if s.DisconnectTimeout <= 0 {
		return fmt.Errorf("disconnect_timeout must be positive, got %f", s.DisconnectTimeout)
	}

	if s.MaxReconnections < 0 {
		return fmt.Errorf("max_reconnections cannot be negative, got %d", s.MaxReconnections)
	}

	if s.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %f", s.Retention)
	}

	if s.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %f", s.SweepInterval)
	}

	return nil
}

// Validate validates dedup configuration
func (d *DedupConfig) Validate() error {
	switch d.Backend {
	case "memory":
	case "redis":
		if d.RedisAddr == "" {
			return fmt.Errorf("redis_addr cannot be empty for redis backend")
		}
	default:
		return fmt.Errorf("backend must be 'memory' or 'redis', got '%s'", d.Backend)
	}

	if d.RecentSize < 1 {
		return fmt.Errorf("recent_size must be at least 1, got %d", d.RecentSize)
	}

	if d.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative, got %d", d.TTL)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates language-model configuration
func (l *LLMConfig) Validate() error {
	if l.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if l.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", l.Timeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTargetDuration returns the flush target duration as a time.Duration
func (a *AudioConfig) GetTargetDuration() time.Duration {
	return time.Duration(a.TargetDuration * float64(time.Second))
}

// GetFlushWindow returns the inactivity flush window as a time.Duration
func (a *AudioConfig) GetFlushWindow() time.Duration {
	return time.Duration(a.FlushWindow * float64(time.Second))
}

// GetFlushCheckInterval returns the background flush check interval as a time.Duration
func (a *AudioConfig) GetFlushCheckInterval() time.Duration {
	return time.Duration(a.FlushCheckInterval * float64(time.Second))
}

// GetInterval returns the batch interval as a time.Duration
func (b *BatchConfig) GetInterval() time.Duration {
	return time.Duration(b.Interval * float64(time.Second))
}

// GetDisconnectTimeout returns the disconnect timeout as a time.Duration
func (s *SessionConfig) GetDisconnectTimeout() time.Duration {
	return time.Duration(s.DisconnectTimeout * float64(time.Second))
}

// GetRetention returns the processed-session retention as a time.Duration
func (s *SessionConfig) GetRetention() time.Duration {
	return time.Duration(s.Retention * float64(time.Second))
}

// GetSweepInterval returns the removal sweep interval as a time.Duration
func (s *SessionConfig) GetSweepInterval() time.Duration {
	return time.Duration(s.SweepInterval * float64(time.Second))
}

// GetTTL returns the dedup key TTL as a time.Duration
func (d *DedupConfig) GetTTL() time.Duration {
	return time.Duration(d.TTL) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the language-model timeout as a time.Duration
func (l *LLMConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// Default returns a configuration populated with the documented defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8765,
			BindAddress:    "0.0.0.0",
			MaxMessageSize: 4 * 1024 * 1024,
			WriteTimeout:   10,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Audio: AudioConfig{
			DefaultSampleRate:  16000,
			DefaultChannels:    1,
			DefaultSampleWidth: 2,
			TargetDuration:     15.0,
			FlushWindow:        10.0,
			FlushCheckInterval: 2.0,
			SilenceRMS:         120.0,
		},
		Batch: BatchConfig{
			MinChunks: 3,
			Interval:  30.0,
			MaxTokens: 6000,
		},
		Session: SessionConfig{
			DisconnectTimeout: 300.0,
			MaxReconnections:  3,
			Retention:         3600.0,
			SweepInterval:     300.0,
		},
		Dedup: DedupConfig{
			Backend:    "memory",
			RecentSize: 10,
			TTL:        86400,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "http://localhost:9000/transcribe",
			Timeout:       30,
			MaxRetries:    2,
			MaxConcurrent: 10,
		},
		LLM: LLMConfig{
			Endpoint: "http://localhost:9000/v1/chat/completions",
			Model:    "gpt-4o-mini",
			Timeout:  60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}
