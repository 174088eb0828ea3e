package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Sync    SyncConfig    `yaml:"sync"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains UDP listener configuration
type ServerConfig struct {
	UDPPort        int    `yaml:"udp_port"`
	BindAddress    string `yaml:"bind_address"`
	BufferSize     int    `yaml:"buffer_size"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	SessionTimeout int    `yaml:"session_timeout"` // seconds of silence before a device session is finalized
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// SyncConfig contains clock synchronisation parameters
type SyncConfig struct {
	MinSyncPackets int    `yaml:"min_sync_packets"`
	Timezone       string `yaml:"timezone"` // IANA name or "Local"
}

// ExportConfig contains batch export parameters
type ExportConfig struct {
	OutputDir      string `yaml:"output_dir"`
	WriteErrors    bool   `yaml:"write_errors"`
	WriteTimeSyncs bool   `yaml:"write_timesyncs"`
	Binary         bool   `yaml:"binary"`
	Compress       bool   `yaml:"compress"` // zstd, only with binary
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a complete, valid configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			UDPPort:        8080,
			BindAddress:    "127.0.0.1",
			BufferSize:     2048,
			Workers:        4,
			QueueSize:      1000,
			SessionTimeout: 60,
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Sync: SyncConfig{
			MinSyncPackets: 3,
			Timezone:       "Local",
		},
		Export: ExportConfig{
			OutputDir:      "",
			WriteErrors:    true,
			WriteTimeSyncs: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 512 {
		return fmt.Errorf("buffer_size must be at least 512 bytes, got %d", s.BufferSize)
	}

	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	if s.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", s.SessionTimeout)
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

// Validate validates sync configuration
func (s *SyncConfig) Validate() error {
	if s.MinSyncPackets < 3 {
		return fmt.Errorf("min_sync_packets must be at least 3 (one RD/TL/AK handshake), got %d", s.MinSyncPackets)
	}

	if _, err := s.GetLocation(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	return nil
}

// Validate validates export configuration
func (e *ExportConfig) Validate() error {
	if e.Compress && !e.Binary {
		return fmt.Errorf("compress requires binary export to be enabled")
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

// GetLocation returns the zone TL sent-times are interpreted in
func (s *SyncConfig) GetLocation() (*time.Location, error) {
	switch s.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(s.Timezone)
	}
}

// GetAddress returns the UDP listen address
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.UDPPort)
}

// GetAddress returns the HTTP listen address
func (h *HTTPConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// GetSessionTimeout returns the idle time after which a device session is finalized
func (s *ServerConfig) GetSessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeout) * time.Second
}

// GetReadTimeout returns how long the UDP receive loop blocks before
// re-checking for shutdown
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Second
}
