// Package config loads engine configuration from a TOML file with
// environment overrides for containerized deployments.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config represents the engine configuration.
type Config struct {
	Server  ServerConfig  `toml:"server" json:"server"`
	Capture CaptureConfig `toml:"capture" json:"capture"`
	Catalog CatalogConfig `toml:"catalog" json:"catalog"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`
}

// CaptureConfig holds capture engine settings.
type CaptureConfig struct {
	FrameQueueSize   int `toml:"frame_queue_size" json:"frame_queue_size"`
	DefaultTargetFPS int `toml:"default_target_fps" json:"default_target_fps"`
	MaxSources       int `toml:"max_sources" json:"max_sources"`
}

// CatalogConfig holds source catalog settings.
type CatalogConfig struct {
	Path string `toml:"path" json:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string `toml:"level" json:"level"`
	Development bool   `toml:"development" json:"development"`
}

// Addr is the server's listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads the TOML file at path when it exists, then applies environment
// overrides. A missing file is not an error, the defaults stand.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8100,
		},
		Capture: CaptureConfig{
			FrameQueueSize:   30,
			DefaultTargetFPS: 10,
			MaxSources:       10,
		},
		Catalog: CatalogConfig{
			Path: "argus.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PERCEPTION_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("PERCEPTION_PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := envInt("FRAME_QUEUE_SIZE"); ok {
		cfg.Capture.FrameQueueSize = v
	}
	if v, ok := envInt("DEFAULT_TARGET_FPS"); ok {
		cfg.Capture.DefaultTargetFPS = v
	}
	if v, ok := envInt("MAX_SOURCES"); ok {
		cfg.Capture.MaxSources = v
	}
	if v := os.Getenv("CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
