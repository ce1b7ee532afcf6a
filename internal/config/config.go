// Package config loads the daemon's runtime configuration.
//
// Daemon settings live in an optional YAML file next to the project root;
// every field has a working default so `foreman start` needs no config at
// all. Project settings (rails, workflow) are a separate JSON entity owned
// by the store; this file only shapes the process around it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the daemon config file looked up under the project root.
const FileName = "foreman.yaml"

// Config is the daemon runtime configuration.
type Config struct {
	Host     string `yaml:"host"`
	BasePort int    `yaml:"base_port"` // first port tried; scan continues upward
	PortSpan int    `yaml:"port_span"` // how many ports to try from base

	RateLimit RateLimit `yaml:"rate_limit"`
	Log       Log       `yaml:"log"`

	HeartbeatSec    int  `yaml:"heartbeat_sec"`
	ShutdownGraceMS int  `yaml:"shutdown_grace_ms"`
	SearchIndex     bool `yaml:"search_index"`
}

// RateLimit bounds tool-channel request volume per sliding window.
type RateLimit struct {
	MaxRequests int `yaml:"max_requests"`
	WindowSec   int `yaml:"window_sec"`
}

// Log configures activity-log rotation.
type Log struct {
	MaxBytes           int64 `yaml:"max_bytes"`
	Retain             int   `yaml:"retain"`
	CompressTimeoutSec int   `yaml:"compress_timeout_sec"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Host:            "127.0.0.1",
		BasePort:        4466,
		PortSpan:        20,
		RateLimit:       RateLimit{MaxRequests: 120, WindowSec: 10},
		Log:             Log{MaxBytes: 5 << 20, Retain: 3, CompressTimeoutSec: 30},
		HeartbeatSec:    30,
		ShutdownGraceMS: 500,
		SearchIndex:     true,
	}
}

// Load reads the config file at path, filling unset fields with defaults.
// A missing file is not an error; the defaults are the config.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BasePort <= 0 || c.BasePort > 65535 {
		return fmt.Errorf("base_port %d out of range", c.BasePort)
	}
	if c.PortSpan <= 0 {
		return fmt.Errorf("port_span must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.WindowSec <= 0 {
		return fmt.Errorf("rate_limit needs positive max_requests and window_sec")
	}
	if c.HeartbeatSec <= 0 {
		return fmt.Errorf("heartbeat_sec must be positive")
	}
	if c.Log.MaxBytes <= 0 || c.Log.Retain <= 0 {
		return fmt.Errorf("log needs positive max_bytes and retain")
	}
	return nil
}

// Heartbeat returns the heartbeat interval as a duration.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSec) * time.Second
}

// ShutdownGrace returns the grace window between the shutdown notice and
// socket close.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMS) * time.Millisecond
}

// RateWindow returns the rate-limit window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSec) * time.Second
}

// CompressTimeout returns the rotation compression ceiling.
func (c *Config) CompressTimeout() time.Duration {
	return time.Duration(c.Log.CompressTimeoutSec) * time.Second
}
