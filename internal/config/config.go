// Package config loads service configuration by layering defaults, an
// optional YAML file, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config contains process configuration.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":3000".
	Addr string `koanf:"addr"`

	// PublicBaseURL is the externally visible origin used to build CV view
	// links, e.g. "http://localhost:3000".
	PublicBaseURL string `koanf:"public_base_url"`

	// StorageDriver selects the durable backend: "file" or "sqlite".
	StorageDriver string `koanf:"storage_driver"`

	// DataDir holds the JSON record files for the file driver.
	DataDir string `koanf:"data_dir"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// HTTP server timeouts.
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// WebSocket liveness and buffering.
	WSPingInterval time.Duration `koanf:"ws_ping_interval"`
	WSReadTimeout  time.Duration `koanf:"ws_read_timeout"`
	WSWriteTimeout time.Duration `koanf:"ws_write_timeout"`
	WSSendBuffer   int           `koanf:"ws_send_buffer"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		Addr:           ":3000",
		PublicBaseURL:  "http://localhost:3000",
		StorageDriver:  "file",
		DataDir:        "./data",
		SQLitePath:     "./cvlive.db",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		WSPingInterval: 30 * time.Second,
		WSReadTimeout:  60 * time.Second,
		WSWriteTimeout: 10 * time.Second,
		WSSendBuffer:   100,
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CVLIVE_CONFIG is set
//  3. env (prefix CVLIVE_, e.g. CVLIVE_ADDR, CVLIVE_STORAGE_DRIVER)
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("CVLIVE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Env keys map to flat koanf tags: CVLIVE_WS_PING_INTERVAL -> ws_ping_interval.
	envProvider := env.Provider("CVLIVE_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "cvlive_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.PublicBaseURL == "" {
		return errors.New("public_base_url must not be empty")
	}
	switch c.StorageDriver {
	case "file":
		if c.DataDir == "" {
			return errors.New("data_dir must not be empty with the file driver")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("sqlite_path must not be empty with the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("http timeouts must be positive")
	}
	if c.WSPingInterval <= 0 || c.WSReadTimeout <= 0 || c.WSWriteTimeout <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	if c.WSPingInterval >= c.WSReadTimeout {
		return errors.New("ws_ping_interval must be shorter than ws_read_timeout")
	}
	if c.WSSendBuffer <= 0 {
		return errors.New("ws_send_buffer must be positive")
	}
	return nil
}
