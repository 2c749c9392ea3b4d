// Package config loads the optional seriallog TOML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"seriallog/pkg/escape"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = time.Second
	DefaultEncoding    = "utf-8"
)

type Config struct {
	Serial struct {
		Port        string `toml:"port"`
		BaudRate    int    `toml:"baud_rate"`
		ReadTimeout string `toml:"read_timeout"`
	} `toml:"serial"`

	Log struct {
		File      string `toml:"file"`
		Append    bool   `toml:"append"`
		Encoding  string `toml:"encoding"`
		Timestamp *bool  `toml:"timestamp"`
	} `toml:"log"`

	readTimeout time.Duration
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	cfg.readTimeout = DefaultReadTimeout
	return &cfg
}

// Load decodes path, fills in defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode %s: unknown keys %v", path, undecoded)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// ReadTimeout returns the parsed serial.read_timeout.
func (c *Config) ReadTimeout() time.Duration {
	return c.readTimeout
}

// SetReadTimeout overrides serial.read_timeout.
func (c *Config) SetReadTimeout(d time.Duration) {
	c.readTimeout = d
	c.Serial.ReadTimeout = d.String()
}

// Timestamp reports whether lines get an elapsed-time prefix. It defaults to
// true.
func (c *Config) Timestamp() bool {
	return c.Log.Timestamp == nil || *c.Log.Timestamp
}

// SetTimestamp overrides log.timestamp.
func (c *Config) SetTimestamp(enabled bool) {
	c.Log.Timestamp = &enabled
}

func applyDefaults(cfg *Config) {
	if cfg.Serial.BaudRate <= 0 {
		cfg.Serial.BaudRate = DefaultBaudRate
	}
	if strings.TrimSpace(cfg.Serial.ReadTimeout) == "" {
		cfg.Serial.ReadTimeout = DefaultReadTimeout.String()
	}
	if strings.TrimSpace(cfg.Log.Encoding) == "" {
		cfg.Log.Encoding = DefaultEncoding
	}
}

func validate(cfg *Config) error {
	d, err := time.ParseDuration(strings.TrimSpace(cfg.Serial.ReadTimeout))
	if err != nil {
		return fmt.Errorf("serial.read_timeout: %w", err)
	}
	if d <= 0 {
		return errors.New("serial.read_timeout must be positive")
	}
	cfg.readTimeout = d

	if _, err := escape.Lookup(cfg.Log.Encoding); err != nil {
		return fmt.Errorf("log.encoding: %w", err)
	}
	cfg.Serial.Port = strings.TrimSpace(cfg.Serial.Port)
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	return nil
}

// Validate checks the configuration after flag overrides were applied.
func (c *Config) Validate() error {
	applyDefaults(c)
	return validate(c)
}
