// Package config defines the YAML-loadable client configuration and
// its defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete ChatKit client configuration. Zero values are
// filled from defaults at load time; only NATS.URL is required.
type Config struct {
	NATS     NATSConfig     `yaml:"nats"`
	ClientID string         `yaml:"client_id"` // generated when empty
	Messages MessagesConfig `yaml:"messages"`
	Typing   TypingConfig   `yaml:"typing"`
	Release  ReleaseConfig  `yaml:"release"`
}

// NATSConfig configures the transport connection and stream naming.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	ConnectWait   time.Duration `yaml:"connect_wait"`
}

// MessagesConfig configures the live message window.
type MessagesConfig struct {
	WindowLimit int `yaml:"window_limit"`
}

// TypingConfig configures the typing heartbeat protocol.
type TypingConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"` // derived from heartbeat when zero
}

// ReleaseConfig configures the backoff of the unbounded room release
// retry. There is no attempt cap: release retries until it succeeds.
type ReleaseConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Stream:        "CHATKIT",
			SubjectPrefix: "chatkit",
			ConnectWait:   5 * time.Second,
		},
		Messages: MessagesConfig{
			WindowLimit: 200,
		},
		Typing: TypingConfig{
			HeartbeatInterval: 10 * time.Second,
		},
		Release: ReleaseConfig{
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Load reads and parses the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML configuration document, fills defaults and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.NATS.URL == "" {
		c.NATS.URL = def.NATS.URL
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = def.NATS.Stream
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = def.NATS.SubjectPrefix
	}
	if c.NATS.ConnectWait <= 0 {
		c.NATS.ConnectWait = def.NATS.ConnectWait
	}
	if c.Messages.WindowLimit <= 0 {
		c.Messages.WindowLimit = def.Messages.WindowLimit
	}
	if c.Typing.HeartbeatInterval <= 0 {
		c.Typing.HeartbeatInterval = def.Typing.HeartbeatInterval
	}
	if c.Release.InitialDelay <= 0 {
		c.Release.InitialDelay = def.Release.InitialDelay
	}
	if c.Release.MaxDelay <= 0 {
		c.Release.MaxDelay = def.Release.MaxDelay
	}
	if c.Release.Multiplier <= 1 {
		c.Release.Multiplier = def.Release.Multiplier
	}
}

// Validate checks cross-field consistency. Called by Parse after
// defaults are applied; callers building a Config in code should call
// it themselves.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if c.NATS.Stream == "" {
		return errors.New("nats.stream is required")
	}
	if c.NATS.SubjectPrefix == "" {
		return errors.New("nats.subject_prefix is required")
	}
	if c.Typing.InactivityTimeout != 0 && c.Typing.InactivityTimeout <= c.Typing.HeartbeatInterval {
		return errors.New("typing.inactivity_timeout must exceed typing.heartbeat_interval")
	}
	if c.Release.MaxDelay < c.Release.InitialDelay {
		return errors.New("release.max_delay must not be below release.initial_delay")
	}
	return nil
}
