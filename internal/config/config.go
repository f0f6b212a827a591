// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joshp123/kumocloud/internal/tokens"
)

const (
	DefaultScanInterval = 60 * time.Second
	MinScanInterval     = 30 * time.Second
	MaxScanInterval     = 300 * time.Second

	DefaultSettle = 2 * time.Second
	MinSettle     = 500 * time.Millisecond
	MaxSettle     = 5 * time.Second

	DefaultHTTPAddr  = ":8099"
	DefaultStatePath = "/var/lib/kumocloud/state.json"
)

// Config is the top of the YAML file.
type Config struct {
	SiteID              string `yaml:"site_id"`
	ScanIntervalSeconds int    `yaml:"scan_interval_seconds"`
	HTTPAddr            string `yaml:"http_addr"`
	CredentialsFile     string `yaml:"credentials_file"`

	API      APIConfig      `yaml:"api"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Commands CommandsConfig `yaml:"commands"`
	MQTT     *MQTTConfig    `yaml:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
}

type TokensConfig struct {
	StatePath string             `yaml:"state_path"`
	Blob      *tokens.BlobConfig `yaml:"blob"`
}

type CommandsConfig struct {
	SettleSeconds float64 `yaml:"settle_seconds"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic_prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// Credentials live in their own file so the main config can be
// committed without secrets.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.Username == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf("credentials file needs username and password")
	}
	return creds, nil
}

func (c *Config) applyDefaults() {
	if c.ScanIntervalSeconds == 0 {
		c.ScanIntervalSeconds = int(DefaultScanInterval / time.Second)
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = DefaultHTTPAddr
	}
	if c.Tokens.StatePath == "" {
		c.Tokens.StatePath = DefaultStatePath
	}
	if c.Commands.SettleSeconds == 0 {
		c.Commands.SettleSeconds = DefaultSettle.Seconds()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.MQTT != nil && c.MQTT.Topic == "" {
		c.MQTT.Topic = "kumocloud"
	}
}

func (c *Config) Validate() error {
	if c.CredentialsFile == "" {
		return fmt.Errorf("credentials_file is required")
	}
	interval := c.ScanInterval()
	if interval < MinScanInterval || interval > MaxScanInterval {
		return fmt.Errorf("scan_interval_seconds %d out of range [%d, %d]",
			c.ScanIntervalSeconds, int(MinScanInterval/time.Second), int(MaxScanInterval/time.Second))
	}
	settle := c.Settle()
	if settle < MinSettle || settle > MaxSettle {
		return fmt.Errorf("commands.settle_seconds %.2f out of range [%.1f, %.1f]",
			c.Commands.SettleSeconds, MinSettle.Seconds(), MaxSettle.Seconds())
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is configured")
	}
	return nil
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

func (c *Config) Settle() time.Duration {
	return time.Duration(c.Commands.SettleSeconds * float64(time.Second))
}
