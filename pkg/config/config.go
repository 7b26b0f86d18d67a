// Package config loads the GdogTAK configuration file and builds the
// application logger.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	Device DeviceConfig `yaml:"device"`
	Unit   UnitConfig   `yaml:"unit"`
	Output OutputConfig `yaml:"output"`
	Link   LinkConfig   `yaml:"link"`

	LogLevel string `yaml:"log_level" default:"info"`
}

// DeviceConfig selects the handheld to bridge.
type DeviceConfig struct {
	// Name is a display-name substring; the first connectable
	// advertisement containing it wins.
	Name string `yaml:"name" default:"Alpha"`
	// Address skips scanning entirely (pre-bonded shortcut).
	Address string `yaml:"address"`
}

// UnitConfig is the identity stamped onto outgoing CoT events.
type UnitConfig struct {
	Callsign string `yaml:"callsign" default:"K9-ROVER"`
	UID      string `yaml:"uid"`
	Team     string `yaml:"team" default:"CCVFD-SAR"`
	Role     string `yaml:"role" default:"SAR Canine"`
}

// OutputConfig is the multicast fan-out target.
type OutputConfig struct {
	Dest  string        `yaml:"dest" default:"239.2.3.1:6969"`
	Stale time.Duration `yaml:"stale" default:"30s"`
}

// LinkConfig tunes the BLE session.
type LinkConfig struct {
	MTU              int           `yaml:"mtu" default:"247"`
	SettleDelay      time.Duration `yaml:"settle_delay" default:"150ms"`
	StepDelay        time.Duration `yaml:"step_delay" default:"250ms"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff" default:"5s"`
	TickInterval     time.Duration `yaml:"tick_interval" default:"1s"`
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file and fills unset fields with defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	defaults.SetDefaults(cfg)

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	return cfg, nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
