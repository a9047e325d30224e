// Package config loads the service configuration from a YAML or JSON file
// with K_ prefixed environment overrides. The service never writes it back.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/trena/core/factory"
	"github.com/kilianp07/trena/core/metrics"
	"github.com/kilianp07/trena/infra/logger"
	"github.com/kilianp07/trena/infra/mqtt"
	"github.com/kilianp07/trena/infra/network"
)

// DefaultSensorType is the driver used when sensor.type is not set.
const DefaultSensorType = "vl53l0x"

type Config struct {
	MQTT    mqtt.Config          `json:"mqtt"`
	Sensor  factory.ModuleConfig `json:"sensor"`
	Network network.Config       `json:"network"`
	Command CommandConfig        `json:"command"`
	Metrics metrics.Config       `json:"metrics"`
	Logging logger.Config        `json:"logging"`
	Sentry  SentryConfig         `json:"sentry"`
}

// CommandConfig tunes the command worker.
type CommandConfig struct {
	// QueueSize bounds the number of commands waiting for the sensor.
	QueueSize int `json:"queue_size"`
}

// Load reads path, applies environment overrides and defaults, then
// validates the result. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// K_MQTT__BROKER overrides mqtt.broker.
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Network.SetDefaults()
	c.Logging.SetDefaults()
	if c.Sensor.Type == "" {
		c.Sensor.Type = DefaultSensorType
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Sentry.Validate(); err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	if c.Command.QueueSize < 0 {
		return fmt.Errorf("command: queue_size must not be negative")
	}
	for i, s := range c.Metrics.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics: sink %d has no type", i)
		}
	}
	return nil
}
