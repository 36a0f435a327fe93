// Package config provides configuration management for Agentdeck.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// Config holds all configuration sections for Agentdeck.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Agents  AgentsConfig  `mapstructure:"agents"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Logging logger.Config `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// AgentsConfig holds agent binary discovery configuration.
type AgentsConfig struct {
	// BundledDir overrides the default bundled install directory
	// (<executable dir>/agents) when set.
	BundledDir string `mapstructure:"bundledDir"`

	// UserDir overrides the default user-profile install directory
	// (~/.agentdeck/agents) when set.
	UserDir string `mapstructure:"userDir"`

	// DevDir overrides the default development-tree directory
	// (./build/agents) when set.
	DevDir string `mapstructure:"devDir"`

	// DefaultSandboxMode is applied to spawns that do not request a mode.
	// Empty means no --sandbox flag is passed.
	DefaultSandboxMode string `mapstructure:"defaultSandboxMode"`
}

// GatewayConfig holds WebSocket gateway configuration.
type GatewayConfig struct {
	// AuthToken is the shared token connections must present to become
	// eligible for event broadcast. Empty disables the check (development).
	AuthToken string `mapstructure:"authToken"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8137)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentdeck")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("agents.bundledDir", "")
	v.SetDefault("agents.userDir", "")
	v.SetDefault("agents.devDir", "")
	v.SetDefault("agents.defaultSandboxMode", "")

	v.SetDefault("gateway.authToken", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// detectDefaultLogFormat returns "json" in production environments and
// "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if env := os.Getenv("AGENTDECK_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTDECK_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or ~/.agentdeck/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.agentdeck")
		}
	}

	// Config file is optional; only a malformed file is an error.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
