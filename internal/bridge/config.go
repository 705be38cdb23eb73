// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"rokubridge/internal/ecp"
	"rokubridge/internal/logger"
)

// DefaultConfigPath is where the bridge looks for its configuration
const DefaultConfigPath = "bridge.yml"

// Config represents the bridge configuration structure
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge"`
	Devices []string      `yaml:"devices"`
	ECP     ECPConfig     `yaml:"ecp"`
	API     APIConfig     `yaml:"api"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

// BridgeConfig contains bridge identity and discovery behaviour
type BridgeConfig struct {
	ID               string        `yaml:"id"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	DiscoverOnStart  bool          `yaml:"discover_on_start"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
}

// ECPConfig contains device protocol settings
type ECPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// APIConfig contains control API settings
type APIConfig struct {
	Listen           string `yaml:"listen"`
	JWTSecret        string `yaml:"jwt_secret"`
	JWTIssuer        string `yaml:"jwt_issuer"`
	TokenExpiryHours int    `yaml:"token_expiry_hours"`
}

// MQTTConfig contains MQTT mirror settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// JournalConfig contains action journal settings. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, fills defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Bridge.ID == "" {
		c.Bridge.ID = "rokubridge"
	}
	if c.Bridge.PollInterval <= 0 {
		c.Bridge.PollInterval = DefaultPollInterval
	}
	if c.Bridge.DiscoveryTimeout <= 0 {
		c.Bridge.DiscoveryTimeout = ecp.DefaultDiscoveryTimeout
	}
	if c.ECP.Timeout <= 0 {
		c.ECP.Timeout = ecp.DefaultTimeout
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8081"
	}
	if c.API.JWTIssuer == "" {
		c.API.JWTIssuer = "rokubridge"
	}
	if c.API.TokenExpiryHours <= 0 {
		c.API.TokenExpiryHours = 24
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "rokubridge"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Bridge.ID
	}
	if c.Log.Level == "" {
		c.Log.Level = logger.LOG_INFO
	}
}

// Validate checks if the configuration is valid. Malformed device addresses
// are not an error: the bridge skips them at start-up.
func (c *Config) Validate() error {
	if c.Bridge.ID == "" {
		return fmt.Errorf("bridge.id is required")
	}
	if c.Bridge.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("bridge.poll_interval must be at least 100ms")
	}
	if c.ECP.Timeout <= 0 {
		return fmt.Errorf("ecp.timeout must be positive")
	}

	if c.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}
	if len(c.API.JWTSecret) < 16 {
		return fmt.Errorf("api.jwt_secret must be at least 16 characters")
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}

	switch c.Log.Level {
	case logger.LOG_DEBUG, logger.LOG_INFO, logger.LOG_WARN, logger.LOG_ERROR:
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}

	return nil
}

// InvalidDevices lists configured addresses that will be ignored
func (c *Config) InvalidDevices() []string {
	var invalid []string
	for _, address := range c.Devices {
		if !ValidAddress(address) {
			invalid = append(invalid, address)
		}
	}
	return invalid
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filepath string) error {
	return SaveConfig(c, filepath)
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewDefaultConfig creates a configuration template with a fresh bridge id
// and API secret
func NewDefaultConfig() *Config {
	config := &Config{
		Bridge: BridgeConfig{
			ID:              "rokubridge-" + uuid.New().String()[:8],
			DiscoverOnStart: true,
		},
		Devices: []string{
			"http://192.168.1.100:8060",
		},
		API: APIConfig{
			JWTSecret: generateSecret(),
		},
		Journal: JournalConfig{
			Path: "rokubridge.db",
		},
	}
	config.ApplyDefaults()

	return config
}

func generateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return uuid.New().String() + uuid.New().String()
	}
	return hex.EncodeToString(buf)
}
