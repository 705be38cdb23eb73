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

package cli

import (
	"fmt"
	"net"
	"os"
	"strings"

	"rokubridge/internal/bridge"
	"rokubridge/internal/ecp"
	"rokubridge/internal/host"
)

// ConfigManager handles bridge configuration file operations
type ConfigManager struct {
	configPath string
}

// NewConfigManager creates a new config manager
func NewConfigManager(configPath string) *ConfigManager {
	return &ConfigManager{
		configPath: configPath,
	}
}

// LoadConfig loads the bridge configuration, writing a default one first if
// the file does not exist
func (cm *ConfigManager) LoadConfig() (*bridge.Config, error) {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		defaultConfig := bridge.NewDefaultConfig()
		if err := cm.SaveConfig(defaultConfig); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return defaultConfig, nil
	}

	config, err := bridge.LoadConfig(cm.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return config, nil
}

// SaveConfig saves the bridge configuration
func (cm *ConfigManager) SaveConfig(config *bridge.Config) error {
	if err := bridge.SaveConfig(config, cm.configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// AddDevice adds a device address to the configuration. Addresses are
// normalized first and must have the form http://a.b.c.d:port; a bare
// ip:port is accepted.
func (cm *ConfigManager) AddDevice(address string) (string, error) {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	normalized, err := ecp.NormalizeAddress(address)
	if err != nil {
		return "", err
	}
	if !bridge.ValidAddress(normalized) {
		return "", fmt.Errorf("address '%s' must look like http://192.168.1.100:8060", address)
	}

	config, err := cm.LoadConfig()
	if err != nil {
		return "", err
	}

	for _, existing := range config.Devices {
		if existing == normalized {
			return "", fmt.Errorf("device '%s' already exists", normalized)
		}
	}

	config.Devices = append(config.Devices, normalized)
	return normalized, cm.SaveConfig(config)
}

// RemoveDevice removes a device address from the configuration
func (cm *ConfigManager) RemoveDevice(address string) error {
	config, err := cm.LoadConfig()
	if err != nil {
		return err
	}

	target := address
	if normalized, err := ecp.NormalizeAddress(address); err == nil {
		target = normalized
	}

	for i, existing := range config.Devices {
		if existing == target || existing == address {
			config.Devices = append(config.Devices[:i], config.Devices[i+1:]...)
			return cm.SaveConfig(config)
		}
	}

	return fmt.Errorf("device '%s' not found", address)
}

// ListDevices returns all configured device addresses
func (cm *ConfigManager) ListDevices() ([]string, error) {
	config, err := cm.LoadConfig()
	if err != nil {
		return nil, err
	}

	return config.Devices, nil
}

// DeviceExists checks if an address is configured
func (cm *ConfigManager) DeviceExists(address string) bool {
	devices, err := cm.ListDevices()
	if err != nil {
		return false
	}
	for _, existing := range devices {
		if existing == address {
			return true
		}
	}
	return false
}

// GetDeviceCount returns the number of configured devices
func (cm *ConfigManager) GetDeviceCount() (int, error) {
	devices, err := cm.ListDevices()
	if err != nil {
		return 0, err
	}
	return len(devices), nil
}

// ValidateConfig validates the configuration
func (cm *ConfigManager) ValidateConfig() error {
	config, err := cm.LoadConfig()
	if err != nil {
		return err
	}

	return config.Validate()
}

// GetAPIConfig returns the control API configuration
func (cm *ConfigManager) GetAPIConfig() (*bridge.APIConfig, error) {
	config, err := cm.LoadConfig()
	if err != nil {
		return nil, err
	}

	return &config.API, nil
}

// UpdateMQTTConfig replaces the MQTT mirror configuration
func (cm *ConfigManager) UpdateMQTTConfig(mqtt bridge.MQTTConfig) error {
	config, err := cm.LoadConfig()
	if err != nil {
		return err
	}

	config.MQTT = mqtt
	if err := config.Validate(); err != nil {
		return err
	}
	return cm.SaveConfig(config)
}

// IssueToken mints an API token for client signed with the configured secret
func (cm *ConfigManager) IssueToken(client string) (string, error) {
	api, err := cm.GetAPIConfig()
	if err != nil {
		return "", err
	}

	jwtService := host.NewJWTService(api.JWTSecret, api.JWTIssuer, api.TokenExpiryHours)
	return jwtService.GenerateToken(client)
}

// APIBaseURL returns the URL a local client should use to reach the API
func (cm *ConfigManager) APIBaseURL() (string, error) {
	api, err := cm.GetAPIConfig()
	if err != nil {
		return "", err
	}

	return BaseURLFromListen(api.Listen), nil
}

// BaseURLFromListen turns a listen address into a dialable base URL. Wildcard
// hosts are replaced with the loopback address.
func BaseURLFromListen(listen string) string {
	hostname, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + strings.TrimPrefix(listen, "http://")
	}

	switch hostname {
	case "", "0.0.0.0", "::":
		hostname = "127.0.0.1"
	}

	return "http://" + net.JoinHostPort(hostname, port)
}

// GetConfigPath returns the configuration file path
func (cm *ConfigManager) GetConfigPath() string {
	return cm.configPath
}

// BackupConfig creates a backup of the current configuration
func (cm *ConfigManager) BackupConfig() error {
	config, err := cm.LoadConfig()
	if err != nil {
		return err
	}

	return bridge.SaveConfig(config, cm.configPath+".backup")
}

// RestoreFromBackup restores configuration from backup
func (cm *ConfigManager) RestoreFromBackup() error {
	backupPath := cm.configPath + ".backup"

	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup file does not exist: %s", backupPath)
	}

	config, err := bridge.LoadConfig(backupPath)
	if err != nil {
		return fmt.Errorf("failed to load backup: %w", err)
	}

	return cm.SaveConfig(config)
}
