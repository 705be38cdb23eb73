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
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"rokubridge/internal"
	"rokubridge/internal/host"
	"rokubridge/internal/logger"
)

// healthCheckInterval is how often the daemon logs its health summary
const healthCheckInterval = 60 * time.Second

// Daemon represents the bridge daemon
type Daemon struct {
	config     *Config
	configPath string
	options    *internal.RunMode

	registry *host.Registry
	manager  *Manager
	api      *host.APIServer
	journal  *host.Journal
	mirror   *host.Mirror
	detach   []func()

	logger  zerolog.Logger
	running bool
	mutex   sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	ready   chan struct{}
}

// NewDaemon creates a bridge daemon from a configuration file
func NewDaemon(configPath string, debug, testMode bool) (*Daemon, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := NewDaemonWithConfig(config, internal.NewRunMode(internal.WithDebug(debug), internal.WithSimulation(testMode)))
	d.configPath = configPath
	return d, nil
}

// NewDaemonWithConfig creates a bridge daemon from a loaded configuration
func NewDaemonWithConfig(config *Config, options *internal.RunMode) *Daemon {
	if options == nil {
		options = internal.NewRunMode()
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:   config,
		options:  options,
		registry: host.NewRegistry(),
		logger:   logger.GetLogger("daemon"),
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
	}

	connector := NewECPConnector(config.ECP.Timeout, config.Bridge.DiscoveryTimeout, options)
	d.manager = NewManager(d.registry, connector, WithPollInterval(config.Bridge.PollInterval))

	return d
}

// Start runs the daemon until a shutdown signal arrives or Stop is called
func (d *Daemon) Start() error {
	d.mutex.Lock()
	if d.running {
		d.mutex.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.mutex.Unlock()

	logger.SetLevel(d.config.Log.Level)
	if d.options.Debug {
		logger.SetLevel(logger.LOG_DEBUG)
	}

	d.logger.Info().
		Str("bridge_id", d.config.Bridge.ID).
		Stringer("mode", d.options).
		Msg("Starting Roku bridge daemon")

	if err := d.startSurfaces(); err != nil {
		d.Stop()
		return err
	}

	d.manager.AddKnownDevices(d.ctx, d.config.Devices)
	for _, address := range d.config.InvalidDevices() {
		d.logger.Warn().
			Str("address", address).
			Msg("Ignoring malformed configured address")
	}

	if d.config.Bridge.DiscoverOnStart {
		d.manager.StartDiscovery(d.ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go d.startHealthCheck()

	d.logger.Info().
		Int("configured_devices", len(d.config.Devices)).
		Str("api_listen", d.config.API.Listen).
		Msg("Bridge daemon started successfully")
	close(d.ready)

	select {
	case sig := <-sigChan:
		d.logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		return d.Stop()
	case <-d.ctx.Done():
		d.logger.Info().Msg("Context cancelled")
		return d.Stop()
	}
}

// startSurfaces brings up the journal, the MQTT mirror and the API
func (d *Daemon) startSurfaces() error {
	if d.config.Journal.Path != "" {
		journal, err := host.OpenJournal(d.config.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open action journal: %w", err)
		}
		d.journal = journal
		d.detach = append(d.detach, journal.Attach(d.registry))
	}

	if d.config.MQTT.Enabled {
		mirror, err := host.NewMirror(host.MQTTConfig{
			Broker:      d.config.MQTT.Broker,
			Username:    d.config.MQTT.Username,
			Password:    d.config.MQTT.Password,
			TopicPrefix: d.config.MQTT.TopicPrefix,
			ClientID:    d.config.MQTT.ClientID,
		}, d.registry, d.manager)
		if err != nil {
			d.logger.Warn().
				Err(err).
				Msg("MQTT mirror unavailable, continuing without it")
		} else {
			d.mirror = mirror
			mirror.Start()
		}
	}

	jwtService := host.NewJWTService(d.config.API.JWTSecret, d.config.API.JWTIssuer, d.config.API.TokenExpiryHours)
	d.api = host.NewAPIServer(d.ctx, d.config.API.Listen, d.registry, d.manager, d.journal, jwtService)
	if err := d.api.Start(); err != nil {
		return fmt.Errorf("failed to start control API: %w", err)
	}

	return nil
}

// Ready is closed once the daemon has started all components
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Stop stops the bridge daemon gracefully
func (d *Daemon) Stop() error {
	d.mutex.Lock()
	if !d.running {
		d.mutex.Unlock()
		return nil
	}
	d.running = false
	d.mutex.Unlock()

	d.logger.Info().Msg("Stopping bridge daemon")

	d.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if d.api != nil {
		if err := d.api.Stop(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("Error stopping control API")
		}
	}

	d.manager.Shutdown()

	if d.mirror != nil {
		d.mirror.Stop()
	}

	for _, detach := range d.detach {
		detach()
	}

	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Error closing action journal")
		}
	}

	d.logger.Info().Msg("Bridge daemon stopped")
	return nil
}

func (d *Daemon) startHealthCheck() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.performHealthCheck()
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Daemon) performHealthCheck() {
	status := d.GetStatus()
	d.logger.Info().
		Int("device_count", d.manager.DeviceCount()).
		Bool("pairing", d.manager.Pairing()).
		Interface("mqtt_connected", status["mqtt_connected"]).
		Msg("Health check completed")
}

// IsRunning returns whether the daemon is currently running
func (d *Daemon) IsRunning() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.running
}

// Manager returns the device manager
func (d *Daemon) Manager() *Manager {
	return d.manager
}

// APIAddr returns the address the control API is bound to
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.Addr()
}

// Registry returns the host registry
func (d *Daemon) Registry() *host.Registry {
	return d.registry
}

// GetStatus returns the current status of the daemon
func (d *Daemon) GetStatus() map[string]interface{} {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return map[string]interface{}{
		"running":        d.running,
		"bridge_id":      d.config.Bridge.ID,
		"mode":           d.options.String(),
		"device_count":   d.manager.DeviceCount(),
		"pairing":        d.manager.Pairing(),
		"mqtt_connected": d.mirror != nil && d.mirror.Connected(),
		"journal":        d.journal != nil,
		"nonce_cache":    d.manager.NonceStats(),
	}
}
