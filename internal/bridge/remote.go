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
	"errors"
	"time"

	"rokubridge/internal"
	"rokubridge/internal/ecp"
)

var (
	// ErrUnknownAction is reported for action names the bridge does not implement
	ErrUnknownAction = errors.New("unknown action")

	// ErrActionUnavailable is reported for actions the device does not expose
	ErrActionUnavailable = errors.New("action not available on this device")

	// ErrUnknownKey is reported for keypress commands outside the device's key set
	ErrUnknownKey = errors.New("unknown keypress command")

	// ErrUnknownApp is reported for app names missing from the device's catalog
	ErrUnknownApp = errors.New("unknown app")
)

// Remote is the control client the bridge drives for one device
type Remote interface {
	Address() string
	Info(ctx context.Context) (*ecp.DeviceInfo, error)
	ActiveApp(ctx context.Context) (*ecp.App, error)
	Apps(ctx context.Context) ([]ecp.App, error)
	Keypress(ctx context.Context, key ecp.Key) error
	Text(ctx context.Context, text string) error
	Launch(ctx context.Context, appID string) error
	TuneChannel(ctx context.Context, channel string) error
}

// Connector creates remotes and finds devices on the network
type Connector interface {
	Connect(address string) Remote
	Discover(ctx context.Context) ([]string, error)
}

// ECPConnector connects to Roku devices over ECP
type ECPConnector struct {
	timeout    time.Duration
	discoverer *ecp.Discoverer
	options    *internal.RunMode
}

// NewECPConnector creates a connector whose clients use the given request timeout
func NewECPConnector(timeout, discoveryTimeout time.Duration, options *internal.RunMode) *ECPConnector {
	return &ECPConnector{
		timeout:    timeout,
		discoverer: ecp.NewDiscoverer(discoveryTimeout),
		options:    options,
	}
}

// Connect returns an ECP client for address
func (c *ECPConnector) Connect(address string) Remote {
	return ecp.NewClient(address, c.timeout, c.options)
}

// Discover runs one SSDP search
func (c *ECPConnector) Discover(ctx context.Context) ([]string, error) {
	return c.discoverer.Discover(ctx)
}
