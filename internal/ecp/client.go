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

package ecp

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"rokubridge/internal"
	"rokubridge/internal/logger"
)

// DefaultTimeout bounds a single ECP request
const DefaultTimeout = 10 * time.Second

// ErrUnexpectedStatus is returned when the device answers with a non-2xx status
var ErrUnexpectedStatus = errors.New("unexpected status")

// Client talks to one Roku device over the External Control Protocol
type Client struct {
	httpClient *http.Client
	address    string
	options    internal.RunMode
	logger     zerolog.Logger
}

// NewClient creates a client for the device at address (http://ip:port)
func NewClient(address string, timeout time.Duration, options *internal.RunMode) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if options == nil {
		options = internal.NewRunMode()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		address: strings.TrimSuffix(address, "/"),
		options: *options,
		logger:  logger.GetLogger("ecp").With().Str("address", address).Logger(),
	}
}

// Address returns the base URL of the device
func (c *Client) Address() string {
	return c.address
}

// Info fetches /query/device-info
func (c *Client) Info(ctx context.Context) (*DeviceInfo, error) {
	if c.options.Simulate {
		return simulatedInfo(c.address), nil
	}

	var info DeviceInfo
	if err := c.query(ctx, DeviceInfoEndpoint, &info); err != nil {
		return nil, fmt.Errorf("failed to query device info: %w", err)
	}

	return &info, nil
}

// ActiveApp fetches the foreground app. It returns nil when the home screen
// or screensaver is showing, which the device reports as an app without id.
func (c *Client) ActiveApp(ctx context.Context) (*App, error) {
	if c.options.Simulate {
		app := simulatedApps[0]
		return &app, nil
	}

	var resp activeAppResponse
	if err := c.query(ctx, ActiveAppEndpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to query active app: %w", err)
	}

	if resp.App.ID == "" {
		return nil, nil
	}

	app := resp.App
	app.Name = strings.TrimSpace(app.Name)
	return &app, nil
}

// Apps fetches the installed app catalog
func (c *Client) Apps(ctx context.Context) ([]App, error) {
	if c.options.Simulate {
		return append([]App(nil), simulatedApps...), nil
	}

	var resp appsResponse
	if err := c.query(ctx, AppsEndpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}

	apps := make([]App, 0, len(resp.Apps))
	for _, app := range resp.Apps {
		app.Name = strings.TrimSpace(app.Name)
		apps = append(apps, app)
	}

	return apps, nil
}

// Keypress sends a single key
func (c *Client) Keypress(ctx context.Context, key Key) error {
	if err := c.command(ctx, string(KeypressEndpoint)+url.PathEscape(string(key))); err != nil {
		return fmt.Errorf("failed to send keypress %s: %w", key, err)
	}
	return nil
}

// Text types text by sending one literal keypress per character
func (c *Client) Text(ctx context.Context, text string) error {
	for _, r := range text {
		path := string(KeypressEndpoint) + "Lit_" + url.PathEscape(string(r))
		if err := c.command(ctx, path); err != nil {
			return fmt.Errorf("failed to send text: %w", err)
		}
	}
	return nil
}

// Launch starts the app with the given id
func (c *Client) Launch(ctx context.Context, appID string) error {
	if err := c.command(ctx, string(LaunchEndpoint)+url.PathEscape(appID)); err != nil {
		return fmt.Errorf("failed to launch app %s: %w", appID, err)
	}
	return nil
}

// TuneChannel switches a Roku TV's tuner input to channel (e.g. "7.1")
func (c *Client) TuneChannel(ctx context.Context, channel string) error {
	path := string(LaunchEndpoint) + TunerAppID + "?ch=" + url.QueryEscape(channel)
	if err := c.command(ctx, path); err != nil {
		return fmt.Errorf("failed to tune to channel %s: %w", channel, err)
	}
	return nil
}

// query performs a GET and decodes the XML body into out
func (c *Client) query(ctx context.Context, endpoint Endpoint, out interface{}) error {
	reqURL := c.address + string(endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.options.Debug {
		c.logger.Debug().
			Str("url", reqURL).
			Msg("Sending ECP query")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// command performs a POST with an empty body
func (c *Client) command(ctx context.Context, path string) error {
	reqURL := c.address + path

	if c.options.Simulate {
		c.logger.Info().
			Str("url", reqURL).
			Msg("Test mode: ECP command simulated")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.options.Debug {
		c.logger.Debug().
			Str("url", reqURL).
			Msg("Sending ECP command")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		if c.options.Debug {
			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("body", string(body)).
				Msg("ECP command failed")
		}
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

// NormalizeAddress reduces a device URL to scheme://host:port so the same
// device reached through configuration and discovery compares equal
func NormalizeAddress(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid address %q: missing scheme or host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

var simulatedApps = []App{
	{ID: "12", Type: "appl", Name: "Netflix"},
	{ID: "837", Type: "appl", Name: "YouTube"},
	{ID: "2285", Type: "appl", Name: "Hulu"},
}

func simulatedInfo(address string) *DeviceInfo {
	id := strings.NewReplacer("http://", "", ".", "", ":", "").Replace(address)
	return &DeviceInfo{
		DeviceID:           "SIM" + id,
		VendorName:         "Roku",
		ModelName:          "Simulated Roku TV",
		FriendlyDeviceName: "Simulated Roku (" + address + ")",
		FriendlyModelName:  "Roku TV",
		PowerMode:          "PowerOn",
		IsTV:               "true",
		SupportsFindRemote: "true",
	}
}
