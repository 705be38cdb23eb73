package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"rokubridge/internal/device"
	"rokubridge/internal/logger"
)

// ErrAPI wraps every non-2xx answer from the control API
var ErrAPI = errors.New("control API error")

// APIClient is a typed client for the bridge control API
type APIClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     zerolog.Logger
}

// NewAPIClient creates a client for the API at baseURL authenticating with token
func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &APIClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		logger:  logger.GetLogger("api-client"),
	}
}

// BaseURL returns the API base URL
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// Health queries the unauthenticated health endpoint
func (c *APIClient) Health(ctx context.Context) (map[string]interface{}, error) {
	var data map[string]interface{}
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Devices lists every registered device
func (c *APIClient) Devices(ctx context.Context) ([]device.Description, error) {
	var data struct {
		Devices []device.Description `json:"devices"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/devices", nil, &data); err != nil {
		return nil, err
	}
	return data.Devices, nil
}

// Device fetches one device description
func (c *APIClient) Device(ctx context.Context, id string) (*device.Description, error) {
	var desc device.Description
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/devices/"+url.PathEscape(id), nil, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// RemoveDevice asks the bridge to forget a device
func (c *APIClient) RemoveDevice(ctx context.Context, id string) (bool, error) {
	var data struct {
		Removed bool `json:"removed"`
	}
	if _, err := c.do(ctx, http.MethodDelete, "/api/v1/devices/"+url.PathEscape(id), nil, &data); err != nil {
		return false, err
	}
	return data.Removed, nil
}

// PerformAction runs an action on a device. A failed action is not an error;
// it is reported in the returned response.
func (c *APIClient) PerformAction(ctx context.Context, id string, req device.ActionRequest) (*device.ActionResponse, error) {
	var resp device.ActionResponse
	envelope, err := c.do(ctx, http.MethodPost, "/api/v1/devices/"+url.PathEscape(id)+"/actions", req, &resp)
	if err != nil {
		return nil, err
	}

	resp.Success = envelope.Success
	if resp.Error == "" {
		resp.Error = envelope.Error
	}
	return &resp, nil
}

// StartPairing starts a discovery sweep. It reports false if one was running.
func (c *APIClient) StartPairing(ctx context.Context) (bool, error) {
	var data struct {
		Started bool `json:"started"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/pairing", nil, &data); err != nil {
		return false, err
	}
	return data.Started, nil
}

// CancelPairing cancels the running discovery sweep
func (c *APIClient) CancelPairing(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/pairing", nil, nil)
	return err
}

// Pairing reports whether a discovery sweep is running
func (c *APIClient) Pairing(ctx context.Context) (bool, error) {
	var data struct {
		Pairing bool `json:"pairing"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/pairing", nil, &data); err != nil {
		return false, err
	}
	return data.Pairing, nil
}

// Actions reads the action journal, newest first. deviceID may be empty.
func (c *APIClient) Actions(ctx context.Context, deviceID string, limit int) ([]JournalEntry, error) {
	query := url.Values{}
	if deviceID != "" {
		query.Set("device_id", deviceID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	path := "/api/v1/actions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var data struct {
		Actions []JournalEntry `json:"actions"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data.Actions, nil
}

// do sends one request and decodes the envelope's data into out
func (c *APIClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Sending API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach bridge: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Response
		Data json.RawMessage `json:"data,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := envelope.Message
		if envelope.Error != "" {
			reason += ": " + envelope.Error
		}
		return nil, fmt.Errorf("%w %d: %s", ErrAPI, resp.StatusCode, reason)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return &envelope.Response, nil
}
