package host

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rokubridge/internal/device"
)

func newTestClient(t *testing.T, f *apiFixture, token string) *APIClient {
	t.Helper()
	server := httptest.NewServer(f.server.Handler())
	t.Cleanup(server.Close)
	return NewAPIClient(server.URL+"/", token, time.Second)
}

func TestAPIClient_Devices(t *testing.T) {
	f := newAPIFixture(t, nil)
	client := newTestClient(t, f, f.token)
	ctx := context.Background()

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])

	devices, err := client.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "roku-X1", devices[0].ID)
	assert.Equal(t, []string{"Back", "Home"}, devices[0].Actions["sendKeypress"].Input.Enum)

	desc, err := client.Device(ctx, "roku-X1")
	require.NoError(t, err)
	assert.Equal(t, "Netflix", *desc.Properties["activeApp"].Value)

	_, err = client.Device(ctx, "roku-missing")
	assert.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "404")

	removed, err := client.RemoveDevice(ctx, "roku-X1")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestAPIClient_Unauthorized(t *testing.T) {
	f := newAPIFixture(t, nil)
	client := newTestClient(t, f, "")

	_, err := client.Devices(context.Background())
	assert.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "401")

	// health stays open
	_, err = client.Health(context.Background())
	assert.NoError(t, err)
}

func TestAPIClient_PerformAction(t *testing.T) {
	f := newAPIFixture(t, nil)
	client := newTestClient(t, f, f.token)
	ctx := context.Background()

	req := device.ActionRequest{Name: "sendKeypress", Input: "Home", Nonce: "1691234567890-a1b2c3d4"}
	resp, err := client.PerformAction(ctx, "roku-X1", req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Action)
	assert.Equal(t, device.ActionSucceeded, resp.Action.Status)
	assert.Equal(t, []device.ActionRequest{req}, f.controller.Requests())

	f.controller.mu.Lock()
	f.controller.action.Status = device.ActionFailed
	f.controller.action.Error = "unknown app"
	f.controller.mu.Unlock()
	resp, err = client.PerformAction(ctx, "roku-X1", device.ActionRequest{Name: "launchApp", Input: "Plex"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "unknown app", resp.Error)

	f.controller.mu.Lock()
	f.controller.err = device.ErrDeviceNotFound
	f.controller.mu.Unlock()
	_, err = client.PerformAction(ctx, "roku-missing", device.ActionRequest{Name: "sendText", Input: "a"})
	assert.ErrorIs(t, err, ErrAPI)
}

func TestAPIClient_Pairing(t *testing.T) {
	f := newAPIFixture(t, nil)
	client := newTestClient(t, f, f.token)
	ctx := context.Background()

	started, err := client.StartPairing(ctx)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = client.StartPairing(ctx)
	require.NoError(t, err)
	assert.False(t, started)

	pairing, err := client.Pairing(ctx)
	require.NoError(t, err)
	assert.True(t, pairing)

	require.NoError(t, client.CancelPairing(ctx))
	pairing, err = client.Pairing(ctx)
	require.NoError(t, err)
	assert.False(t, pairing)
}

func TestAPIClient_Actions(t *testing.T) {
	journal := openTestJournal(t)
	f := newAPIFixture(t, journal)
	journal.Attach(f.registry)
	client := newTestClient(t, f, f.token)

	for _, id := range []string{"a1", "a2"} {
		f.registry.NotifyActionStatus("roku-X1", device.Action{
			ID:            id,
			DeviceID:      "roku-X1",
			Name:          "sendText",
			Input:         "hi",
			Status:        device.ActionSucceeded,
			TimeRequested: time.Now(),
		})
	}

	entries, err := client.Actions(context.Background(), "roku-X1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "roku-X1", entries[0].DeviceID)

	entries, err = client.Actions(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
