package bridge_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rokubridge/internal"
	"rokubridge/internal/bridge"
	"rokubridge/internal/host"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func TestDaemon_EndToEnd(t *testing.T) {
	config := bridge.NewDefaultConfig()
	config.Bridge.DiscoverOnStart = false
	config.Devices = []string{"http://192.168.1.100:8060", "roku.local"}
	config.API.Listen = "127.0.0.1:0"
	config.Journal.Path = filepath.Join(t.TempDir(), "journal.db")

	d := bridge.NewDaemonWithConfig(config, internal.NewRunMode(internal.WithSimulation(true)))

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start() }()

	select {
	case <-d.Ready():
	case err := <-errCh:
		t.Fatalf("daemon failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not become ready")
	}
	defer d.Stop()

	assert.True(t, d.IsRunning())
	assert.Equal(t, "simulated", d.GetStatus()["mode"])
	d.Manager().WaitIdle()

	const deviceID = "roku-SIM19216811008060"
	require.Equal(t, 1, d.Manager().DeviceCount())
	_, ok := d.Registry().Device(deviceID)
	require.True(t, ok)

	token, err := host.NewJWTService(config.API.JWTSecret, config.API.JWTIssuer, 1).GenerateToken("test")
	require.NoError(t, err)

	base := "http://" + d.APIAddr()
	call := func(method, path string, body interface{}) (int, apiResponse) {
		t.Helper()

		var payload bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&payload).Encode(body))
		}
		req, err := http.NewRequest(method, base+path, &payload)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var decoded apiResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		return resp.StatusCode, decoded
	}

	status, resp := call(http.MethodPost, "/api/v1/devices/"+deviceID+"/actions", map[string]string{
		"name":  bridge.ActionLaunchApp,
		"input": "YouTube",
		"nonce": bridge.GenerateNonce(),
	})
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success, resp.Error)

	status, resp = call(http.MethodGet, "/api/v1/actions?device_id="+deviceID, nil)
	require.Equal(t, http.StatusOK, status)

	var journal struct {
		Count   int                 `json:"count"`
		Actions []host.JournalEntry `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &journal))
	require.Equal(t, 1, journal.Count)
	assert.Equal(t, bridge.ActionLaunchApp, journal.Actions[0].Name)
	assert.Equal(t, "succeeded", string(journal.Actions[0].Status))

	status, resp = call(http.MethodDelete, "/api/v1/devices/"+deviceID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Zero(t, d.Manager().DeviceCount())

	require.NoError(t, d.Stop())
	assert.False(t, d.IsRunning())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not exit")
	}
}

func TestDaemon_StartFailsOnBusyPort(t *testing.T) {
	config := bridge.NewDefaultConfig()
	config.Bridge.DiscoverOnStart = false
	config.Devices = nil
	config.API.Listen = "127.0.0.1:0"
	config.Journal.Path = ""

	first := bridge.NewDaemonWithConfig(config, internal.NewRunMode(internal.WithSimulation(true)))
	go first.Start()
	select {
	case <-first.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not become ready")
	}
	defer first.Stop()

	busy := *config
	busy.API.Listen = first.APIAddr()
	second := bridge.NewDaemonWithConfig(&busy, internal.NewRunMode(internal.WithSimulation(true)))

	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "control API")
	assert.False(t, second.IsRunning())
}
