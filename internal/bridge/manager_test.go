package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rokubridge/internal/device"
)

func newTestManager(t *testing.T, host device.Host, connector Connector) *Manager {
	t.Helper()
	m := NewManager(host, connector, WithPollInterval(time.Hour))
	t.Cleanup(m.Shutdown)
	return m
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel")
	}
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		address string
		valid   bool
	}{
		{"http://192.168.1.5:8060", true},
		{"http://10.0.0.1:1", true},
		{"http://192.168.1.5", false},
		{"https://192.168.1.5:8060", false},
		{"192.168.1.5:8060", false},
		{"http://roku.local:8060", false},
		{"http://192.168.1.5:8060/", false},
		{"http://1921.168.1.5:8060", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidAddress(tt.address))
		})
	}
}

func TestManager_AddKnownDevices(t *testing.T) {
	t.Run("registers a configured device", func(t *testing.T) {
		host := &recordingHost{}
		connector := newFakeConnector(newFakeRemote(addressOf(5), "X1", true))
		m := newTestManager(t, host, connector)

		m.AddKnownDevices(context.Background(), []string{addressOf(5)})
		m.WaitIdle()

		require.Len(t, host.Registered(), 1)
		desc := host.Registered()[0]
		assert.Equal(t, "roku-X1", desc.ID)
		assert.Equal(t, device.Context, desc.Context)
		assert.Equal(t, "Roku X1", desc.Name)
		assert.Equal(t, addressOf(5), desc.Address)
		assert.Contains(t, desc.Actions, ActionSendText)
		assert.Contains(t, desc.Actions, ActionSendKeypress)
		assert.Contains(t, desc.Actions, ActionLaunchApp)
		assert.Contains(t, desc.Actions, ActionTuneToChannel)

		require.NotNil(t, desc.Properties[PropertyActiveApp].Value)
		assert.Equal(t, "Netflix", *desc.Properties[PropertyActiveApp].Value)

		assert.Equal(t, 1, m.DeviceCount())
		got, err := m.Device("roku-X1")
		require.NoError(t, err)
		assert.Equal(t, desc.ID, got.ID)
	})

	t.Run("tv without find remote", func(t *testing.T) {
		host := &recordingHost{}
		remote := newFakeRemote("http://192.168.1.5:8060", "X1", true)
		remote.info.SupportsFindRemote = "false"
		m := newTestManager(t, host, newFakeConnector(remote))

		m.AddKnownDevices(context.Background(), []string{"http://192.168.1.5:8060"})
		m.WaitIdle()

		require.Len(t, host.Registered(), 1)
		desc := host.Registered()[0]
		assert.Contains(t, desc.Actions, ActionTuneToChannel)
		assert.NotContains(t, desc.Actions[ActionSendKeypress].Input.Enum, "FindRemote")
		assert.Contains(t, desc.Actions[ActionSendKeypress].Input.Enum, "VolumeUp")
	})

	t.Run("ignores malformed addresses", func(t *testing.T) {
		host := &recordingHost{}
		connector := newFakeConnector()
		m := newTestManager(t, host, connector)

		bad := []string{"192.168.1.5:8060", "https://192.168.1.5:8060", "http://roku.local:8060", ""}
		m.AddKnownDevices(context.Background(), bad)
		m.WaitIdle()

		for _, address := range bad {
			assert.Zero(t, connector.connectCount(address), address)
		}
		assert.Empty(t, host.Registered())
	})

	t.Run("queries each address once", func(t *testing.T) {
		host := &recordingHost{}
		remote := newFakeRemote(addressOf(5), "X1", false)
		connector := newFakeConnector(remote)
		m := newTestManager(t, host, connector)

		m.AddKnownDevices(context.Background(), []string{addressOf(5), addressOf(5)})
		m.AddKnownDevices(context.Background(), []string{addressOf(5)})
		m.WaitIdle()

		assert.Equal(t, 1, connector.connectCount(addressOf(5)))
		assert.Equal(t, 1, remote.count("info"))
		assert.Len(t, host.Registered(), 1)
	})

	t.Run("failed configured address stays known", func(t *testing.T) {
		host := &recordingHost{}
		connector := newFakeConnector()
		m := newTestManager(t, host, connector)

		m.AddKnownDevices(context.Background(), []string{addressOf(9)})
		m.WaitIdle()
		m.AddKnownDevices(context.Background(), []string{addressOf(9)})
		m.WaitIdle()

		assert.Equal(t, 1, connector.connectCount(addressOf(9)))
		assert.Empty(t, host.Registered())
	})

	t.Run("seed failure prevents registration", func(t *testing.T) {
		host := &recordingHost{}
		remote := newFakeRemote(addressOf(5), "X1", true)
		remote.appsErr = errUnreachable
		m := newTestManager(t, host, newFakeConnector(remote))

		m.AddKnownDevices(context.Background(), []string{addressOf(5)})
		m.WaitIdle()

		assert.Empty(t, host.Registered())
		assert.Zero(t, m.DeviceCount())
	})

	t.Run("missing device id prevents registration", func(t *testing.T) {
		host := &recordingHost{}
		remote := newFakeRemote(addressOf(5), "", true)
		m := newTestManager(t, host, newFakeConnector(remote))

		m.AddKnownDevices(context.Background(), []string{addressOf(5)})
		m.WaitIdle()

		assert.Empty(t, host.Registered())
		assert.Zero(t, remote.count("apps"))
	})

	t.Run("same device id at two addresses registers once", func(t *testing.T) {
		host := &recordingHost{}
		connector := newFakeConnector(
			newFakeRemote(addressOf(5), "X1", true),
			newFakeRemote(addressOf(6), "X1", true),
		)
		m := newTestManager(t, host, connector)

		m.AddKnownDevices(context.Background(), []string{addressOf(5), addressOf(6)})
		m.WaitIdle()

		assert.Len(t, host.Registered(), 1)
		assert.Equal(t, 1, m.DeviceCount())
	})

	t.Run("host rejection leaves device unregistered", func(t *testing.T) {
		host := &recordingHost{registerErr: errors.New("rejected")}
		m := newTestManager(t, host, newFakeConnector(newFakeRemote(addressOf(5), "X1", true)))

		m.AddKnownDevices(context.Background(), []string{addressOf(5)})
		m.WaitIdle()

		assert.Zero(t, m.DeviceCount())
	})
}

func TestManager_StartDiscovery(t *testing.T) {
	t.Run("registers discovered devices once", func(t *testing.T) {
		host := &recordingHost{}
		connector := newFakeConnector(
			newFakeRemote(addressOf(5), "X1", true),
			newFakeRemote(addressOf(6), "X2", false),
		)
		connector.discovered = []string{
			addressOf(5) + "/",
			addressOf(5),
			addressOf(6) + "/",
		}
		m := newTestManager(t, host, connector)

		assert.True(t, m.StartDiscovery(context.Background()))
		m.WaitIdle()

		assert.False(t, m.Pairing())
		assert.Equal(t, 1, connector.connectCount(addressOf(5)))
		assert.Equal(t, 1, connector.connectCount(addressOf(6)))

		devices := m.Devices()
		require.Len(t, devices, 2)
		assert.Equal(t, "roku-X1", devices[0].ID)
		assert.Equal(t, "roku-X2", devices[1].ID)
		assert.NotContains(t, devices[1].Actions, ActionTuneToChannel)
	})

	t.Run("skips addresses already configured", func(t *testing.T) {
		host := &recordingHost{}
		connector := newFakeConnector(newFakeRemote(addressOf(5), "X1", true))
		connector.discovered = []string{addressOf(5) + "/"}
		m := newTestManager(t, host, connector)

		m.AddKnownDevices(context.Background(), []string{addressOf(5)})
		m.WaitIdle()
		m.StartDiscovery(context.Background())
		m.WaitIdle()

		assert.Equal(t, 1, connector.connectCount(addressOf(5)))
		assert.Len(t, host.Registered(), 1)
	})

	t.Run("failed discovered address is retried by the next sweep", func(t *testing.T) {
		host := &recordingHost{}
		remote := newFakeRemote(addressOf(5), "X1", true)
		remote.infoErr = errUnreachable
		connector := newFakeConnector(remote)
		connector.discovered = []string{addressOf(5)}
		m := newTestManager(t, host, connector)

		m.StartDiscovery(context.Background())
		m.WaitIdle()
		assert.Empty(t, host.Registered())

		remote.mu.Lock()
		remote.infoErr = nil
		remote.mu.Unlock()

		m.StartDiscovery(context.Background())
		m.WaitIdle()

		assert.Equal(t, 2, connector.connectCount(addressOf(5)))
		assert.Len(t, host.Registered(), 1)
	})

	t.Run("only one sweep at a time", func(t *testing.T) {
		connector := newFakeConnector()
		connector.discoverHit = make(chan struct{})
		connector.discoverGate = make(chan struct{})
		m := newTestManager(t, &recordingHost{}, connector)

		hit := connector.discoverHit
		assert.True(t, m.StartDiscovery(context.Background()))
		waitClosed(t, hit)

		assert.True(t, m.Pairing())
		assert.False(t, m.StartDiscovery(context.Background()))

		close(connector.discoverGate)
		m.WaitIdle()
		assert.False(t, m.Pairing())
	})

	t.Run("cancel stops new info queries", func(t *testing.T) {
		host := &recordingHost{}
		connector := newFakeConnector(newFakeRemote(addressOf(5), "X1", true))
		connector.discovered = []string{addressOf(5)}
		connector.discoverHit = make(chan struct{})
		connector.discoverGate = make(chan struct{})
		m := newTestManager(t, host, connector)

		hit := connector.discoverHit
		m.StartDiscovery(context.Background())
		waitClosed(t, hit)

		m.CancelPairing()
		assert.False(t, m.Pairing())

		close(connector.discoverGate)
		m.WaitIdle()

		assert.Zero(t, connector.connectCount(addressOf(5)))
		assert.Empty(t, host.Registered())

		// the address was never claimed, so a later sweep still finds it
		m.StartDiscovery(context.Background())
		m.WaitIdle()
		assert.Len(t, host.Registered(), 1)
	})

	t.Run("info query in flight at cancel still registers", func(t *testing.T) {
		host := &recordingHost{}
		remote := newFakeRemote(addressOf(5), "X1", true)
		remote.infoGate = make(chan struct{})
		connector := newFakeConnector(remote)
		connector.discovered = []string{addressOf(5)}
		m := newTestManager(t, host, connector)

		require.True(t, m.StartDiscovery(context.Background()))
		require.Eventually(t, func() bool {
			return remote.count("info") == 1
		}, 2*time.Second, 5*time.Millisecond)

		m.CancelPairing()
		assert.False(t, m.Pairing())

		close(remote.infoGate)
		m.WaitIdle()

		require.Len(t, host.Registered(), 1)
		assert.Equal(t, "roku-X1", host.Registered()[0].ID)
		assert.False(t, m.Pairing())
	})

	t.Run("broadcast failure ends pairing", func(t *testing.T) {
		connector := newFakeConnector()
		connector.discoverErr = errors.New("no route to host")
		m := newTestManager(t, &recordingHost{}, connector)

		assert.True(t, m.StartDiscovery(context.Background()))
		m.WaitIdle()
		assert.False(t, m.Pairing())
	})
}

func TestManager_RemoveDevice(t *testing.T) {
	host := &recordingHost{}
	connector := newFakeConnector(newFakeRemote(addressOf(5), "X1", true))
	m := newTestManager(t, host, connector)

	m.AddKnownDevices(context.Background(), []string{addressOf(5)})
	m.WaitIdle()
	require.Equal(t, 1, m.DeviceCount())

	assert.True(t, m.RemoveDevice("roku-X1"))
	assert.False(t, m.RemoveDevice("roku-X1"))
	assert.False(t, m.RemoveDevice("roku-missing"))

	assert.Equal(t, []string{"roku-X1"}, host.Unregistered())
	assert.Zero(t, m.DeviceCount())

	_, err := m.Device("roku-X1")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)

	// the address is forgotten, so it can be added again
	m.AddKnownDevices(context.Background(), []string{addressOf(5)})
	m.WaitIdle()
	assert.Equal(t, 2, connector.connectCount(addressOf(5)))
	assert.Equal(t, 1, m.DeviceCount())
}

func TestManager_PerformAction(t *testing.T) {
	setup := func(t *testing.T) (*Manager, *fakeRemote, *recordingHost) {
		host := &recordingHost{}
		remote := newFakeRemote(addressOf(5), "X1", true)
		m := newTestManager(t, host, newFakeConnector(remote))
		m.AddKnownDevices(context.Background(), []string{addressOf(5)})
		m.WaitIdle()
		require.Equal(t, 1, m.DeviceCount())
		return m, remote, host
	}

	t.Run("unknown device", func(t *testing.T) {
		m, _, host := setup(t)

		action, err := m.PerformAction(context.Background(), "roku-missing", ActionSendKeypress, "Home")
		assert.ErrorIs(t, err, device.ErrDeviceNotFound)
		assert.Nil(t, action)
		assert.Empty(t, host.Actions())
	})

	t.Run("runs the action", func(t *testing.T) {
		m, remote, _ := setup(t)

		action, err := m.PerformAction(context.Background(), "roku-X1", ActionSendKeypress, "Home")
		require.NoError(t, err)
		assert.Equal(t, device.ActionSucceeded, action.Status)
		assert.Equal(t, 1, remote.count("keypress Home"))
	})

	t.Run("repeated nonce returns cached result", func(t *testing.T) {
		m, remote, _ := setup(t)
		nonce := GenerateNonce()

		first, err := m.PerformActionWithNonce(context.Background(), "roku-X1", nonce, ActionSendKeypress, "Home")
		require.NoError(t, err)
		second, err := m.PerformActionWithNonce(context.Background(), "roku-X1", nonce, ActionSendKeypress, "Home")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, remote.count("keypress Home"))
	})

	t.Run("empty nonce is never cached", func(t *testing.T) {
		m, remote, _ := setup(t)

		_, err := m.PerformActionWithNonce(context.Background(), "roku-X1", "", ActionSendKeypress, "Home")
		require.NoError(t, err)
		_, err = m.PerformActionWithNonce(context.Background(), "roku-X1", "", ActionSendKeypress, "Home")
		require.NoError(t, err)

		assert.Equal(t, 2, remote.count("keypress Home"))
	})

	t.Run("concurrent repeat waits for the running request", func(t *testing.T) {
		m, remote, _ := setup(t)
		gate := make(chan struct{})
		remote.mu.Lock()
		remote.commandGate = gate
		remote.mu.Unlock()
		nonce := GenerateNonce()

		type outcome struct {
			action *device.Action
			err    error
		}
		results := make(chan outcome, 2)
		run := func() {
			action, err := m.PerformActionWithNonce(context.Background(), "roku-X1", nonce, ActionSendKeypress, "Home")
			results <- outcome{action, err}
		}

		go run()
		require.Eventually(t, func() bool {
			return remote.count("keypress Home") == 1
		}, 2*time.Second, 5*time.Millisecond)

		go run()
		assert.Never(t, func() bool {
			return remote.count("keypress Home") > 1
		}, 50*time.Millisecond, 5*time.Millisecond)

		close(gate)
		first, second := <-results, <-results
		require.NoError(t, first.err)
		require.NoError(t, second.err)
		assert.Equal(t, first.action.ID, second.action.ID)
		assert.Equal(t, 1, remote.count("keypress Home"))
	})

	t.Run("repeat gives up with its context", func(t *testing.T) {
		m, remote, _ := setup(t)
		gate := make(chan struct{})
		remote.mu.Lock()
		remote.commandGate = gate
		remote.mu.Unlock()
		defer close(gate)
		nonce := GenerateNonce()

		go m.PerformActionWithNonce(context.Background(), "roku-X1", nonce, ActionSendKeypress, "Home")
		require.Eventually(t, func() bool {
			return remote.count("keypress Home") == 1
		}, 2*time.Second, 5*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := m.PerformActionWithNonce(ctx, "roku-X1", nonce, ActionSendKeypress, "Home")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("malformed nonce is rejected", func(t *testing.T) {
		m, remote, _ := setup(t)

		_, err := m.PerformActionWithNonce(context.Background(), "roku-X1", "not-a-nonce", ActionSendKeypress, "Home")
		assert.ErrorIs(t, err, device.ErrInvalidNonce)
		assert.Zero(t, remote.count("keypress Home"))
	})
}

func TestManager_Shutdown(t *testing.T) {
	host := &recordingHost{}
	connector := newFakeConnector(
		newFakeRemote(addressOf(5), "X1", true),
		newFakeRemote(addressOf(6), "X2", true),
	)
	m := NewManager(host, connector, WithPollInterval(time.Hour))

	m.AddKnownDevices(context.Background(), []string{addressOf(5), addressOf(6)})
	m.WaitIdle()
	require.Equal(t, 2, m.DeviceCount())

	m.Shutdown()
	m.Shutdown()

	assert.ElementsMatch(t, []string{"roku-X1", "roku-X2"}, host.Unregistered())
	assert.Zero(t, m.DeviceCount())
	assert.False(t, m.StartDiscovery(context.Background()))

	m.AddKnownDevices(context.Background(), []string{addressOf(7)})
	m.WaitIdle()
	assert.Zero(t, connector.connectCount(addressOf(7)))
}

func TestManager_ShutdownWaitsForConstruction(t *testing.T) {
	t.Run("cancels queries in flight", func(t *testing.T) {
		host := &recordingHost{}
		remote := newFakeRemote(addressOf(5), "X1", true)
		remote.infoGate = make(chan struct{})
		defer close(remote.infoGate)
		m := NewManager(host, newFakeConnector(remote), WithPollInterval(time.Hour))

		m.AddKnownDevices(context.Background(), []string{addressOf(5)})
		require.Eventually(t, func() bool {
			return remote.count("info") == 1
		}, 2*time.Second, 5*time.Millisecond)

		done := make(chan struct{})
		go func() {
			m.Shutdown()
			close(done)
		}()
		waitClosed(t, done)
		assert.Empty(t, host.Registered())
	})

	t.Run("waits for queries that ignore cancellation", func(t *testing.T) {
		host := &recordingHost{}
		remote := newFakeRemote(addressOf(5), "X1", true)
		remote.infoGate = make(chan struct{})
		remote.holdInfo = true
		m := NewManager(host, newFakeConnector(remote), WithPollInterval(time.Hour))

		m.AddKnownDevices(context.Background(), []string{addressOf(5)})
		require.Eventually(t, func() bool {
			return remote.count("info") == 1
		}, 2*time.Second, 5*time.Millisecond)

		done := make(chan struct{})
		go func() {
			m.Shutdown()
			close(done)
		}()

		select {
		case <-done:
			t.Fatal("Shutdown returned while construction was running")
		case <-time.After(50 * time.Millisecond):
		}

		close(remote.infoGate)
		waitClosed(t, done)

		// the late result is refused, not registered after shutdown
		assert.Empty(t, host.Registered())
		assert.Zero(t, m.DeviceCount())
	})
}
