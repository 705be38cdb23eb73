package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rokubridge/internal/device"
	"rokubridge/internal/ecp"
)

var errUnreachable = errors.New("device unreachable")

// fakeRemote is an in-memory Roku that records every call it receives
type fakeRemote struct {
	address string

	mu          sync.Mutex
	info        *ecp.DeviceInfo
	infoErr     error
	infoGate    chan struct{}
	holdInfo    bool
	active      *ecp.App
	activeErr   error
	apps        []ecp.App
	appsErr     error
	commandErr  error
	commandGate chan struct{}
	calls       []string
}

func newFakeRemote(address, deviceID string, tv bool) *fakeRemote {
	isTV := "false"
	if tv {
		isTV = "true"
	}
	return &fakeRemote{
		address: address,
		info: &ecp.DeviceInfo{
			DeviceID:           deviceID,
			FriendlyDeviceName: "Roku " + deviceID,
			FriendlyModelName:  "Roku Ultra",
			IsTV:               isTV,
			SupportsFindRemote: "true",
		},
		active: &ecp.App{ID: "12", Name: "Netflix"},
		apps: []ecp.App{
			{ID: "837", Name: "YouTube"},
			{ID: "12", Name: "Netflix"},
			{ID: "2285", Name: "Hulu"},
		},
	}
}

func (r *fakeRemote) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeRemote) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRemote) count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (r *fakeRemote) setActive(app *ecp.App, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active, r.activeErr = app, err
}

func (r *fakeRemote) Address() string {
	return r.address
}

func (r *fakeRemote) Info(ctx context.Context) (*ecp.DeviceInfo, error) {
	r.record("info")

	r.mu.Lock()
	gate, hold := r.infoGate, r.holdInfo
	r.mu.Unlock()
	switch {
	case gate != nil && hold:
		// a query that does not honour cancellation
		<-gate
	case gate != nil:
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.infoErr != nil {
		return nil, r.infoErr
	}
	info := *r.info
	return &info, nil
}

func (r *fakeRemote) ActiveApp(ctx context.Context) (*ecp.App, error) {
	r.record("active-app")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeErr != nil {
		return nil, r.activeErr
	}
	if r.active == nil {
		return nil, nil
	}
	app := *r.active
	return &app, nil
}

func (r *fakeRemote) Apps(ctx context.Context) ([]ecp.App, error) {
	r.record("apps")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appsErr != nil {
		return nil, r.appsErr
	}
	return append([]ecp.App(nil), r.apps...), nil
}

func (r *fakeRemote) command(call string) error {
	r.record(call)

	r.mu.Lock()
	gate := r.commandGate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commandErr
}

func (r *fakeRemote) Keypress(ctx context.Context, key ecp.Key) error {
	return r.command("keypress " + string(key))
}

func (r *fakeRemote) Text(ctx context.Context, text string) error {
	return r.command("text " + text)
}

func (r *fakeRemote) Launch(ctx context.Context, appID string) error {
	return r.command("launch " + appID)
}

func (r *fakeRemote) TuneChannel(ctx context.Context, channel string) error {
	return r.command("tune " + channel)
}

// fakeConnector hands out fake remotes by address
type fakeConnector struct {
	mu           sync.Mutex
	remotes      map[string]*fakeRemote
	connects     map[string]int
	discovered   []string
	discoverErr  error
	discoverHit  chan struct{}
	discoverGate chan struct{}
}

func newFakeConnector(remotes ...*fakeRemote) *fakeConnector {
	c := &fakeConnector{
		remotes:  make(map[string]*fakeRemote),
		connects: make(map[string]int),
	}
	for _, r := range remotes {
		c.remotes[r.address] = r
	}
	return c
}

func (c *fakeConnector) Connect(address string) Remote {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connects[address]++
	if r, ok := c.remotes[address]; ok {
		return r
	}
	return &fakeRemote{address: address, infoErr: errUnreachable}
}

func (c *fakeConnector) Discover(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	hit, gate := c.discoverHit, c.discoverGate
	c.discoverHit = nil
	c.mu.Unlock()

	if hit != nil {
		close(hit)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.discovered...), c.discoverErr
}

func (c *fakeConnector) connectCount(address string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects[address]
}

// recordingHost captures every notification the bridge sends
type recordingHost struct {
	mu           sync.Mutex
	registerErr  error
	registered   []device.Description
	unregistered []string
	properties   []device.Property
	actions      []device.Action
}

func (h *recordingHost) RegisterDevice(desc device.Description) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registerErr != nil {
		return h.registerErr
	}
	h.registered = append(h.registered, desc)
	return nil
}

func (h *recordingHost) UnregisterDevice(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregistered = append(h.unregistered, id)
}

func (h *recordingHost) NotifyPropertyChanged(id string, property device.Property) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.properties = append(h.properties, property)
}

func (h *recordingHost) NotifyActionStatus(id string, action device.Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, action)
}

func (h *recordingHost) Registered() []device.Description {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]device.Description(nil), h.registered...)
}

func (h *recordingHost) Unregistered() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.unregistered...)
}

func (h *recordingHost) Properties() []device.Property {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]device.Property(nil), h.properties...)
}

func (h *recordingHost) Actions() []device.Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]device.Action(nil), h.actions...)
}

func addressOf(n int) string {
	return fmt.Sprintf("http://192.168.1.%d:8060", n)
}
