package bridge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"rokubridge/internal/device"
	"rokubridge/internal/ecp"
	"rokubridge/internal/logger"
)

// addressPattern is the only accepted form for configured addresses
var addressPattern = regexp.MustCompile(`^http://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d+$`)

// ValidAddress reports whether a configured address is usable
func ValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

type source int

const (
	sourceConfig source = iota
	sourceDiscovery
)

func (s source) String() string {
	if s == sourceDiscovery {
		return "discovery"
	}
	return "config"
}

// constructResult is the outcome of one info-construct-seed sequence
type constructResult struct {
	address string
	source  source
	entity  *Entity
	stage   string
	err     error
}

// Manager owns the known-address set, the pairing state and every
// registered device
type Manager struct {
	host         device.Host
	connector    Connector
	clock        Clock
	pollInterval time.Duration
	catalog      []string
	nonceCache   *NonceCache
	logger       zerolog.Logger

	// lifetime of pollers
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	known   map[string]struct{}
	devices map[string]*Entity
	pairing bool
	sweep   uint64
	closed  bool

	tasks sync.WaitGroup

	flightMu sync.Mutex
	flights  map[string]*flight
}

// flight is an action running for one (device, nonce) pair. Requests that
// repeat the nonce while it runs wait for its result.
type flight struct {
	done   chan struct{}
	action *device.Action
	err    error
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithClock replaces the clock driving device pollers
func WithClock(clock Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithPollInterval sets the active-app refresh cadence
func WithPollInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

// WithCatalog replaces the remote-key catalog
func WithCatalog(catalog []string) ManagerOption {
	return func(m *Manager) {
		m.catalog = catalog
	}
}

// WithNonceCache replaces the nonce cache
func WithNonceCache(cache *NonceCache) ManagerOption {
	return func(m *Manager) {
		m.nonceCache = cache
	}
}

// NewManager creates a manager that registers devices with host
func NewManager(host device.Host, connector Connector, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		host:         host,
		connector:    connector,
		clock:        realClock{},
		pollInterval: DefaultPollInterval,
		catalog:      ecp.Commands(),
		logger:       logger.GetLogger("manager"),
		ctx:          ctx,
		cancel:       cancel,
		known:        make(map[string]struct{}),
		devices:      make(map[string]*Entity),
		flights:      make(map[string]*flight),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.nonceCache == nil {
		m.nonceCache = NewNonceCache(50, time.Hour)
	}

	return m
}

// AddKnownDevices constructs a device for every well-formed address that is
// not already known. Malformed addresses are ignored. Construction runs in
// the background; failures leave the address known.
func (m *Manager) AddKnownDevices(ctx context.Context, addresses []string) {
	for _, address := range addresses {
		if !ValidAddress(address) {
			m.logger.Debug().
				Str("address", address).
				Msg("Ignoring malformed device address")
			continue
		}

		if !m.claimTask(address) {
			continue
		}

		go func(address string) {
			defer m.tasks.Done()
			taskCtx, cancel := m.taskContext(ctx)
			defer cancel()
			m.handleResult(m.construct(taskCtx, address, sourceConfig))
		}(address)
	}
}

// StartDiscovery begins a discovery sweep unless one is active. It returns
// false when a sweep was already running.
func (m *Manager) StartDiscovery(ctx context.Context) bool {
	m.mu.Lock()
	if m.pairing || m.closed {
		m.mu.Unlock()
		return false
	}
	m.pairing = true
	m.sweep++
	sweep := m.sweep
	m.tasks.Add(1)
	m.mu.Unlock()

	m.logger.Info().
		Uint64("sweep", sweep).
		Msg("Starting device discovery")

	go func() {
		defer m.tasks.Done()
		taskCtx, cancel := m.taskContext(ctx)
		defer cancel()
		m.runSweep(taskCtx, sweep)
	}()

	return true
}

func (m *Manager) runSweep(ctx context.Context, sweep uint64) {
	defer m.finishSweep(sweep)

	addresses, err := m.connector.Discover(ctx)
	if err != nil {
		m.logger.Error().
			Uint64("sweep", sweep).
			Err(err).
			Msg("Discovery broadcast failed")
		return
	}

	m.logger.Info().
		Uint64("sweep", sweep).
		Int("responses", len(addresses)).
		Msg("Discovery responses received")

	var g errgroup.Group
	for _, raw := range addresses {
		address, err := ecp.NormalizeAddress(raw)
		if err != nil {
			m.logger.Debug().
				Str("address", raw).
				Err(err).
				Msg("Ignoring discovery response")
			continue
		}

		// responses of a cancelled sweep do not start new info queries
		if !m.sweepActive(sweep) {
			m.logger.Debug().
				Str("address", address).
				Msg("Skipping response of cancelled discovery")
			continue
		}

		if !m.claim(address) {
			continue
		}

		g.Go(func() error {
			m.handleResult(m.construct(ctx, address, sourceDiscovery))
			return nil
		})
	}

	g.Wait()
}

func (m *Manager) sweepActive(sweep uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairing && m.sweep == sweep
}

func (m *Manager) finishSweep(sweep uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweep == sweep && m.pairing {
		m.pairing = false
		m.logger.Info().
			Uint64("sweep", sweep).
			Msg("Device discovery finished")
	}
}

// CancelPairing clears the pairing state. Info queries already issued keep
// running and still register their devices.
func (m *Manager) CancelPairing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pairing {
		m.pairing = false
		m.logger.Info().
			Uint64("sweep", m.sweep).
			Msg("Device discovery cancelled")
	}
}

// Pairing reports whether a discovery sweep is active
func (m *Manager) Pairing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairing
}

// taskContext is ctx, also cancelled when the manager shuts down
func (m *Manager) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// claim marks address known, returning false if it already was
func (m *Manager) claim(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimLocked(address)
}

// claimTask claims address and counts a construction task in the same
// critical section, so Shutdown never misses a task it has to wait for
func (m *Manager) claimTask(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.claimLocked(address) {
		return false
	}
	m.tasks.Add(1)
	return true
}

func (m *Manager) claimLocked(address string) bool {
	if m.closed {
		return false
	}
	if _, ok := m.known[address]; ok {
		return false
	}
	m.known[address] = struct{}{}
	return true
}

func (m *Manager) release(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.known, address)
}

// construct queries info, builds the entity and seeds it
func (m *Manager) construct(ctx context.Context, address string, src source) constructResult {
	result := constructResult{address: address, source: src}

	remote := m.connector.Connect(address)

	info, err := remote.Info(ctx)
	if err != nil {
		result.stage, result.err = "info", err
		return result
	}
	if info.DeviceID == "" {
		result.stage, result.err = "info", errors.New("device reported no device id")
		return result
	}

	entity := newEntity(remote, info, m.catalog, m.host, m.logger)
	if err := entity.seed(ctx); err != nil {
		result.stage, result.err = "seed", err
		return result
	}

	result.entity = entity
	return result
}

// handleResult is the single place construction outcomes turn into log
// lines or registrations
func (m *Manager) handleResult(result constructResult) {
	if result.err != nil {
		m.logger.Error().
			Str("address", result.address).
			Str("source", result.source.String()).
			Str("stage", result.stage).
			Err(result.err).
			Msg("Failed to add device")

		if result.source == sourceDiscovery {
			m.release(result.address)
		}
		return
	}

	if err := m.register(result.entity); err != nil {
		m.logger.Warn().
			Str("address", result.address).
			Str("device_id", result.entity.ID()).
			Err(err).
			Msg("Device not registered")
		return
	}

	m.logger.Info().
		Str("address", result.address).
		Str("device_id", result.entity.ID()).
		Str("source", result.source.String()).
		Msg("Device added")
}

func (m *Manager) register(e *Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("manager is shut down")
	}
	if _, exists := m.devices[e.ID()]; exists {
		return fmt.Errorf("device %s already registered", e.ID())
	}
	if _, known := m.known[e.Address()]; !known {
		return fmt.Errorf("address %s was removed", e.Address())
	}

	if err := m.host.RegisterDevice(e.Description()); err != nil {
		return fmt.Errorf("host rejected device: %w", err)
	}

	m.devices[e.ID()] = e
	e.startPolling(m.ctx, m.clock, m.pollInterval)

	return nil
}

// RemoveDevice forgets a device and its address and unregisters it from the
// host. Removing an unknown id is a no-op that returns false.
func (m *Manager) RemoveDevice(id string) bool {
	m.mu.Lock()
	e, ok := m.devices[id]
	if ok {
		delete(m.devices, id)
		delete(m.known, e.Address())
		m.host.UnregisterDevice(id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	e.stopPolling()
	m.nonceCache.ClearDevice(id)

	m.logger.Info().
		Str("device_id", id).
		Str("address", e.Address()).
		Msg("Device removed")

	return true
}

// Devices describes every registered device, ordered by id
func (m *Manager) Devices() []device.Description {
	m.mu.Lock()
	entities := make([]*Entity, 0, len(m.devices))
	for _, e := range m.devices {
		entities = append(entities, e)
	}
	m.mu.Unlock()

	descriptions := make([]device.Description, 0, len(entities))
	for _, e := range entities {
		descriptions = append(descriptions, e.Description())
	}
	sort.Slice(descriptions, func(i, j int) bool {
		return descriptions[i].ID < descriptions[j].ID
	})

	return descriptions
}

// Device describes one registered device
func (m *Manager) Device(id string) (device.Description, error) {
	e, err := m.entity(id)
	if err != nil {
		return device.Description{}, err
	}
	return e.Description(), nil
}

// DeviceCount returns the number of registered devices
func (m *Manager) DeviceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.devices)
}

func (m *Manager) entity(id string) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	return e, nil
}

// PerformAction runs a named action on a device. Action failures are
// reported through the returned action's status; the error is only set when
// the device is unknown.
func (m *Manager) PerformAction(ctx context.Context, id, name, input string) (*device.Action, error) {
	e, err := m.entity(id)
	if err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("device_id", id).
		Str("action", name).
		Msg("Performing action")

	return e.Perform(ctx, name, input), nil
}

// PerformActionWithNonce is PerformAction with nonce-based deduplication: a
// repeated nonce returns the cached result without touching the device, and
// a repeat that arrives while the first request runs waits for its result
func (m *Manager) PerformActionWithNonce(ctx context.Context, id, nonce, name, input string) (*device.Action, error) {
	if nonce == "" {
		return m.PerformAction(ctx, id, name, input)
	}
	if !ValidateNonce(nonce) {
		return nil, fmt.Errorf("%w: %q", device.ErrInvalidNonce, nonce)
	}

	key := id + "/" + nonce

	m.flightMu.Lock()
	if cached, found := m.nonceCache.CheckNonce(id, nonce); found {
		m.flightMu.Unlock()
		m.logger.Info().
			Str("device_id", id).
			Str("nonce", nonce).
			Msg("Returning cached result for duplicate nonce")
		return cached, nil
	}
	if running, ok := m.flights[key]; ok {
		m.flightMu.Unlock()
		m.logger.Info().
			Str("device_id", id).
			Str("nonce", nonce).
			Msg("Waiting for in-flight request with the same nonce")
		select {
		case <-running.done:
			return running.action, running.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	m.flights[key] = f
	m.flightMu.Unlock()

	f.action, f.err = m.PerformAction(ctx, id, name, input)
	if f.err == nil {
		m.nonceCache.Store(id, nonce, f.action)
	}

	m.flightMu.Lock()
	delete(m.flights, key)
	m.flightMu.Unlock()
	close(f.done)

	return f.action, f.err
}

// NonceStats returns nonce cache statistics
func (m *Manager) NonceStats() map[string]interface{} {
	return m.nonceCache.Stats()
}

// WaitIdle blocks until every construction task and sweep has finished
func (m *Manager) WaitIdle() {
	m.tasks.Wait()
}

// Shutdown stops all pollers and unregisters every device
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.pairing = false

	entities := make([]*Entity, 0, len(m.devices))
	for id, e := range m.devices {
		entities = append(entities, e)
		m.host.UnregisterDevice(id)
	}
	m.devices = make(map[string]*Entity)
	m.known = make(map[string]struct{})
	m.mu.Unlock()

	m.logger.Info().
		Int("device_count", len(entities)).
		Msg("Shutting down device manager")

	m.cancel()
	for _, e := range entities {
		e.stopPolling()
	}

	// in-flight construction ends before the host is torn down
	m.tasks.Wait()

	m.nonceCache.Shutdown()
}
