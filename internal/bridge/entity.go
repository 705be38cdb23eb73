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
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"rokubridge/internal/capability"
	"rokubridge/internal/device"
	"rokubridge/internal/ecp"
)

const (
	// DeviceIDPrefix is prepended to the vendor device id
	DeviceIDPrefix = "roku-"

	// PropertyActiveApp holds the name of the foreground app, or nil
	PropertyActiveApp = "activeApp"
)

var activeAppSchema = device.PropertySchema{
	Label:    "Active App",
	Type:     "string",
	ReadOnly: true,
}

// Entity is one Roku device as exposed to the host
type Entity struct {
	id          string
	name        string
	description string
	address     string

	remote   Remote
	host     device.Host
	features capability.Features
	executor *executor
	poller   *Poller
	logger   zerolog.Logger

	// keys is fixed at construction
	keys   []string
	keySet map[string]struct{}

	mu        sync.Mutex
	apps      []ecp.App
	activeApp *string
	actions   map[string]device.ActionSchema
}

// newEntity builds identity, metadata and the actions that need no further
// device queries. The launch action is added by seed.
func newEntity(remote Remote, info *ecp.DeviceInfo, catalog []string, host device.Host, log zerolog.Logger) *Entity {
	features := capability.FeaturesFromInfo(info)
	keys := capability.KeypressCommands(features, catalog)

	keySet := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		keySet[key] = struct{}{}
	}

	id := DeviceIDPrefix + info.DeviceID

	e := &Entity{
		id:          id,
		name:        info.FriendlyDeviceName,
		description: info.FriendlyModelName,
		address:     remote.Address(),
		remote:      remote,
		host:        host,
		features:    features,
		keys:        keys,
		keySet:      keySet,
		logger: log.With().
			Str("device_id", id).
			Str("address", remote.Address()).
			Logger(),
		actions: map[string]device.ActionSchema{
			ActionSendText: {
				Label: "Send Text",
				Input: device.InputSchema{Type: "string"},
			},
			ActionSendKeypress: {
				Label: "Send Keypress",
				Input: device.InputSchema{Type: "string", Enum: keys},
			},
		},
	}

	if capability.CanTune(features) {
		e.actions[ActionTuneToChannel] = device.ActionSchema{
			Label: "Tune to Channel",
			Input: device.InputSchema{Type: "string"},
		}
	}

	e.executor = newExecutor(host, e.logger)

	return e
}

// seed fetches the active app and the app catalog in parallel. Both must
// succeed before the entity may be registered.
func (e *Entity) seed(ctx context.Context) error {
	var (
		active *ecp.App
		apps   []ecp.App
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app, err := e.remote.ActiveApp(gctx)
		if err != nil {
			return fmt.Errorf("failed to seed active app: %w", err)
		}
		active = app
		return nil
	})
	g.Go(func() error {
		list, err := e.remote.Apps(gctx)
		if err != nil {
			return fmt.Errorf("failed to seed app catalog: %w", err)
		}
		apps = list
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	sorted := capability.LaunchableApps(apps)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.activeApp = appName(active)
	e.apps = sorted
	e.actions[ActionLaunchApp] = device.ActionSchema{
		Label: "Launch App",
		Input: device.InputSchema{Type: "string", Enum: capability.AppNames(sorted)},
	}

	return nil
}

// ID returns the host-facing device id
func (e *Entity) ID() string {
	return e.id
}

// Address returns the device base URL
func (e *Entity) Address() string {
	return e.address
}

// Keys returns the resolved keypress commands
func (e *Entity) Keys() []string {
	return append([]string(nil), e.keys...)
}

// ActiveApp returns the cached foreground app name, or nil
func (e *Entity) ActiveApp() *string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeApp == nil {
		return nil
	}
	name := *e.activeApp
	return &name
}

// Description snapshots the entity for the host
func (e *Entity) Description() device.Description {
	e.mu.Lock()
	defer e.mu.Unlock()

	actions := make(map[string]device.ActionSchema, len(e.actions))
	for name, schema := range e.actions {
		actions[name] = schema
	}

	return device.Description{
		ID:          e.id,
		Context:     device.Context,
		Type:        []string{},
		Name:        e.name,
		Description: e.description,
		Address:     e.address,
		Properties: map[string]device.Property{
			PropertyActiveApp: e.activeAppPropertyLocked(),
		},
		Actions: actions,
	}
}

// Perform runs one action to completion and returns its terminal state
func (e *Entity) Perform(ctx context.Context, name, input string) *device.Action {
	return e.executor.perform(ctx, e, name, input)
}

// exposes reports whether the action is currently advertised
func (e *Entity) exposes(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.actions[name]
	return ok
}

func (e *Entity) hasKey(key string) bool {
	_, ok := e.keySet[key]
	return ok
}

// lookupApp finds the first app with the given name in sorted order
func (e *Entity) lookupApp(name string) (ecp.App, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, app := range e.apps {
		if app.Name == name {
			return app, true
		}
	}
	return ecp.App{}, false
}

// startPolling begins the periodic active-app refresh
func (e *Entity) startPolling(ctx context.Context, clock Clock, interval time.Duration) {
	e.mu.Lock()
	if e.poller == nil {
		e.poller = NewPoller(clock, interval, e.refreshActiveApp)
	}
	poller := e.poller
	e.mu.Unlock()

	poller.Start(ctx)
}

// stopPolling halts the poller; safe to call when never started
func (e *Entity) stopPolling() {
	e.mu.Lock()
	poller := e.poller
	e.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
}

// refreshActiveApp is one poll tick. Failures are swallowed.
func (e *Entity) refreshActiveApp(ctx context.Context) {
	app, err := e.remote.ActiveApp(ctx)
	if err != nil {
		e.logger.Debug().
			Err(err).
			Msg("Active app poll failed")
		return
	}

	e.setActiveApp(app)
}

// setActiveApp stores the new value and notifies the host when it changed.
// Comparison, update and notification happen under one lock.
func (e *Entity) setActiveApp(app *ecp.App) bool {
	next := appName(app)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !activeAppChanged(e.activeApp, next) {
		return false
	}

	e.activeApp = next
	e.host.NotifyPropertyChanged(e.id, e.activeAppPropertyLocked())

	e.logger.Debug().
		Interface("active_app", next).
		Msg("Active app changed")

	return true
}

func (e *Entity) activeAppPropertyLocked() device.Property {
	var value *string
	if e.activeApp != nil {
		value = device.StringValue(*e.activeApp)
	}
	return device.Property{
		Name:   PropertyActiveApp,
		Value:  value,
		Schema: activeAppSchema,
	}
}

// activeAppChanged compares by name: none vs some in either direction is a
// change, as is a different name
func activeAppChanged(prev, next *string) bool {
	switch {
	case prev == nil && next == nil:
		return false
	case prev == nil || next == nil:
		return true
	default:
		return *prev != *next
	}
}

func appName(app *ecp.App) *string {
	if app == nil {
		return nil
	}
	return device.StringValue(app.Name)
}
