// Package host is the in-process device-management host the bridge
// registers Roku devices with, plus the surfaces that expose it: the HTTP
// control API, the MQTT mirror and the action journal.
package host

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"rokubridge/internal/device"
	"rokubridge/internal/logger"
)

// Event types
const (
	EventDeviceAdded     = "device_added"
	EventDeviceRemoved   = "device_removed"
	EventPropertyChanged = "property_changed"
	EventActionStatus    = "action_status"
)

// Event is one registry change
type Event struct {
	Type     string              `json:"type"`
	DeviceID string              `json:"device_id"`
	Time     time.Time           `json:"time"`
	Device   *device.Description `json:"device,omitempty"`
	Property *device.Property    `json:"property,omitempty"`
	Action   *device.Action      `json:"action,omitempty"`
}

// EventHandler is a callback for events. Handlers run synchronously on the
// notifying goroutine and must not call back into the bridge.
type EventHandler func(Event)

// Registry implements device.Host. It keeps the latest description of each
// registered device and fans every change out to subscribers.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*device.Description

	handlersMu sync.RWMutex
	handlers   map[uint64]EventHandler
	nextID     uint64

	logger zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[string]*device.Description),
		handlers: make(map[uint64]EventHandler),
		logger:   logger.GetLogger("registry"),
	}
}

// Subscribe registers a handler for all events and returns an unsubscribe function
func (r *Registry) Subscribe(handler EventHandler) func() {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()

	id := r.nextID
	r.nextID++
	r.handlers[id] = handler

	return func() {
		r.handlersMu.Lock()
		defer r.handlersMu.Unlock()
		delete(r.handlers, id)
	}
}

func (r *Registry) emit(event Event) {
	r.handlersMu.RLock()
	handlers := make([]EventHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	r.handlersMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error().
						Str("type", event.Type).
						Interface("panic", rec).
						Msg("Event handler panic")
				}
			}()
			h(event)
		}()
	}
}

// RegisterDevice stores a device description
func (r *Registry) RegisterDevice(desc device.Description) error {
	if desc.ID == "" {
		return fmt.Errorf("device id is required")
	}

	r.mu.Lock()
	if _, exists := r.devices[desc.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("device %s is already registered", desc.ID)
	}
	stored := cloneDescription(desc)
	r.devices[desc.ID] = &stored
	r.mu.Unlock()

	r.logger.Info().
		Str("device_id", desc.ID).
		Str("name", desc.Name).
		Msg("Device registered")

	snapshot := cloneDescription(desc)
	r.emit(Event{
		Type:     EventDeviceAdded,
		DeviceID: desc.ID,
		Time:     time.Now(),
		Device:   &snapshot,
	})

	return nil
}

// UnregisterDevice drops a device; unknown ids are ignored
func (r *Registry) UnregisterDevice(id string) {
	r.mu.Lock()
	desc, exists := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()

	if !exists {
		return
	}
	last := cloneDescription(*desc)

	r.logger.Info().
		Str("device_id", id).
		Msg("Device unregistered")

	r.emit(Event{
		Type:     EventDeviceRemoved,
		DeviceID: id,
		Time:     time.Now(),
		Device:   &last,
	})
}

// NotifyPropertyChanged records a property value
func (r *Registry) NotifyPropertyChanged(id string, property device.Property) {
	r.mu.Lock()
	desc, exists := r.devices[id]
	if exists {
		desc.Properties[property.Name] = property
	}
	r.mu.Unlock()

	if !exists {
		r.logger.Debug().
			Str("device_id", id).
			Str("property", property.Name).
			Msg("Property change for unregistered device ignored")
		return
	}

	r.emit(Event{
		Type:     EventPropertyChanged,
		DeviceID: id,
		Time:     time.Now(),
		Property: &property,
	})
}

// NotifyActionStatus publishes an action transition
func (r *Registry) NotifyActionStatus(id string, action device.Action) {
	r.emit(Event{
		Type:     EventActionStatus,
		DeviceID: id,
		Time:     time.Now(),
		Action:   &action,
	})
}

// Devices returns every registered device, ordered by id
func (r *Registry) Devices() []device.Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]device.Description, 0, len(r.devices))
	for _, desc := range r.devices {
		devices = append(devices, cloneDescription(*desc))
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})

	return devices
}

// Device returns one registered device
func (r *Registry) Device(id string) (device.Description, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.devices[id]
	if !exists {
		return device.Description{}, false
	}
	return cloneDescription(*desc), true
}

func cloneDescription(desc device.Description) device.Description {
	out := desc
	out.Type = append([]string{}, desc.Type...)

	out.Properties = make(map[string]device.Property, len(desc.Properties))
	for name, prop := range desc.Properties {
		if prop.Value != nil {
			prop.Value = device.StringValue(*prop.Value)
		}
		out.Properties[name] = prop
	}

	out.Actions = make(map[string]device.ActionSchema, len(desc.Actions))
	for name, schema := range desc.Actions {
		schema.Input.Enum = append([]string(nil), schema.Input.Enum...)
		out.Actions[name] = schema
	}

	return out
}
