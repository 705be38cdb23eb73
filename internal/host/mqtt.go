package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"rokubridge/internal/device"
	"rokubridge/internal/logger"
)

// commandTimeout bounds an action triggered over MQTT
const commandTimeout = 30 * time.Second

// MQTTConfig holds MQTT mirror configuration
type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

// Topics builds the mirror's topic names.
//
//	topics := Topics{Prefix: "rokubridge"}
//	topics.DeviceState("roku-X1") // "rokubridge/devices/roku-X1/state"
type Topics struct {
	Prefix string
}

// BridgeState carries "online" or "offline", retained
func (t Topics) BridgeState() string {
	return t.Prefix + "/bridge/state"
}

// DeviceState carries the retained device description
func (t Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/state", t.Prefix, deviceID)
}

// DeviceProperty carries the retained value of one property
func (t Topics) DeviceProperty(deviceID, property string) string {
	return fmt.Sprintf("%s/devices/%s/properties/%s", t.Prefix, deviceID, property)
}

// DeviceAction carries action status transitions
func (t Topics) DeviceAction(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/actions", t.Prefix, deviceID)
}

// DeviceCommand is where action requests for a device are accepted
func (t Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/command", t.Prefix, deviceID)
}

// CommandSubscription matches the command topic of every device
func (t Topics) CommandSubscription() string {
	return t.DeviceCommand("+")
}

// DeviceIDFromCommand extracts the device id from a command topic
func (t Topics) DeviceIDFromCommand(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/devices/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/command")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

type mqttMessage struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// publisher is the part of the paho client the mirror publishes through
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Mirror publishes registry events to MQTT and accepts action commands
type Mirror struct {
	client     pahomqtt.Client
	pub        publisher
	registry   *Registry
	controller Controller
	topics     Topics
	logger     zerolog.Logger
	unsub      func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMirror creates and connects an MQTT mirror
func NewMirror(cfg MQTTConfig, registry *Registry, controller Controller) (*Mirror, error) {
	m := newMirror(nil, registry, controller, Topics{Prefix: cfg.TopicPrefix})

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(m.topics.BridgeState(), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			m.logger.Info().Msg("MQTT connected")
			m.publish(m.topics.BridgeState(), []byte("online"), true)
			m.publishAllDevices()
			m.subscribeCommands()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			m.logger.Warn().Err(err).Msg("MQTT connection lost")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// the connect handler publishes through m, so the client is set first
	client := pahomqtt.NewClient(opts)
	m.client = client
	m.pub = client

	if err := waitConnected(client, client.Connect(), connectTimeout); err != nil {
		return nil, err
	}

	return m, nil
}

// connectTimeout bounds how long NewMirror waits for the first connection
const connectTimeout = 10 * time.Second

// waitConnected waits for the first connect attempt. On failure the client is
// disconnected so its retry loop cannot connect later behind the caller's back.
func waitConnected(client pahomqtt.Client, token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func newMirror(pub publisher, registry *Registry, controller Controller, topics Topics) *Mirror {
	ctx, cancel := context.WithCancel(context.Background())
	return &Mirror{
		pub:        pub,
		registry:   registry,
		controller: controller,
		topics:     topics,
		logger:     logger.GetLogger("mqtt"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to registry events
func (m *Mirror) Start() {
	m.unsub = m.registry.Subscribe(m.handleEvent)
	m.logger.Info().
		Str("prefix", m.topics.Prefix).
		Msg("MQTT mirror started")
}

// Stop publishes offline state, waits for running commands and disconnects
func (m *Mirror) Stop() {
	if m.unsub != nil {
		m.unsub()
	}
	m.cancel()
	m.wg.Wait()

	m.publish(m.topics.BridgeState(), []byte("offline"), true)
	if m.client != nil {
		m.client.Disconnect(1000)
	}
	m.logger.Info().Msg("MQTT mirror stopped")
}

func (m *Mirror) handleEvent(event Event) {
	for _, msg := range eventMessages(m.topics, event) {
		m.publish(msg.Topic, msg.Payload, msg.Retained)
	}
}

// eventMessages maps one registry event to the messages it publishes
func eventMessages(topics Topics, event Event) []mqttMessage {
	switch event.Type {
	case EventDeviceAdded:
		if event.Device == nil {
			return nil
		}
		msgs := []mqttMessage{{
			Topic:    topics.DeviceState(event.DeviceID),
			Payload:  mustJSON(event.Device),
			Retained: true,
		}}
		for _, name := range sortedPropertyNames(event.Device.Properties) {
			msgs = append(msgs, propertyMessage(topics, event.DeviceID, event.Device.Properties[name]))
		}
		return msgs

	case EventDeviceRemoved:
		// empty retained payloads clear the broker's copies
		msgs := []mqttMessage{clearMessage(topics.DeviceState(event.DeviceID))}
		if event.Device != nil {
			for _, name := range sortedPropertyNames(event.Device.Properties) {
				msgs = append(msgs, clearMessage(topics.DeviceProperty(event.DeviceID, name)))
			}
		}
		return msgs

	case EventPropertyChanged:
		if event.Property == nil {
			return nil
		}
		return []mqttMessage{propertyMessage(topics, event.DeviceID, *event.Property)}

	case EventActionStatus:
		if event.Action == nil {
			return nil
		}
		return []mqttMessage{{
			Topic:   topics.DeviceAction(event.DeviceID),
			Payload: mustJSON(event.Action),
		}}
	}

	return nil
}

func propertyMessage(topics Topics, deviceID string, property device.Property) mqttMessage {
	payload := []byte{}
	if property.Value != nil {
		payload = []byte(*property.Value)
	}
	return mqttMessage{
		Topic:    topics.DeviceProperty(deviceID, property.Name),
		Payload:  payload,
		Retained: true,
	}
}

func clearMessage(topic string) mqttMessage {
	return mqttMessage{Topic: topic, Payload: []byte{}, Retained: true}
}

func sortedPropertyNames(properties map[string]device.Property) []string {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Mirror) publishAllDevices() {
	for _, desc := range m.registry.Devices() {
		m.handleEvent(Event{
			Type:     EventDeviceAdded,
			DeviceID: desc.ID,
			Device:   &desc,
		})
	}
}

func (m *Mirror) subscribeCommands() {
	topic := m.topics.CommandSubscription()
	token := m.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		m.handleCommand(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			m.logger.Warn().Str("topic", topic).Msg("MQTT subscribe timeout")
		} else if err := token.Error(); err != nil {
			m.logger.Warn().Str("topic", topic).Err(err).Msg("MQTT subscribe error")
		}
	}()
}

// handleCommand parses a command and performs it in the background; the
// result arrives on the action topic through the registry
func (m *Mirror) handleCommand(topic string, payload []byte) {
	deviceID, ok := m.topics.DeviceIDFromCommand(topic)
	if !ok {
		m.logger.Warn().Str("topic", topic).Msg("Command on unexpected topic")
		return
	}

	req, err := parseCommand(payload)
	if err != nil {
		m.logger.Warn().
			Str("device_id", deviceID).
			Err(err).
			Msg("Invalid command payload")
		return
	}

	if m.ctx.Err() != nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(m.ctx, commandTimeout)
		defer cancel()

		if _, err := m.controller.PerformActionWithNonce(ctx, deviceID, req.Nonce, req.Name, req.Input); err != nil {
			m.logger.Warn().
				Str("device_id", deviceID).
				Str("action", req.Name).
				Err(err).
				Msg("MQTT command rejected")
		}
	}()
}

func parseCommand(payload []byte) (device.ActionRequest, error) {
	var req device.ActionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("invalid command JSON: %w", err)
	}
	if req.Name == "" {
		return req, fmt.Errorf("command name is required")
	}
	return req, nil
}

func (m *Mirror) publish(topic string, payload []byte, retained bool) {
	if m.pub == nil {
		return
	}
	token := m.pub.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			m.logger.Warn().Str("topic", topic).Msg("MQTT publish timeout")
		} else if err := token.Error(); err != nil {
			m.logger.Warn().Str("topic", topic).Err(err).Msg("MQTT publish error")
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// Connected reports whether the broker connection is up
func (m *Mirror) Connected() bool {
	return m.client != nil && m.client.IsConnectionOpen()
}
