package device

import (
	"errors"
	"time"
)

// Context is the schema namespace advertised with every device description
const Context = "https://iot.mozilla.org/schemas"

var (
	// ErrDeviceNotFound is returned for ids that are not registered
	ErrDeviceNotFound = errors.New("device not found")

	// ErrInvalidNonce is returned when a request nonce is malformed
	ErrInvalidNonce = errors.New("invalid nonce format")
)

// Host is the device-management framework a bridge registers devices with.
// Implementations must be safe for concurrent use.
type Host interface {
	// RegisterDevice exposes a fully characterized device
	RegisterDevice(desc Description) error

	// UnregisterDevice withdraws a device; unknown ids are ignored
	UnregisterDevice(id string)

	// NotifyPropertyChanged reports a new property value
	NotifyPropertyChanged(id string, property Property)

	// NotifyActionStatus reports a transition of an action invocation
	NotifyActionStatus(id string, action Action)
}

// Description is what the host knows about a registered device
type Description struct {
	ID          string                  `json:"id"`
	Context     string                  `json:"@context"`
	Type        []string                `json:"@type"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Address     string                  `json:"address"`
	Properties  map[string]Property     `json:"properties"`
	Actions     map[string]ActionSchema `json:"actions"`
}

// Property is a named, typed value observed on a device. A nil Value means
// the property currently has no value.
type Property struct {
	Name   string         `json:"name"`
	Value  *string        `json:"value"`
	Schema PropertySchema `json:"schema"`
}

// PropertySchema describes a property to the host
type PropertySchema struct {
	Label    string `json:"label"`
	Type     string `json:"type"`
	ReadOnly bool   `json:"readOnly"`
}

// ActionSchema describes an action a device accepts
type ActionSchema struct {
	Label string      `json:"label"`
	Input InputSchema `json:"input"`
}

// InputSchema describes the single input value of an action
type InputSchema struct {
	Type string   `json:"type"`
	Enum []string `json:"enum,omitempty"`
}

// ActionStatus is the lifecycle state of an action invocation
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
)

// Terminal reports whether no further transitions follow
func (s ActionStatus) Terminal() bool {
	return s == ActionSucceeded || s == ActionFailed
}

// Action is one invocation of a named action on a device
type Action struct {
	ID            string       `json:"id"`
	DeviceID      string       `json:"device_id"`
	Name          string       `json:"name"`
	Input         string       `json:"input"`
	Status        ActionStatus `json:"status"`
	Error         string       `json:"error,omitempty"`
	TimeRequested time.Time    `json:"time_requested"`
	TimeCompleted *time.Time   `json:"time_completed,omitempty"`
}

// ActionRequest is the body of a perform-action request
type ActionRequest struct {
	Name  string `json:"name"`
	Input string `json:"input"`
	Nonce string `json:"nonce,omitempty"`
}

// ActionResponse is returned to callers once an action reached a terminal status
type ActionResponse struct {
	Success bool    `json:"success"`
	Action  *Action `json:"action,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// NewActionResponse wraps a terminal action for the caller
func NewActionResponse(action *Action) *ActionResponse {
	return &ActionResponse{
		Success: action.Status == ActionSucceeded,
		Action:  action,
		Error:   action.Error,
	}
}

// StringValue returns a pointer to s, for building property values
func StringValue(s string) *string {
	return &s
}
