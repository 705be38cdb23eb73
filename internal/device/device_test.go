package device

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionStatus_Terminal(t *testing.T) {
	assert.False(t, ActionPending.Terminal())
	assert.True(t, ActionSucceeded.Terminal())
	assert.True(t, ActionFailed.Terminal())
}

func TestNewActionResponse(t *testing.T) {
	ok := NewActionResponse(&Action{Name: "sendText", Status: ActionSucceeded})
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Error)

	failed := NewActionResponse(&Action{Name: "launchApp", Status: ActionFailed, Error: "unknown app"})
	assert.False(t, failed.Success)
	assert.Equal(t, "unknown app", failed.Error)
}

func TestDescription_JSON(t *testing.T) {
	desc := Description{
		ID:      "roku-X1",
		Context: Context,
		Type:    []string{},
		Name:    "Living Room",
		Properties: map[string]Property{
			"activeApp": {Name: "activeApp", Schema: PropertySchema{Label: "Active App", Type: "string", ReadOnly: true}},
		},
	}

	data, err := json.Marshal(desc)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, Context, raw["@context"])

	props := raw["properties"].(map[string]interface{})
	active := props["activeApp"].(map[string]interface{})
	assert.Nil(t, active["value"])
}
