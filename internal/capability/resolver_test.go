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

package capability

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"rokubridge/internal/ecp"
)

func TestKeypressCommands(t *testing.T) {
	catalog := ecp.Commands()

	t.Run("non-TV drops TV-only families", func(t *testing.T) {
		keys := KeypressCommands(Features{IsTV: false, SupportsFindRemote: true}, catalog)

		for _, key := range keys {
			for _, prefix := range []string{"Volume", "Channel", "Input", "Power"} {
				assert.False(t, strings.HasPrefix(key, prefix), "unexpected %s", key)
			}
		}
		assert.NotContains(t, keys, "Power")
		assert.Contains(t, keys, "FindRemote")
		assert.Contains(t, keys, "Home")
	})

	t.Run("non-TV filter holds for any catalog", func(t *testing.T) {
		keys := KeypressCommands(Features{}, []string{"Power", "PowerOff", "VolumeUp", "ChannelDown", "InputHDMI9", "Up"})
		assert.Equal(t, []string{"Up"}, keys)
	})

	t.Run("TV with find remote keeps everything", func(t *testing.T) {
		keys := KeypressCommands(Features{IsTV: true, SupportsFindRemote: true}, catalog)
		assert.Contains(t, keys, "FindRemote")
		assert.Contains(t, keys, "VolumeUp")
		assert.Contains(t, keys, "Power")
	})

	t.Run("find remote dropped when unsupported", func(t *testing.T) {
		keys := KeypressCommands(Features{IsTV: true}, catalog)
		assert.NotContains(t, keys, "FindRemote")
		assert.Contains(t, keys, "InputTuner")
	})

	t.Run("deduplicated and sorted", func(t *testing.T) {
		keys := KeypressCommands(Features{IsTV: true, SupportsFindRemote: true}, catalog)
		assert.True(t, sort.StringsAreSorted(keys))

		seen := make(map[string]bool)
		for _, key := range keys {
			assert.False(t, seen[key], "duplicate %s", key)
			seen[key] = true
		}
		// select and ok share one command
		assert.Equal(t, 1, strings.Count(strings.Join(keys, ","), "Select"))
	})
}

func TestLaunchableApps(t *testing.T) {
	apps := []ecp.App{
		{ID: "837", Name: "YouTube"},
		{ID: "12", Name: "Netflix"},
		{ID: "2285", Name: "Hulu"},
		{ID: "99", Name: "Netflix"},
	}

	sorted := LaunchableApps(apps)
	assert.Equal(t, []string{"Hulu", "Netflix", "Netflix", "YouTube"}, AppNames(sorted))
	assert.Equal(t, "12", sorted[1].ID)
	assert.Equal(t, "99", sorted[2].ID)

	// input untouched
	assert.Equal(t, "837", apps[0].ID)
}

func TestFeaturesFromInfo(t *testing.T) {
	assert.Equal(t, Features{IsTV: true}, FeaturesFromInfo(&ecp.DeviceInfo{IsTV: "true", SupportsFindRemote: "false"}))
	assert.Equal(t, Features{SupportsFindRemote: true}, FeaturesFromInfo(&ecp.DeviceInfo{IsTV: "false", SupportsFindRemote: "true"}))
	assert.Equal(t, Features{}, FeaturesFromInfo(nil))

	assert.True(t, CanTune(Features{IsTV: true}))
	assert.False(t, CanTune(Features{}))
}
