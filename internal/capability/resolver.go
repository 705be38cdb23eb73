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

// Package capability computes which commands and actions a device supports
// from data already fetched from it.
package capability

import (
	"sort"
	"strings"

	"rokubridge/internal/ecp"
)

// tvOnlyPrefixes are command families that only TV-class hardware accepts
var tvOnlyPrefixes = []string{"Volume", "Channel", "Input", "Power"}

// Features are the device flags that shape its capabilities
type Features struct {
	IsTV               bool
	SupportsFindRemote bool
}

// FeaturesFromInfo reads the feature flags out of a device-info payload
func FeaturesFromInfo(info *ecp.DeviceInfo) Features {
	if info == nil {
		return Features{}
	}
	return Features{
		IsTV:               info.TV(),
		SupportsFindRemote: info.FindRemote(),
	}
}

// KeypressCommands filters catalog down to the commands valid for a device
// with the given features. The result is deduplicated and sorted.
func KeypressCommands(features Features, catalog []string) []string {
	seen := make(map[string]struct{}, len(catalog))
	commands := make([]string, 0, len(catalog))

	for _, command := range catalog {
		if command == "" {
			continue
		}
		if !features.IsTV && isTVOnly(command) {
			continue
		}
		if !features.SupportsFindRemote && command == string(ecp.FindRemote) {
			continue
		}
		if _, ok := seen[command]; ok {
			continue
		}
		seen[command] = struct{}{}
		commands = append(commands, command)
	}

	sort.Strings(commands)
	return commands
}

func isTVOnly(command string) bool {
	for _, prefix := range tvOnlyPrefixes {
		if strings.HasPrefix(command, prefix) {
			return true
		}
	}
	return false
}

// LaunchableApps returns a copy of apps ordered by name. Apps sharing a name
// keep their catalog order.
func LaunchableApps(apps []ecp.App) []ecp.App {
	sorted := append([]ecp.App(nil), apps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// AppNames lists the names of apps in order
func AppNames(apps []ecp.App) []string {
	names := make([]string, len(apps))
	for i, app := range apps {
		names[i] = app.Name
	}
	return names
}

// CanTune reports whether the tuning action is exposed
func CanTune(features Features) bool {
	return features.IsTV
}
