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

package ecp

import "encoding/xml"

// Key represents an ECP keypress command such as "Home" or "VolumeUp"
type Key string

// Endpoint represents an ECP resource path
type Endpoint string

// DeviceInfo is the subset of /query/device-info the bridge relies on.
// Boolean flags are kept as the literal strings the device reports.
type DeviceInfo struct {
	XMLName            xml.Name `xml:"device-info" json:"-"`
	UDN                string   `xml:"udn" json:"udn"`
	SerialNumber       string   `xml:"serial-number" json:"serial_number"`
	DeviceID           string   `xml:"device-id" json:"device_id"`
	VendorName         string   `xml:"vendor-name" json:"vendor_name"`
	ModelName          string   `xml:"model-name" json:"model_name"`
	ModelNumber        string   `xml:"model-number" json:"model_number"`
	FriendlyDeviceName string   `xml:"friendly-device-name" json:"friendly_device_name"`
	FriendlyModelName  string   `xml:"friendly-model-name" json:"friendly_model_name"`
	SoftwareVersion    string   `xml:"software-version" json:"software_version"`
	PowerMode          string   `xml:"power-mode" json:"power_mode"`
	IsTV               string   `xml:"is-tv" json:"is_tv"`
	IsStick            string   `xml:"is-stick" json:"is_stick"`
	SupportsFindRemote string   `xml:"supports-find-remote" json:"supports_find_remote"`
}

// TV reports whether the device is TV-class hardware
func (d *DeviceInfo) TV() bool {
	return d.IsTV == "true"
}

// FindRemote reports whether the device can make its remote beep
func (d *DeviceInfo) FindRemote() bool {
	return d.SupportsFindRemote == "true"
}

// App is an installed channel as reported by /query/apps and /query/active-app
type App struct {
	ID      string `xml:"id,attr" json:"id"`
	Type    string `xml:"type,attr" json:"type,omitempty"`
	Version string `xml:"version,attr" json:"version,omitempty"`
	Name    string `xml:",chardata" json:"name"`
}

type appsResponse struct {
	XMLName xml.Name `xml:"apps"`
	Apps    []App    `xml:"app"`
}

type activeAppResponse struct {
	XMLName xml.Name `xml:"active-app"`
	App     App      `xml:"app"`
}
