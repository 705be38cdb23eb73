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

// Keypress commands understood by Roku devices
const (
	// Power Controls
	Power    Key = "Power"
	PowerOff Key = "PowerOff"
	PowerOn  Key = "PowerOn"

	// Volume Controls
	VolumeUp   Key = "VolumeUp"
	VolumeDown Key = "VolumeDown"
	VolumeMute Key = "VolumeMute"

	// Channel Controls
	ChannelUp   Key = "ChannelUp"
	ChannelDown Key = "ChannelDown"

	// Navigation Controls
	Up     Key = "Up"
	Down   Key = "Down"
	Left   Key = "Left"
	Right  Key = "Right"
	Select Key = "Select"

	// Menu Controls
	Home          Key = "Home"
	Back          Key = "Back"
	Info          Key = "Info"
	Search        Key = "Search"
	Enter         Key = "Enter"
	Backspace     Key = "Backspace"
	InstantReplay Key = "InstantReplay"
	FindRemote    Key = "FindRemote"

	// Input Controls
	InputTuner Key = "InputTuner"
	InputHDMI1 Key = "InputHDMI1"
	InputHDMI2 Key = "InputHDMI2"
	InputHDMI3 Key = "InputHDMI3"
	InputHDMI4 Key = "InputHDMI4"
	InputAV1   Key = "InputAV1"

	// Playback Controls
	Play    Key = "Play"
	Reverse Key = "Rev"
	Forward Key = "Fwd"
)

// ECP endpoints
const (
	DeviceInfoEndpoint Endpoint = "/query/device-info"
	ActiveAppEndpoint  Endpoint = "/query/active-app"
	AppsEndpoint       Endpoint = "/query/apps"
	KeypressEndpoint   Endpoint = "/keypress/"
	LaunchEndpoint     Endpoint = "/launch/"
)

// TunerAppID is the channel id of the built-in live TV input
const TunerAppID = "tvinput.dtv"

// Keys maps every remote button name to the command it sends. Several buttons
// share a command (the star button is Info, OK is Select), so the values are
// not unique.
var Keys = map[string]Key{
	"back":           Back,
	"backspace":      Backspace,
	"channel_down":   ChannelDown,
	"channel_up":     ChannelUp,
	"down":           Down,
	"enter":          Enter,
	"find_remote":    FindRemote,
	"forward":        Forward,
	"home":           Home,
	"info":           Info,
	"input_av1":      InputAV1,
	"input_hdmi1":    InputHDMI1,
	"input_hdmi2":    InputHDMI2,
	"input_hdmi3":    InputHDMI3,
	"input_hdmi4":    InputHDMI4,
	"input_tuner":    InputTuner,
	"instant_replay": InstantReplay,
	"left":           Left,
	"ok":             Select,
	"options":        Info,
	"play":           Play,
	"pause":          Play,
	"power":          Power,
	"power_off":      PowerOff,
	"power_on":       PowerOn,
	"reverse":        Reverse,
	"right":          Right,
	"search":         Search,
	"select":         Select,
	"star":           Info,
	"up":             Up,
	"volume_down":    VolumeDown,
	"volume_mute":    VolumeMute,
	"volume_up":      VolumeUp,
}

// Commands returns the command of every catalog entry, duplicates included
func Commands() []string {
	commands := make([]string, 0, len(Keys))
	for _, key := range Keys {
		commands = append(commands, string(key))
	}
	return commands
}
