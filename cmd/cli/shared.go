package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"rokubridge/internal/bridge"
	"rokubridge/internal/device"
	"rokubridge/internal/host"
)

// Screen types
type screen int

const (
	screenBridgeSetup screen = iota
	screenRemoteControl
)

// requestTimeout bounds every call the TUI makes to the bridge
const requestTimeout = 10 * time.Second

// Common styles
var (
	titleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#6C3C97")).
		Padding(0, 1).
		Bold(true)

	subtitleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6C3C97")).
		Bold(true)

	inputStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#6C3C97")).
		Padding(0, 1).
		Width(50)

	inputFocusedStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#FF79C6")).
		Padding(0, 1).
		Width(50)

	buttonStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("#6C3C97")).
		Foreground(lipgloss.Color("#FAFAFA")).
		Padding(0, 2).
		Margin(0, 1)

	buttonActiveStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("#FF79C6")).
		Foreground(lipgloss.Color("#FAFAFA")).
		Padding(0, 2).
		Margin(0, 1)

	remoteButtonStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Margin(0, 1).
		Background(lipgloss.Color("#44475A")).
		Foreground(lipgloss.Color("#F8F8F2"))

	remoteButtonActiveStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Margin(0, 1).
		Background(lipgloss.Color("#FF79C6")).
		Foreground(lipgloss.Color("#FAFAFA"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF5555")).
		Bold(true)

	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#50FA7B")).
		Bold(true)

	helpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6272A4"))
)

// Remote button types
type remoteButton int

const (
	buttonNone remoteButton = iota
	buttonPower
	buttonVolumeUp
	buttonVolumeDown
	buttonMute
	buttonChannelUp
	buttonChannelDown
	buttonUp
	buttonDown
	buttonLeft
	buttonRight
	buttonOK
	buttonHome
	buttonBack
	buttonInfo
	buttonReplay
	buttonPlay
	buttonReverse
	buttonForward
	buttonSearch
	buttonFindRemote
)

// buttonCommands maps each remote button to the keypress command it sends
var buttonCommands = map[remoteButton]string{
	buttonPower:       "Power",
	buttonVolumeUp:    "VolumeUp",
	buttonVolumeDown:  "VolumeDown",
	buttonMute:        "VolumeMute",
	buttonChannelUp:   "ChannelUp",
	buttonChannelDown: "ChannelDown",
	buttonUp:          "Up",
	buttonDown:        "Down",
	buttonLeft:        "Left",
	buttonRight:       "Right",
	buttonOK:          "Select",
	buttonHome:        "Home",
	buttonBack:        "Back",
	buttonInfo:        "Info",
	buttonReplay:      "InstantReplay",
	buttonPlay:        "Play",
	buttonReverse:     "Rev",
	buttonForward:     "Fwd",
	buttonSearch:      "Search",
	buttonFindRemote:  "FindRemote",
}

// Action history entry
type actionHistoryEntry struct {
	Timestamp time.Time
	Action    string
	Input     string
	Success   bool
	Error     string
}

// Messages produced by commands that talk to the bridge

type devicesLoadedMsg struct {
	devices []device.Description
	err     error
}

type deviceRefreshedMsg struct {
	device *device.Description
	err    error
}

type actionResultMsg struct {
	button   remoteButton
	name     string
	input    string
	response *device.ActionResponse
	err      error
}

type pairingStartedMsg struct {
	started bool
	err     error
}

// refreshTickMsg carries the session of the remote screen that scheduled it
type refreshTickMsg struct {
	session int64
}

func loadDevicesCmd(client *host.APIClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		devices, err := client.Devices(ctx)
		return devicesLoadedMsg{devices: devices, err: err}
	}
}

func startPairingCmd(client *host.APIClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		started, err := client.StartPairing(ctx)
		return pairingStartedMsg{started: started, err: err}
	}
}

func refreshDeviceCmd(client *host.APIClient, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		desc, err := client.Device(ctx, id)
		return deviceRefreshedMsg{device: desc, err: err}
	}
}

// performActionCmd sends one action with a fresh nonce so a retried request
// is never executed twice
func performActionCmd(client *host.APIClient, id string, button remoteButton, name, input string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		resp, err := client.PerformAction(ctx, id, device.ActionRequest{
			Name:  name,
			Input: input,
			Nonce: bridge.GenerateNonce(),
		})
		return actionResultMsg{
			button:   button,
			name:     name,
			input:    input,
			response: resp,
			err:      err,
		}
	}
}

func refreshTick(interval time.Duration, session int64) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return refreshTickMsg{session: session}
	})
}

// Utility functions

// insertText inserts text at the specified position in a string
func insertText(text string, pos int, insert string) string {
	if pos < 0 {
		pos = 0
	}
	if pos > len(text) {
		pos = len(text)
	}
	return text[:pos] + insert + text[pos:]
}

// deleteCharAt deletes the character at the specified position
func deleteCharAt(text string, pos int) string {
	if pos < 0 || pos >= len(text) {
		return text
	}
	return text[:pos] + text[pos+1:]
}

// printable drops control sequences from a key string
func printable(input string) string {
	if input == "" || input == "\x00" {
		return ""
	}

	out := ""
	for _, r := range input {
		if r >= 32 && r < 127 || r > 127 {
			out += string(r)
		}
	}
	return out
}

// renderTextWithCursor renders text with a cursor indicator at the specified position
func renderTextWithCursor(text string, cursorPos int, showCursor bool) string {
	if !showCursor || cursorPos < 0 {
		return text
	}

	if cursorPos > len(text) {
		cursorPos = len(text)
	}

	if cursorPos == len(text) {
		return text + "│"
	}

	highlighted := lipgloss.NewStyle().
		Background(lipgloss.Color("#FF79C6")).
		Foreground(lipgloss.Color("#FAFAFA")).
		Render(string(text[cursorPos]))

	return text[:cursorPos] + highlighted + text[cursorPos+1:]
}

// maskToken hides all but the edges of a token
func maskToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:6] + "…" + token[len(token)-6:]
}
