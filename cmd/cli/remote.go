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

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"rokubridge/internal/device"
	"rokubridge/internal/host"
	"rokubridge/internal/logger"
)

// refreshInterval matches the bridge's own polling of the foreground app
const refreshInterval = 5 * time.Second

// remoteMode selects what keystrokes do on the remote screen
type remoteMode int

const (
	modeButtons remoteMode = iota
	modeText
	modeLaunch
	modeTune
)

// LogEntry represents a log entry for display
type LogEntry struct {
	Timestamp time.Time
	Level     string // INF, ERR
	Message   string
	Action    string
}

// RemoteModel handles the remote control screen
type RemoteModel struct {
	client *host.APIClient
	device device.Description

	mode    remoteMode
	session int64

	// text and channel entry
	input       string
	inputCursor int

	// app picker
	appCursor int

	selectedButton  remoteButton
	lastButtonPress time.Time
	pending         int

	lastResponse  *device.ActionResponse
	actionHistory []actionHistoryEntry

	debugMode bool

	width  int
	height int

	logBuffer   []LogEntry
	maxLogLines int
}

// NewRemoteModel creates a remote control screen for one bridge device
func NewRemoteModel(client *host.APIClient, desc device.Description, debug bool) RemoteModel {
	return RemoteModel{
		client:        client,
		device:        desc,
		session:       time.Now().UnixNano(),
		actionHistory: []actionHistoryEntry{},
		debugMode:     debug,
		logBuffer:     []LogEntry{},
		maxLogLines:   3,
	}
}

// Init starts the periodic refresh of the device description
func (m RemoteModel) Init() tea.Cmd {
	return refreshTick(refreshInterval, m.session)
}

// Capturing reports whether keystrokes are being typed into an entry field
func (m RemoteModel) Capturing() bool {
	return m.mode != modeButtons
}

// Update handles remote control screen messages
func (m RemoteModel) Update(msg tea.Msg) (RemoteModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case actionResultMsg:
		return m.handleActionResult(msg)

	case deviceRefreshedMsg:
		if msg.err != nil {
			m.addLogEntry("ERR", "refresh failed: "+msg.err.Error(), "refresh")
			return m, nil
		}
		m.device = *msg.device
		return m, nil

	case refreshTickMsg:
		if msg.session != m.session {
			return m, nil
		}
		return m, tea.Batch(refreshDeviceCmd(m.client, m.device.ID), refreshTick(refreshInterval, m.session))

	case tea.KeyMsg:
		switch m.mode {
		case modeText, modeTune:
			return m.handleEntryKey(msg)
		case modeLaunch:
			return m.handleLaunchKey(msg)
		}
		return m.handleButtonKey(msg)
	}

	return m, nil
}

func (m RemoteModel) handleButtonKey(msg tea.KeyMsg) (RemoteModel, tea.Cmd) {
	switch msg.String() {
	case "up":
		return m.handleRemoteButton(buttonUp)
	case "down":
		return m.handleRemoteButton(buttonDown)
	case "left":
		return m.handleRemoteButton(buttonLeft)
	case "right":
		return m.handleRemoteButton(buttonRight)
	case "enter":
		return m.handleRemoteButton(buttonOK)

	case "p":
		return m.handleRemoteButton(buttonPower)
	case "+", "=":
		return m.handleRemoteButton(buttonVolumeUp)
	case "-":
		return m.handleRemoteButton(buttonVolumeDown)
	case "m":
		return m.handleRemoteButton(buttonMute)
	case "ctrl+up", "]":
		return m.handleRemoteButton(buttonChannelUp)
	case "ctrl+down", "[":
		return m.handleRemoteButton(buttonChannelDown)

	case "h":
		return m.handleRemoteButton(buttonHome)
	case "backspace", "esc":
		return m.handleRemoteButton(buttonBack)
	case "*":
		return m.handleRemoteButton(buttonInfo)
	case "r":
		return m.handleRemoteButton(buttonReplay)
	case " ":
		return m.handleRemoteButton(buttonPlay)
	case ",":
		return m.handleRemoteButton(buttonReverse)
	case ".":
		return m.handleRemoteButton(buttonForward)
	case "/":
		return m.handleRemoteButton(buttonSearch)
	case "f":
		return m.handleRemoteButton(buttonFindRemote)

	case "t":
		m.mode = modeText
		m.input, m.inputCursor = "", 0
		return m, nil
	case "a":
		if len(m.apps()) > 0 {
			m.mode = modeLaunch
			m.appCursor = 0
		}
		return m, nil
	case "c":
		if _, ok := m.device.Actions["tuneToChannel"]; ok {
			m.mode = modeTune
			m.input, m.inputCursor = "", 0
		}
		return m, nil
	}

	return m, nil
}

// handleEntryKey edits the text or channel being typed
func (m RemoteModel) handleEntryKey(msg tea.KeyMsg) (RemoteModel, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeButtons
		return m, nil

	case "enter":
		if m.input == "" {
			return m, nil
		}
		name := "sendText"
		if m.mode == modeTune {
			name = "tuneToChannel"
		}
		input := m.input
		m.mode = modeButtons
		m.input, m.inputCursor = "", 0
		return m.perform(buttonNone, name, input)

	case "left":
		if m.inputCursor > 0 {
			m.inputCursor--
		}
	case "right":
		if m.inputCursor < len(m.input) {
			m.inputCursor++
		}
	case "backspace":
		if m.inputCursor > 0 {
			m.input = deleteCharAt(m.input, m.inputCursor-1)
			m.inputCursor--
		}
	default:
		if text := printable(msg.String()); text != "" {
			m.input = insertText(m.input, m.inputCursor, text)
			m.inputCursor += len(text)
		}
	}

	return m, nil
}

// handleLaunchKey moves through the installed apps
func (m RemoteModel) handleLaunchKey(msg tea.KeyMsg) (RemoteModel, tea.Cmd) {
	apps := m.apps()

	switch msg.String() {
	case "esc":
		m.mode = modeButtons
	case "up":
		if m.appCursor > 0 {
			m.appCursor--
		}
	case "down":
		if m.appCursor < len(apps)-1 {
			m.appCursor++
		}
	case "enter":
		m.mode = modeButtons
		if m.appCursor < len(apps) {
			return m.perform(buttonNone, "launchApp", apps[m.appCursor])
		}
	}

	return m, nil
}

// apps returns the launchable app names advertised by the device
func (m RemoteModel) apps() []string {
	action, ok := m.device.Actions["launchApp"]
	if !ok {
		return nil
	}
	return action.Input.Enum
}

// handleRemoteButton sends the keypress bound to a button
func (m RemoteModel) handleRemoteButton(button remoteButton) (RemoteModel, tea.Cmd) {
	command, ok := buttonCommands[button]
	if !ok {
		return m, nil
	}

	m.selectedButton = button
	m.lastButtonPress = time.Now()
	return m.perform(button, "sendKeypress", command)
}

func (m RemoteModel) perform(button remoteButton, name, input string) (RemoteModel, tea.Cmd) {
	if m.client == nil {
		return m, nil
	}

	m.pending++
	return m, performActionCmd(m.client, m.device.ID, button, name, input)
}

func (m RemoteModel) handleActionResult(msg actionResultMsg) (RemoteModel, tea.Cmd) {
	if m.pending > 0 {
		m.pending--
	}

	response := msg.response
	if msg.err != nil {
		response = &device.ActionResponse{Success: false, Error: msg.err.Error()}
	}
	m.lastResponse = response

	entry := actionHistoryEntry{
		Timestamp: time.Now(),
		Action:    msg.name,
		Input:     msg.input,
		Success:   response.Success,
		Error:     response.Error,
	}
	m.actionHistory = append([]actionHistoryEntry{entry}, m.actionHistory...)
	if len(m.actionHistory) > 50 {
		m.actionHistory = m.actionHistory[:50]
	}

	if response.Success {
		m.addLogEntry("INF", fmt.Sprintf("%s %s", msg.name, msg.input), msg.name)
	} else {
		m.addLogEntry("ERR", fmt.Sprintf("%s %s failed: %s", msg.name, msg.input, response.Error), msg.name)
	}

	log := logger.New()
	log.Info().
		Str("device_id", m.device.ID).
		Str("action", msg.name).
		Str("input", msg.input).
		Bool("success", response.Success).
		Msg("Remote action performed")

	// a launch changes the foreground app right away
	if msg.name == "launchApp" && response.Success {
		return m, refreshDeviceCmd(m.client, m.device.ID)
	}
	return m, nil
}

// View renders the remote control screen
func (m RemoteModel) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render("rokubridge - "+m.device.Name))

	status := successStyle.Render("📺 " + m.device.Description)
	if app := activeApp(m.device); app != "" {
		status += "  " + lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Render("▶ "+app)
	} else {
		status += "  " + helpStyle.Render("(home screen)")
	}
	sections = append(sections, status)

	switch m.mode {
	case modeText:
		sections = append(sections, m.renderEntry("Text:"))
	case modeTune:
		sections = append(sections, m.renderEntry("Channel:"))
	case modeLaunch:
		sections = append(sections, m.renderAppPicker())
	default:
		sections = append(sections, m.renderHorizontalRemoteLayout())
	}

	if m.lastResponse != nil {
		sections = append(sections, m.renderStatusBar())
	}

	if m.debugMode {
		if logDisplay := m.renderLogDisplay(); logDisplay != "" {
			sections = append(sections, logDisplay)
		}
	}

	sections = append(sections, m.renderHelpText())

	return strings.Join(sections, "\n\n")
}

func (m RemoteModel) renderEntry(label string) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		subtitleStyle.Render(label),
		inputFocusedStyle.Render(renderTextWithCursor(m.input, m.inputCursor, true)),
	)
}

func (m RemoteModel) renderAppPicker() string {
	lines := []string{subtitleStyle.Render("Launch:")}
	for i, name := range m.apps() {
		cursor := "  "
		style := lipgloss.NewStyle()
		if i == m.appCursor {
			cursor = "> "
			style = style.Foreground(lipgloss.Color("#FF79C6"))
		}
		lines = append(lines, style.Render(cursor+name))
	}
	return strings.Join(lines, "\n")
}

// renderHorizontalRemoteLayout creates a horizontal remote control layout
func (m RemoteModel) renderHorizontalRemoteLayout() string {
	getButtonStyle := func(btn remoteButton) lipgloss.Style {
		if m.selectedButton == btn && time.Since(m.lastButtonPress) < 200*time.Millisecond {
			return remoteButtonActiveStyle
		}
		return remoteButtonStyle
	}

	navColumn := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Render("Navigation:"),
		lipgloss.JoinHorizontal(lipgloss.Center,
			getButtonStyle(buttonBack).Render(" BACK "),
			getButtonStyle(buttonHome).Render(" HOME ")),
		getButtonStyle(buttonUp).Render("  ↑   "),
		lipgloss.JoinHorizontal(lipgloss.Center,
			getButtonStyle(buttonLeft).Render("  ←   "),
			getButtonStyle(buttonOK).Render("  OK  "),
			getButtonStyle(buttonRight).Render("  →   ")),
		getButtonStyle(buttonDown).Render("  ↓   "),
	)

	playbackColumn := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Render("Playback:"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonReplay).Render("  ↺   "),
			getButtonStyle(buttonInfo).Render("  *   ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonReverse).Render("  ⏪  "),
			getButtonStyle(buttonPlay).Render("  ⏯   "),
			getButtonStyle(buttonForward).Render("  ⏩  ")),
		getButtonStyle(buttonSearch).Render("SEARCH"),
	)

	functionColumn := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Render("Volume & Power:"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonVolumeUp).Render("VOL + "),
			getButtonStyle(buttonChannelUp).Render("CH +  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonVolumeDown).Render("VOL - "),
			getButtonStyle(buttonChannelDown).Render("CH -  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonMute).Render("MUTE  "),
			getButtonStyle(buttonPower).Render(" PWR  ")),
		getButtonStyle(buttonFindRemote).Render(" FIND "),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		navColumn,
		strings.Repeat(" ", 4),
		playbackColumn,
		strings.Repeat(" ", 4),
		functionColumn,
	)
}

// renderStatusBar creates the status bar with last action result
func (m RemoteModel) renderStatusBar() string {
	if m.lastResponse == nil {
		return ""
	}

	if !m.lastResponse.Success {
		return errorStyle.Render("✗ " + m.lastResponse.Error)
	}

	status := successStyle.Render("✓ Action succeeded")
	if action := m.lastResponse.Action; action != nil {
		status += fmt.Sprintf(": %s %s", action.Name, action.Input)
		if action.TimeCompleted != nil {
			status += helpStyle.Render(fmt.Sprintf(" (%s)", action.TimeCompleted.Sub(action.TimeRequested).Round(time.Millisecond)))
		}
	}
	if m.pending > 0 {
		status += helpStyle.Render(fmt.Sprintf(" • %d pending", m.pending))
	}
	return status
}

// renderLogDisplay creates a fixed-height log display area
func (m RemoteModel) renderLogDisplay() string {
	if len(m.logBuffer) == 0 {
		return ""
	}

	start := 0
	if len(m.logBuffer) > m.maxLogLines {
		start = len(m.logBuffer) - m.maxLogLines
	}

	header := "─── LOGS ───"
	if start > 0 {
		header = "─── LOGS ↓ ───"
	}
	lines := []string{lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Render(header)}

	for i := 0; i < m.maxLogLines; i++ {
		if start+i >= len(m.logBuffer) {
			lines = append(lines, "")
			continue
		}

		entry := m.logBuffer[start+i]
		levelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
		if entry.Level == "ERR" {
			levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
		}

		message := entry.Message
		if len(message) > 60 {
			message = message[:57] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s [%s] %s",
			entry.Timestamp.Format("15:04:05"),
			levelStyle.Render(entry.Level),
			message))
	}

	return strings.Join(lines, "\n")
}

// addLogEntry adds a new log entry to the buffer
func (m *RemoteModel) addLogEntry(level, message, action string) {
	m.logBuffer = append(m.logBuffer, LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Action:    action,
	})

	if len(m.logBuffer) > 20 {
		m.logBuffer = m.logBuffer[1:]
	}
}

// renderHelpText creates the help text at the bottom
func (m RemoteModel) renderHelpText() string {
	switch m.mode {
	case modeText, modeTune:
		return helpStyle.Render("Type • Enter: Send • Esc: Cancel")
	case modeLaunch:
		return helpStyle.Render("↑/↓: Select • Enter: Launch • Esc: Cancel")
	}

	help := "Arrows: Navigate • Enter: OK • Bksp: Back • H: Home • Space: Play • +/-: Volume • M: Mute"
	if m.width > 100 {
		help += " • ,/.: Rev/Fwd • R: Replay • *: Info • /: Search • F: Find remote • P: Power"
	}
	help += " • T: Text • A: Apps"
	if _, ok := m.device.Actions["tuneToChannel"]; ok {
		help += " • C: Channel • [/]: CH-/CH+"
	}
	help += " • q: Devices"

	return helpStyle.Render(help)
}
