package cli

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"rokubridge/internal/device"
	"rokubridge/internal/host"
	"rokubridge/internal/logger"
)

// Setup screen input fields
type setupField int

const (
	setupFieldBridgeURL setupField = iota
	setupFieldToken
	setupFieldConnect
	setupFieldDevices
)

// discoveryRefreshDelay is how long the list waits for a sweep to find devices
const discoveryRefreshDelay = 4 * time.Second

type reloadDevicesMsg struct{}

// SetupModel handles the bridge connection and device selection screen
type SetupModel struct {
	focusedField setupField

	// Input fields
	bridgeURL string
	token     string

	// Cursor positions
	bridgeURLCursor int
	tokenCursor     int

	// Connection state
	connecting      bool
	connectionError string
	statusMessage   string
	client          *host.APIClient

	// Devices reported by the bridge
	devices        []device.Description
	selectedDevice int
	chosen         *device.Description

	debugMode bool
}

// NewSetupModel creates a new setup screen model prefilled with a bridge URL
// and token, either of which may be empty
func NewSetupModel(bridgeURL, token string, debug bool) SetupModel {
	return SetupModel{
		focusedField:    setupFieldBridgeURL,
		bridgeURL:       bridgeURL,
		bridgeURLCursor: len(bridgeURL),
		token:           token,
		tokenCursor:     len(token),
		debugMode:       debug,
	}
}

// Update handles setup screen messages
func (m SetupModel) Update(msg tea.Msg) (SetupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case devicesLoadedMsg:
		return m.handleDevicesLoaded(msg), nil

	case reloadDevicesMsg:
		if m.client == nil {
			return m, nil
		}
		return m, loadDevicesCmd(m.client)

	case pairingStartedMsg:
		switch {
		case msg.err != nil:
			m.connectionError = msg.err.Error()
		case msg.started:
			m.statusMessage = "Discovery started, press r to refresh"
		default:
			m.statusMessage = "Discovery already running"
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "shift+tab":
			return m.handleTabNavigation(msg.String() == "shift+tab"), nil

		case "enter":
			switch m.focusedField {
			case setupFieldConnect:
				return m.handleConnect()
			case setupFieldDevices:
				return m.handleChooseDevice(), nil
			}
			return m, nil

		case "up":
			return m.handleUp(), nil

		case "down":
			return m.handleDown(), nil

		case "left":
			return m.handleLeft(), nil

		case "right":
			return m.handleRight(), nil

		case "backspace":
			return m.handleBackspace(), nil

		case "delete":
			return m.handleDelete(), nil

		case "home":
			return m.handleHome(), nil

		case "end":
			return m.handleEnd(), nil

		default:
			if m.focusedField == setupFieldDevices {
				return m.handleDeviceListKey(msg.String())
			}
			return m.handleTextInput(msg.String()), nil
		}
	}

	return m, nil
}

// View renders the setup screen
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("rokubridge - Connect"))
	b.WriteString("\n\n")

	b.WriteString(subtitleStyle.Render("Bridge URL:"))
	b.WriteString("\n")
	urlStyle := inputStyle
	showCursor := m.focusedField == setupFieldBridgeURL
	if showCursor {
		urlStyle = inputFocusedStyle
	}
	b.WriteString(urlStyle.Render(renderTextWithCursor(m.bridgeURL, m.bridgeURLCursor, showCursor)))
	b.WriteString("\n\n")

	b.WriteString(subtitleStyle.Render("API Token:"))
	b.WriteString("\n")
	tokenStyle := inputStyle
	showTokenCursor := m.focusedField == setupFieldToken
	tokenText := maskToken(m.token)
	if showTokenCursor {
		tokenStyle = inputFocusedStyle
		tokenText = renderTextWithCursor(m.token, m.tokenCursor, true)
	}
	b.WriteString(tokenStyle.Render(tokenText))
	b.WriteString("\n\n")

	connectStyle := buttonStyle
	if m.focusedField == setupFieldConnect {
		connectStyle = buttonActiveStyle
	}
	connectText := "Connect"
	if m.connecting {
		connectText = "Connecting..."
	}
	b.WriteString(connectStyle.Render(connectText))
	b.WriteString("\n\n")

	if m.client != nil {
		b.WriteString(subtitleStyle.Render(fmt.Sprintf("Devices (%d):", len(m.devices))))
		b.WriteString("\n")
		if len(m.devices) == 0 {
			b.WriteString(helpStyle.Render("  No devices registered yet. Press d to discover."))
			b.WriteString("\n")
		}
		for i, desc := range m.devices {
			cursor := "  "
			if i == m.selectedDevice {
				cursor = "> "
			}

			style := lipgloss.NewStyle()
			if m.focusedField == setupFieldDevices && i == m.selectedDevice {
				style = style.Foreground(lipgloss.Color("#FF79C6"))
			}

			line := fmt.Sprintf("%s%s  %s", cursor, desc.Name, helpStyle.Render(desc.Address))
			if app := activeApp(desc); app != "" {
				line += "  ▶ " + app
			}
			b.WriteString(style.Render(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.connectionError != "" {
		b.WriteString(errorStyle.Render("Error: " + m.connectionError))
		b.WriteString("\n\n")
	} else if m.statusMessage != "" {
		b.WriteString(successStyle.Render(m.statusMessage))
		b.WriteString("\n\n")
	}

	help := "Tab: Next field • Enter: Action • ←/→: Move cursor • Home/End: Start/End"
	if m.focusedField == setupFieldDevices {
		help = "↑/↓: Select • Enter: Open remote • r: Refresh • d: Discover • Tab: Next field • q: Quit"
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

// handleTabNavigation moves between input fields. The device list is only
// reachable once connected.
func (m SetupModel) handleTabNavigation(reverse bool) SetupModel {
	fields := []setupField{setupFieldBridgeURL, setupFieldToken, setupFieldConnect}
	if m.client != nil {
		fields = append(fields, setupFieldDevices)
	}

	currentIndex := 0
	for i, field := range fields {
		if field == m.focusedField {
			currentIndex = i
			break
		}
	}

	if reverse {
		currentIndex = (currentIndex - 1 + len(fields)) % len(fields)
	} else {
		currentIndex = (currentIndex + 1) % len(fields)
	}

	m.focusedField = fields[currentIndex]
	m.syncCursorPosition()
	return m
}

// handleConnect validates the inputs and asks the bridge for its devices
func (m SetupModel) handleConnect() (SetupModel, tea.Cmd) {
	if m.connecting {
		return m, nil
	}

	if m.bridgeURL == "" {
		m.connectionError = "Bridge URL is required"
		return m, nil
	}
	if !IsValidBridgeURL(m.bridgeURL) {
		m.connectionError = "Bridge URL must look like http://127.0.0.1:8081"
		return m, nil
	}
	if m.token == "" {
		m.connectionError = "API token is required (see 'rokubridge token')"
		return m, nil
	}

	m.connecting = true
	m.connectionError = ""
	m.statusMessage = ""
	m.client = host.NewAPIClient(m.bridgeURL, m.token, requestTimeout)

	return m, loadDevicesCmd(m.client)
}

func (m SetupModel) handleDevicesLoaded(msg devicesLoadedMsg) SetupModel {
	m.connecting = false
	if m.client == nil {
		return m
	}

	if msg.err != nil {
		m.connectionError = msg.err.Error()
		m.client = nil
		m.devices = nil
		if m.focusedField == setupFieldDevices {
			m.focusedField = setupFieldConnect
		}
		return m
	}

	m.devices = msg.devices
	m.connectionError = ""
	m.statusMessage = fmt.Sprintf("Connected to %s", m.client.BaseURL())
	m.focusedField = setupFieldDevices
	if m.selectedDevice >= len(m.devices) {
		m.selectedDevice = 0
	}

	log := logger.New()
	log.Info().
		Str("bridge", m.client.BaseURL()).
		Int("devices", len(m.devices)).
		Msg("Connected to bridge")

	return m
}

func (m SetupModel) handleDeviceListKey(key string) (SetupModel, tea.Cmd) {
	if m.client == nil {
		return m, nil
	}

	switch key {
	case "r":
		m.statusMessage = "Refreshing..."
		return m, loadDevicesCmd(m.client)
	case "d":
		m.statusMessage = "Starting discovery..."
		return m, tea.Batch(startPairingCmd(m.client), tea.Tick(discoveryRefreshDelay, func(time.Time) tea.Msg {
			return reloadDevicesMsg{}
		}))
	}
	return m, nil
}

func (m SetupModel) handleChooseDevice() SetupModel {
	if m.selectedDevice < 0 || m.selectedDevice >= len(m.devices) {
		return m
	}

	desc := m.devices[m.selectedDevice]
	m.chosen = &desc
	return m
}

// handleUp handles up arrow key
func (m SetupModel) handleUp() SetupModel {
	if m.focusedField == setupFieldDevices && m.selectedDevice > 0 {
		m.selectedDevice--
	}
	return m
}

// handleDown handles down arrow key
func (m SetupModel) handleDown() SetupModel {
	if m.focusedField == setupFieldDevices && m.selectedDevice < len(m.devices)-1 {
		m.selectedDevice++
	}
	return m
}

// handleLeft handles left arrow key
func (m SetupModel) handleLeft() SetupModel {
	switch m.focusedField {
	case setupFieldBridgeURL:
		if m.bridgeURLCursor > 0 {
			m.bridgeURLCursor--
		}
	case setupFieldToken:
		if m.tokenCursor > 0 {
			m.tokenCursor--
		}
	}
	return m
}

// handleRight handles right arrow key
func (m SetupModel) handleRight() SetupModel {
	switch m.focusedField {
	case setupFieldBridgeURL:
		if m.bridgeURLCursor < len(m.bridgeURL) {
			m.bridgeURLCursor++
		}
	case setupFieldToken:
		if m.tokenCursor < len(m.token) {
			m.tokenCursor++
		}
	}
	return m
}

// handleBackspace handles backspace key
func (m SetupModel) handleBackspace() SetupModel {
	switch m.focusedField {
	case setupFieldBridgeURL:
		if m.bridgeURLCursor > 0 {
			m.bridgeURL = deleteCharAt(m.bridgeURL, m.bridgeURLCursor-1)
			m.bridgeURLCursor--
		}
	case setupFieldToken:
		if m.tokenCursor > 0 {
			m.token = deleteCharAt(m.token, m.tokenCursor-1)
			m.tokenCursor--
		}
	}
	return m
}

// handleDelete handles delete key
func (m SetupModel) handleDelete() SetupModel {
	switch m.focusedField {
	case setupFieldBridgeURL:
		m.bridgeURL = deleteCharAt(m.bridgeURL, m.bridgeURLCursor)
	case setupFieldToken:
		m.token = deleteCharAt(m.token, m.tokenCursor)
	}
	return m
}

func (m SetupModel) handleHome() SetupModel {
	switch m.focusedField {
	case setupFieldBridgeURL:
		m.bridgeURLCursor = 0
	case setupFieldToken:
		m.tokenCursor = 0
	}
	return m
}

func (m SetupModel) handleEnd() SetupModel {
	switch m.focusedField {
	case setupFieldBridgeURL:
		m.bridgeURLCursor = len(m.bridgeURL)
	case setupFieldToken:
		m.tokenCursor = len(m.token)
	}
	return m
}

// handleTextInput handles character input
func (m SetupModel) handleTextInput(input string) SetupModel {
	text := printable(input)
	if text == "" {
		return m
	}

	switch m.focusedField {
	case setupFieldBridgeURL:
		m.bridgeURL = insertText(m.bridgeURL, m.bridgeURLCursor, text)
		m.bridgeURLCursor += len(text)
	case setupFieldToken:
		m.token = insertText(m.token, m.tokenCursor, text)
		m.tokenCursor += len(text)
	}
	return m
}

// syncCursorPosition ensures cursor positions are within bounds
func (m *SetupModel) syncCursorPosition() {
	if m.bridgeURLCursor > len(m.bridgeURL) {
		m.bridgeURLCursor = len(m.bridgeURL)
	}
	if m.tokenCursor > len(m.token) {
		m.tokenCursor = len(m.token)
	}
}

// IsValidBridgeURL checks for an absolute http(s) URL with a host
func IsValidBridgeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Editing reports whether keystrokes are going into a text field
func (m SetupModel) Editing() bool {
	return m.focusedField == setupFieldBridgeURL || m.focusedField == setupFieldToken
}

// IsConnected returns true once a device has been chosen
func (m SetupModel) IsConnected() bool {
	return m.client != nil && m.chosen != nil
}

// Client returns the API client of the connected bridge
func (m SetupModel) Client() *host.APIClient {
	return m.client
}

// ChosenDevice returns the device picked from the list
func (m SetupModel) ChosenDevice() device.Description {
	if m.chosen == nil {
		return device.Description{}
	}
	return *m.chosen
}

// GetDebugMode returns the debug mode flag
func (m SetupModel) GetDebugMode() bool {
	return m.debugMode
}

// activeApp returns the current foreground app of a description, if any
func activeApp(desc device.Description) string {
	prop, ok := desc.Properties["activeApp"]
	if !ok || prop.Value == nil {
		return ""
	}
	return *prop.Value
}
