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
	"github.com/charmbracelet/bubbletea"
)

// Options configures the TUI
type Options struct {
	BridgeURL string
	Token     string
	Debug     bool
}

// Main TUI model that routes between screens
type model struct {
	currentScreen screen
	width         int
	height        int
	quitting      bool
	options       Options

	setupModel  SetupModel
	remoteModel RemoteModel
}

func initialModel(options Options) model {
	return model{
		currentScreen: screenBridgeSetup,
		options:       options,
		setupModel:    NewSetupModel(options.BridgeURL, options.Token, options.Debug),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		var cmd tea.Cmd
		m.remoteModel, cmd = m.remoteModel.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "q":
			switch {
			case m.currentScreen == screenBridgeSetup && !m.setupModel.Editing():
				m.quitting = true
				return m, tea.Quit
			case m.currentScreen == screenRemoteControl && !m.remoteModel.Capturing():
				// back to the device list of the same bridge
				client := m.remoteModel.client
				m.currentScreen = screenBridgeSetup
				m.setupModel.chosen = nil
				if client != nil {
					return m, loadDevicesCmd(client)
				}
				return m, nil
			}
		}
	}

	switch m.currentScreen {
	case screenBridgeSetup:
		var cmd tea.Cmd
		m.setupModel, cmd = m.setupModel.Update(msg)

		if m.setupModel.IsConnected() {
			m.remoteModel = NewRemoteModel(
				m.setupModel.Client(),
				m.setupModel.ChosenDevice(),
				m.setupModel.GetDebugMode(),
			)
			m.remoteModel.width = m.width
			m.remoteModel.height = m.height
			m.currentScreen = screenRemoteControl
			return m, tea.Batch(cmd, m.remoteModel.Init())
		}

		return m, cmd

	case screenRemoteControl:
		var cmd tea.Cmd
		m.remoteModel, cmd = m.remoteModel.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return successStyle.Render("Bye!") + "\n"
	}

	switch m.currentScreen {
	case screenBridgeSetup:
		return m.setupModel.View()
	case screenRemoteControl:
		return m.remoteModel.View()
	default:
		return "Unknown screen"
	}
}

// StartTUI runs the interactive remote until the user quits
func StartTUI(options Options) error {
	p := tea.NewProgram(
		initialModel(options),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	defer func() {
		if r := recover(); r != nil {
			p.Kill()
		}
	}()

	_, err := p.Run()
	return err
}
