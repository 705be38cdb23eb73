package internal

// RunMode selects how ECP clients and the bridge behave for one process.
// Simulate answers every device query from canned data and skips all
// network writes, which is what `--test` turns on.
type RunMode struct {
	Debug    bool
	Simulate bool
}

type RunModeOption func(*RunMode)

func WithDebug(debug bool) RunModeOption {
	return func(m *RunMode) {
		m.Debug = debug
	}
}

func WithSimulation(simulate bool) RunModeOption {
	return func(m *RunMode) {
		m.Simulate = simulate
	}
}

// NewRunMode returns a live, non-debug mode with the options applied
func NewRunMode(options ...RunModeOption) *RunMode {
	m := &RunMode{}
	for _, option := range options {
		option(m)
	}
	return m
}

// String names the mode for logs and status output
func (m *RunMode) String() string {
	name := "live"
	if m.Simulate {
		name = "simulated"
	}
	if m.Debug {
		name += "+debug"
	}
	return name
}
