package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunMode(t *testing.T) {
	tests := []struct {
		name    string
		options []RunModeOption
		want    string
	}{
		{"default", nil, "live"},
		{"debug", []RunModeOption{WithDebug(true)}, "live+debug"},
		{"simulated", []RunModeOption{WithSimulation(true)}, "simulated"},
		{"both", []RunModeOption{WithSimulation(true), WithDebug(true)}, "simulated+debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewRunMode(tt.options...).String())
		})
	}
}
