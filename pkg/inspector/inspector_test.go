package inspector

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/logging"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect_CurrentProcess(t *testing.T) {
	inspector := NewInspector(Options{SampleInterval: 50 * time.Millisecond}, logging.Nop())

	inspection, err := inspector.Inspect(context.Background(), int32(os.Getpid()))
	require.NoError(t, err)

	assert.True(t, inspection.Alive)
	assert.Equal(t, int32(os.Getpid()), inspection.PID)
	assert.NotEmpty(t, inspection.Status)
	assert.GreaterOrEqual(t, inspection.Metric.CPUPercent, 0.0)
	assert.Greater(t, inspection.Metric.Threads, 0)
}

func TestInspect_NotFound(t *testing.T) {
	inspector := NewInspector(Options{}, logging.Nop())

	tests := []struct {
		name string
		pid  int32
	}{
		{name: "zero pid", pid: 0},
		{name: "negative pid", pid: -5},
		{name: "nonexistent pid", pid: 2147483600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inspection, err := inspector.Inspect(context.Background(), tt.pid)
			assert.Nil(t, inspection)
			assert.True(t, errors.IsNotFoundError(err), "expected not found, got %v", err)
		})
	}
}

func TestNewInspector_DefaultSampleInterval(t *testing.T) {
	inspector := NewInspector(Options{}, logging.Nop()).(*processInspector)
	assert.Equal(t, DefaultSampleInterval, inspector.options.SampleInterval)
}

func TestIsAliveStatus(t *testing.T) {
	tests := []struct {
		status   []string
		expected bool
	}{
		{status: []string{process.Running}, expected: true},
		{status: []string{process.Sleep}, expected: true},
		{status: []string{process.Idle}, expected: true},
		{status: []string{process.Wait}, expected: true},
		{status: []string{process.Zombie}, expected: false},
		{status: []string{process.Stop}, expected: false},
		{status: []string{"dead"}, expected: false},
		{status: []string{process.Running, process.Zombie}, expected: false},
		{status: nil, expected: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsAliveStatus(tt.status), "status %v", tt.status)
	}
}
