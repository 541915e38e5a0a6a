package health

import (
	"testing"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/inspector"
	"github.com/core-tools/hsu-monitor/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultThresholds = Thresholds{CPUCeilingPercent: 50, OpenFilesCeiling: 50}

func alive(metric inspector.Metric) *inspector.Inspection {
	return &inspector.Inspection{PID: 111, Alive: true, Status: []string{"sleep"}, Metric: metric}
}

func TestClassify_DeadOrAbsentIsAlwaysRed(t *testing.T) {
	classifier := NewClassifier(defaultThresholds, logging.Nop())
	target := Target{Unit: "jarvis", PID: 111, Impact: []string{"Speech", "Automation"}}

	// metric values must not matter once the process is gone
	metrics := []inspector.Metric{
		{},
		{CPUPercent: 99, Threads: 500, OpenFiles: 500},
		{CPUPercent: 1, Threads: 2, OpenFiles: 3},
	}

	for _, metric := range metrics {
		dead := &inspector.Inspection{PID: 111, Alive: false, Status: []string{"zombie"}, Metric: metric}
		outcome := classifier.Classify(target, dead, nil)
		assert.Equal(t, Red, outcome.Status.Color)
		assert.Equal(t, []string{NotHealthyMarker, "Speech", "Automation"}, outcome.Status.Impact)
		assert.True(t, errors.IsUnhealthyError(outcome.Err))
	}

	notFound := errors.NewNotFoundError("process not found", nil)
	outcome := classifier.Classify(target, nil, notFound)
	assert.Equal(t, Red, outcome.Status.Color)
	assert.Equal(t, []string{InvalidProcessMarker, "Speech", "Automation"}, outcome.Status.Impact)
	assert.True(t, errors.IsNotFoundError(outcome.Err))

	outcome = classifier.Classify(target, nil, errors.NewProcessError("permission denied", nil))
	assert.Equal(t, Red, outcome.Status.Color)
	assert.Equal(t, NotHealthyMarker, outcome.Status.Impact[0])
	assert.Error(t, outcome.Err)

	assert.Equal(t, []string{"Speech", "Automation"}, target.Impact, "target impacts must not be modified")
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		name       string
		thresholds Thresholds
		metric     inspector.Metric
		expected   Color
	}{
		{name: "all below", thresholds: defaultThresholds, metric: inspector.Metric{CPUPercent: 12.5, Threads: 30, OpenFiles: 10}, expected: Green},
		{name: "at ceiling", thresholds: defaultThresholds, metric: inspector.Metric{CPUPercent: 50, OpenFiles: 50}, expected: Green},
		{name: "cpu above", thresholds: defaultThresholds, metric: inspector.Metric{CPUPercent: 75.25}, expected: Yellow},
		{name: "open files above", thresholds: defaultThresholds, metric: inspector.Metric{OpenFiles: 51}, expected: Yellow},
		{name: "threads ignored when disabled", thresholds: defaultThresholds, metric: inspector.Metric{Threads: 900}, expected: Green},
		{name: "threads above", thresholds: Thresholds{ThreadCeiling: 25}, metric: inspector.Metric{Threads: 26}, expected: Yellow},
		{name: "raised ceiling", thresholds: Thresholds{CPUCeilingPercent: 90}, metric: inspector.Metric{CPUPercent: 75}, expected: Green},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := NewClassifier(tt.thresholds, logging.Nop())
			target := Target{Unit: "jarvis_api", PID: 111, Impact: []string{"Offline communicators"}}

			outcome := classifier.Classify(target, alive(tt.metric), nil)

			assert.Equal(t, tt.expected, outcome.Status.Color)
			assert.NoError(t, outcome.Err)
			if tt.expected == Green {
				assert.Equal(t, target.Impact, outcome.Status.Impact)
			} else {
				require.Len(t, outcome.Status.Impact, 2)
				assert.Equal(t, FormatMetric(tt.metric), outcome.Status.Impact[1])
			}
			assert.Equal(t, []string{"Offline communicators"}, target.Impact)
		})
	}
}

func TestClassify_GreenImpactIsCopied(t *testing.T) {
	classifier := NewClassifier(defaultThresholds, logging.Nop())
	impact := make([]string, 1, 4)
	impact[0] = "Speech"
	target := Target{Unit: "jarvis", PID: 111, Impact: impact}

	outcome := classifier.Classify(target, alive(inspector.Metric{}), nil)
	outcome.Status.Impact[0] = "changed"

	assert.Equal(t, "Speech", impact[0])

	empty := classifier.Classify(Target{Unit: "jarvis", PID: 111}, alive(inspector.Metric{}), nil)
	assert.NotNil(t, empty.Status.Impact)
	assert.Empty(t, empty.Status.Impact)
}

func TestFormatMetric(t *testing.T) {
	assert.Equal(t, "cpu: 63.2, threads: 12, open_files: 4",
		FormatMetric(inspector.Metric{CPUPercent: 63.21, Threads: 12, OpenFiles: 4}))
}

func TestMergeOutcomes(t *testing.T) {
	notFound := errors.NewNotFoundError("invalid process id", nil)

	tests := []struct {
		name           string
		outcomes       []ProcessOutcome
		expectedColor  Color
		expectedImpact []string
		expectErr      bool
	}{
		{
			name: "single green",
			outcomes: []ProcessOutcome{
				{Status: UnitStatus{Color: Green, Impact: []string{"a"}}},
			},
			expectedColor:  Green,
			expectedImpact: []string{"a"},
		},
		{
			name: "worst color wins regardless of position",
			outcomes: []ProcessOutcome{
				{Status: UnitStatus{Color: Red, Impact: []string{InvalidProcessMarker, "a"}}, Err: notFound},
				{Status: UnitStatus{Color: Green, Impact: []string{"b"}}},
				{Status: UnitStatus{Color: Yellow, Impact: []string{"c"}}},
			},
			expectedColor:  Red,
			expectedImpact: []string{InvalidProcessMarker, "a", "b", "c"},
			expectErr:      true,
		},
		{
			name: "yellow over green",
			outcomes: []ProcessOutcome{
				{Status: UnitStatus{Color: Green, Impact: []string{"a"}}},
				{Status: UnitStatus{Color: Yellow, Impact: []string{"b"}}},
			},
			expectedColor:  Yellow,
			expectedImpact: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := MergeOutcomes(tt.outcomes)
			assert.Equal(t, tt.expectedColor, status.Color)
			assert.Equal(t, tt.expectedImpact, status.Impact)
			if tt.expectErr {
				assert.True(t, errors.IsNotFoundError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReconciledStatus(t *testing.T) {
	status := ReconciledStatus([]Target{
		{Unit: "sync", PID: 1, Impact: []string{"Backups"}},
		{Unit: "sync", PID: 2, Impact: []string{"Uploads"}},
	})
	assert.Equal(t, Red, status.Color)
	assert.Equal(t, []string{InvalidProcessMarker, "Backups", "Uploads"}, status.Impact)
}
