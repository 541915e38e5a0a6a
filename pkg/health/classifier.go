package health

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/inspector"
	"github.com/core-tools/hsu-monitor/pkg/logging"
)

const (
	// InvalidProcessMarker is prepended to the impacts of a unit whose pid does not exist.
	InvalidProcessMarker = "INVALID PROCESS ID"
	// NotHealthyMarker is prepended to the impacts of a unit whose process is not running.
	NotHealthyMarker = "NOT HEALTHY"
)

// Thresholds are the resource ceilings of a live process. Zero disables a ceiling.
type Thresholds struct {
	CPUCeilingPercent float64
	OpenFilesCeiling  int
	ThreadCeiling     int
}

// ProcessOutcome is the tagged result of classifying one target.
// Err is set when the target failed in a way that must page someone.
type ProcessOutcome struct {
	Target Target
	Status UnitStatus
	Err    error
}

type Classifier struct {
	thresholds Thresholds
	logger     logging.Logger
}

func NewClassifier(thresholds Thresholds, logger logging.Logger) *Classifier {
	return &Classifier{
		thresholds: thresholds,
		logger:     logger,
	}
}

// Classify turns an inspection, or the error that replaced it, into a color.
// The target's impact slice is never modified.
func (c *Classifier) Classify(target Target, inspection *inspector.Inspection, inspectErr error) ProcessOutcome {
	outcome := ProcessOutcome{Target: target}

	switch {
	case inspectErr != nil && errors.IsNotFoundError(inspectErr):
		c.logger.Warnf("Process id is invalid, unit: %s, pid: %d", target.Unit, target.PID)
		outcome.Status = UnitStatus{Color: Red, Impact: prepend(InvalidProcessMarker, target.Impact)}
		outcome.Err = errors.NewNotFoundError("invalid process id", inspectErr).
			WithContext("unit", string(target.Unit)).
			WithContext("pid", target.PID)
		return outcome

	case inspectErr != nil || inspection == nil || !inspection.Alive:
		c.logger.Errorf("Process is NOT HEALTHY, unit: %s, pid: %d", target.Unit, target.PID)
		outcome.Status = UnitStatus{Color: Red, Impact: prepend(NotHealthyMarker, target.Impact)}
		outcome.Err = errors.NewUnhealthyError("process is not running", inspectErr).
			WithContext("unit", string(target.Unit)).
			WithContext("pid", target.PID)
		return outcome
	}

	if tripped := c.exceeded(inspection.Metric); len(tripped) > 0 {
		c.logger.Warnf("Process is INTENSE, unit: %s, pid: %d, exceeded: %s",
			target.Unit, target.PID, strings.Join(tripped, ", "))
		outcome.Status = UnitStatus{Color: Yellow, Impact: append(clone(target.Impact), FormatMetric(inspection.Metric))}
		return outcome
	}

	c.logger.Infof("Process is HEALTHY, unit: %s, pid: %d", target.Unit, target.PID)
	outcome.Status = UnitStatus{Color: Green, Impact: clone(target.Impact)}
	return outcome
}

// exceeded returns the names of the metrics above their ceiling.
func (c *Classifier) exceeded(metric inspector.Metric) []string {
	var tripped []string
	if c.thresholds.CPUCeilingPercent > 0 && metric.CPUPercent > c.thresholds.CPUCeilingPercent {
		tripped = append(tripped, "cpu")
	}
	if c.thresholds.ThreadCeiling > 0 && metric.Threads > c.thresholds.ThreadCeiling {
		tripped = append(tripped, "threads")
	}
	if c.thresholds.OpenFilesCeiling > 0 && metric.OpenFiles > c.thresholds.OpenFilesCeiling {
		tripped = append(tripped, "open_files")
	}
	return tripped
}

// FormatMetric renders the note appended to a degraded unit's impacts.
func FormatMetric(metric inspector.Metric) string {
	return fmt.Sprintf("cpu: %.1f, threads: %d, open_files: %d", metric.CPUPercent, metric.Threads, metric.OpenFiles)
}

// MergeOutcomes folds the per-pid outcomes of one unit, in the given order.
// The worst color wins, impacts are concatenated and errors are joined.
func MergeOutcomes(outcomes []ProcessOutcome) (UnitStatus, error) {
	merged := UnitStatus{Color: Green}
	collection := errors.NewErrorCollection()
	for _, outcome := range outcomes {
		merged.Color = Worse(merged.Color, outcome.Status.Color)
		merged.Impact = append(merged.Impact, outcome.Status.Impact...)
		collection.Add(outcome.Err)
	}
	return merged, collection.ToError()
}

// ReconciledStatus is forced onto a unit that produced no outcome at all.
func ReconciledStatus(targets []Target) UnitStatus {
	impact := []string{InvalidProcessMarker}
	for _, target := range targets {
		impact = append(impact, target.Impact...)
	}
	return UnitStatus{Color: Red, Impact: impact}
}

func prepend(marker string, impact []string) []string {
	out := make([]string, 0, len(impact)+1)
	out = append(out, marker)
	return append(out, impact...)
}

func clone(impact []string) []string {
	if impact == nil {
		return []string{}
	}
	out := make([]string, len(impact))
	copy(out, impact)
	return out
}
