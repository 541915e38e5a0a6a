package aggregator

import (
	"context"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/feed"
	"github.com/core-tools/hsu-monitor/pkg/health"
	"github.com/core-tools/hsu-monitor/pkg/inspector"
	"github.com/core-tools/hsu-monitor/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// DefaultRunTimeout bounds one aggregation when no timeout is configured.
const DefaultRunTimeout = time.Minute

type Options struct {
	PrimaryUnit health.UnitName
	// RunTimeout is the deadline after which unfinished units are reconciled as failed.
	RunTimeout time.Duration
	// MaxWorkers caps concurrent classifications. Zero means twice the number of units.
	MaxWorkers int
}

// Aggregator classifies every unit of a feed concurrently and reduces the results.
type Aggregator struct {
	inspector  inspector.Inspector
	classifier *health.Classifier
	options    Options
	logger     logging.Logger
}

func NewAggregator(insp inspector.Inspector, classifier *health.Classifier, options Options, logger logging.Logger) *Aggregator {
	if options.RunTimeout <= 0 {
		options.RunTimeout = DefaultRunTimeout
	}
	return &Aggregator{
		inspector:  insp,
		classifier: classifier,
		options:    options,
		logger:     logger,
	}
}

// Aggregate runs one classification task per pid and returns the run-wide status.
// An empty feed yields the maintenance status without classification.
func (a *Aggregator) Aggregate(ctx context.Context, units []feed.Unit) health.GlobalStatus {
	if len(units) == 0 {
		a.logger.Warnf("Feed has no units, reporting maintenance")
		return health.MaintenanceStatusFor(a.options.PrimaryUnit)
	}

	runCtx, cancel := context.WithTimeout(ctx, a.options.RunTimeout)
	defer cancel()

	var targets []health.Target
	for _, unit := range units {
		targets = append(targets, unit.Targets()...)
	}

	limit := a.options.MaxWorkers
	if limit <= 0 {
		limit = 2 * len(units)
	}

	a.logger.Infof("Starting classification, units: %d, processes: %d, workers: %d, timeout: %v",
		len(units), len(targets), limit, a.options.RunTimeout)

	// Sized so that no task ever blocks on send, even after the collector gave up
	results := make(chan health.ProcessOutcome, len(targets))
	done := make(chan struct{})

	var g errgroup.Group
	g.SetLimit(limit)
	go func() {
		defer close(done)
		for _, target := range targets {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				a.runTask(runCtx, target, results)
				return nil
			})
		}
		_ = g.Wait()
	}()

	outcomes := a.collect(runCtx, results, done, len(targets))
	if len(outcomes) < len(targets) {
		a.logger.Warnf("Classification incomplete, expected: %d, received: %d", len(targets), len(outcomes))
	}

	return a.Reconcile(units, outcomes)
}

func (a *Aggregator) runTask(ctx context.Context, target health.Target, results chan<- health.ProcessOutcome) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Errorf("Classification task panicked, unit: %s, pid: %d, panic: %v", target.Unit, target.PID, r)
		}
	}()

	if ctx.Err() != nil {
		return
	}

	if target.PID <= 0 {
		results <- a.classifier.Classify(target, nil, errors.NewNotFoundError("invalid process id", nil).
			WithContext("unit", string(target.Unit)))
		return
	}

	inspection, err := a.inspector.Inspect(ctx, target.PID)
	if err != nil && ctx.Err() != nil && !errors.IsNotFoundError(err) {
		// Interrupted by the run deadline, left to reconciliation
		a.logger.Warnf("Inspection interrupted by run deadline, unit: %s, pid: %d", target.Unit, target.PID)
		return
	}

	results <- a.classifier.Classify(target, inspection, err)
}

// collect is the only reader of results. It returns once every target reported,
// all tasks finished, or the deadline passed.
func (a *Aggregator) collect(ctx context.Context, results <-chan health.ProcessOutcome, done <-chan struct{}, expected int) []health.ProcessOutcome {
	outcomes := make([]health.ProcessOutcome, 0, expected)
	for len(outcomes) < expected {
		select {
		case outcome := <-results:
			outcomes = append(outcomes, outcome)
		case <-done:
			for {
				select {
				case outcome := <-results:
					outcomes = append(outcomes, outcome)
				default:
					return outcomes
				}
			}
		case <-ctx.Done():
			a.logger.Errorf("Run deadline exceeded, error: %v", ctx.Err())
			return outcomes
		}
	}
	return outcomes
}

type targetKey struct {
	unit  health.UnitName
	index int
}

// Reconcile merges outcomes into one status per configured unit. Targets without an
// outcome are forced to red with the invalid process marker and set Notify, so every
// unit of the feed ends with exactly one status.
func (a *Aggregator) Reconcile(units []feed.Unit, outcomes []health.ProcessOutcome) health.GlobalStatus {
	byTarget := make(map[targetKey]health.ProcessOutcome, len(outcomes))
	for _, outcome := range outcomes {
		byTarget[targetKey{unit: outcome.Target.Unit, index: outcome.Target.Index}] = outcome
	}

	global := health.GlobalStatus{Units: make(map[health.UnitName]health.UnitStatus, len(units))}
	for _, unit := range units {
		targets := unit.Targets()
		if len(targets) == 0 {
			a.logger.Errorf("Unit has no process ids, unit: %s", unit.Name)
			global.Units[unit.Name] = health.ReconciledStatus(nil)
			global.Notify = true
			continue
		}

		merged := make([]health.ProcessOutcome, 0, len(targets))
		for _, target := range targets {
			outcome, ok := byTarget[targetKey{unit: target.Unit, index: target.Index}]
			if !ok {
				a.logger.Errorf("No classification outcome, forcing failed, unit: %s, pid: %d", target.Unit, target.PID)
				outcome = health.ProcessOutcome{
					Target: target,
					Status: health.ReconciledStatus([]health.Target{target}),
					Err: errors.NewInternalError("classification produced no outcome", nil).
						WithContext("unit", string(target.Unit)).
						WithContext("pid", target.PID),
				}
			}
			merged = append(merged, outcome)
		}

		status, err := health.MergeOutcomes(merged)
		if err != nil {
			a.logger.Errorf("Unit classification failed, unit: %s, error: %v", unit.Name, err)
			global.Notify = true
		}
		global.Units[unit.Name] = status
	}

	global.Aggregate = health.DeriveAggregate(global.Units, a.options.PrimaryUnit)
	a.logger.Infof("Status aggregated, units: %d, aggregate: %s, notify: %t", len(global.Units), global.Aggregate, global.Notify)

	return global
}
