package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/aggregator"
	"github.com/core-tools/hsu-monitor/pkg/config"
	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/feed"
	"github.com/core-tools/hsu-monitor/pkg/health"
	"github.com/core-tools/hsu-monitor/pkg/inspector"
	"github.com/core-tools/hsu-monitor/pkg/logging"
	"github.com/core-tools/hsu-monitor/pkg/metrics"
	"github.com/core-tools/hsu-monitor/pkg/notification"
	"github.com/core-tools/hsu-monitor/pkg/publish"
	"github.com/core-tools/hsu-monitor/pkg/render"
	"github.com/core-tools/hsu-monitor/pkg/statefile"

	"github.com/google/uuid"
)

// Dependencies are the collaborators of a Monitor. Inspector is required;
// a nil Publisher disables publishing, a nil Recorder records nothing.
type Dependencies struct {
	Inspector inspector.Inspector
	Mailer    notification.Mailer
	Publisher publish.Publisher
	Recorder  *metrics.Recorder
	Clock     func() time.Time
	Location  *time.Location
}

// RunReport describes one run.
type RunReport struct {
	RunID        string
	Skipped      bool
	Status       health.GlobalStatus
	Notification notification.Outcome
	Page         []byte
	Published    bool
	Duration     time.Duration
}

// Monitor runs the feed through the aggregator, the notification gate, the renderer and the publisher.
type Monitor struct {
	config       *config.MonitorConfig
	skipSchedule string
	aggregator   *aggregator.Aggregator
	gate         *notification.Gate
	renderer     *render.Renderer
	publisher    publish.Publisher
	recorder     *metrics.Recorder
	clock        func() time.Time
	location     *time.Location
	logger       logging.Logger
}

func New(cfg *config.MonitorConfig, deps Dependencies, logger logging.Logger) (*Monitor, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}
	if deps.Inspector == nil {
		return nil, errors.NewValidationError("inspector is required", nil)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	skipSchedule, err := config.ParseSkipSchedule(cfg.Monitor.SkipSchedule)
	if err != nil {
		logger.Warnf("Ignoring skip schedule, error: %v", err)
		skipSchedule = ""
	}

	recorder := deps.Recorder
	if recorder == nil {
		provider, err := metrics.NewProvider(metrics.ProviderOptions{})
		if err != nil {
			return nil, err
		}
		if recorder, err = metrics.NewRecorder(provider.Meter()); err != nil {
			return nil, errors.NewInternalError("failed to create metrics recorder", err)
		}
	}

	classifier := health.NewClassifier(health.Thresholds{
		CPUCeilingPercent: cfg.Thresholds.CPUCeiling(),
		OpenFilesCeiling:  cfg.Thresholds.OpenFiles(),
		ThreadCeiling:     cfg.Thresholds.ThreadCeiling,
	}, logging.WithPrefix(logger, "classifier: "))

	agg := aggregator.NewAggregator(deps.Inspector, classifier, aggregator.Options{
		PrimaryUnit: health.UnitName(cfg.Monitor.PrimaryUnit),
		RunTimeout:  cfg.Monitor.RunTimeout,
	}, logging.WithPrefix(logger, "aggregator: "))

	renderer, err := render.NewRenderer(render.Options{
		SystemName: cfg.Render.SystemName,
		Webpage:    cfg.Render.Webpage,
		Location:   deps.Location,
	}, logging.WithPrefix(logger, "render: "))
	if err != nil {
		return nil, err
	}

	store := notification.NewRecordStore(RecordPath(cfg, logger), logging.WithPrefix(logger, "record: "))
	gate := notification.NewGate(store, deps.Mailer, renderer, notification.GateOptions{
		SuppressionWindow: cfg.Notification.Window(),
		Sender:            cfg.Notification.Sender,
		Recipient:         cfg.Notification.Recipient,
	}, logging.WithPrefix(logger, "notification: ")).WithClock(deps.Clock)

	return &Monitor{
		config:       cfg,
		skipSchedule: skipSchedule,
		aggregator:   agg,
		gate:         gate,
		renderer:     renderer,
		publisher:    deps.Publisher,
		recorder:     recorder,
		clock:        deps.Clock,
		location:     deps.Location,
		logger:       logger,
	}, nil
}

// StateFileConfig places state and log files for the configured service context.
// An explicit state directory replaces the context's base directory.
func StateFileConfig(cfg *config.MonitorConfig) statefile.StateFileConfig {
	stateConfig := statefile.GetRecommendedStateFileConfig(cfg.Monitor.ServiceContext, statefile.DefaultAppName)
	if cfg.Monitor.StateDirectory != "" {
		stateConfig.BaseDirectory = cfg.Monitor.StateDirectory
	}
	return stateConfig
}

// RecordPath returns the configured record path, or the default one under the state directory.
func RecordPath(cfg *config.MonitorConfig, logger logging.Logger) string {
	if cfg.Notification.RecordPath != "" {
		return cfg.Notification.RecordPath
	}
	return statefile.NewStateFileManager(StateFileConfig(cfg), logger).NotificationRecordPath()
}

// RunOnce performs one health run. The returned error reports render and publish
// failures; the report is valid whenever it is non-nil.
func (m *Monitor) RunOnce(ctx context.Context) (*RunReport, error) {
	started := m.clock()
	report := &RunReport{RunID: uuid.NewString()}
	logger := logging.WithPrefix(m.logger, fmt.Sprintf("run: %s, ", report.RunID))

	if m.skipSchedule != "" && started.In(m.location).Format(config.SkipScheduleLayout) == m.skipSchedule {
		logger.Infof("Run skipped by schedule, skip_schedule: %s", m.skipSchedule)
		report.Skipped = true
		return report, nil
	}

	logger.Debugf("Run starting, feed: %s", m.config.Monitor.FeedPath)

	report.Status = m.evaluate(ctx, logger)
	logger.Infof("Run evaluated, aggregate: %s, units: %d, notify: %t",
		report.Status.Aggregate, len(report.Status.Units), report.Status.Notify)
	for _, row := range report.Status.RedRows() {
		logger.Warnf("Unit failed, unit: %s, impact: %v", row.Name, row.Impact)
	}

	outcome, err := m.gate.MaybeNotify(ctx, report.Status)
	if err != nil {
		logger.Warnf("Notification incomplete, outcome: %s, error: %v", outcome, err)
	}
	report.Notification = outcome
	m.recorder.RecordNotification(ctx, string(outcome))

	errs := errors.NewErrorCollection()

	now := m.clock()
	page, err := m.renderPage(report.Status, now)
	errs.Add(err)
	report.Page = page

	if m.publisher != nil && page != nil {
		message := "Updated as of " + now.In(m.location).Format(render.TimestampLayout)
		changed, err := m.publisher.Publish(ctx, page, message)
		if err != nil {
			logger.Errorf("Failed to publish status page, error: %v", err)
		}
		m.recorder.RecordPublish(ctx, changed, err)
		errs.Add(err)
		report.Published = changed
	}

	report.Duration = m.clock().Sub(started)
	m.recorder.RecordRun(ctx, report.Status, report.Duration)
	logger.Infof("Run finished, aggregate: %s, notification: %s, published: %t, duration: %v",
		report.Status.Aggregate, report.Notification, report.Published, report.Duration)

	return report, errs.ToError()
}

// evaluate loads the feed and aggregates it; a feed that cannot be used means maintenance.
func (m *Monitor) evaluate(ctx context.Context, logger logging.Logger) health.GlobalStatus {
	maintenance := health.MaintenanceStatusFor(health.UnitName(m.config.Monitor.PrimaryUnit))

	units, err := feed.LoadFeed(m.config.Monitor.FeedPath)
	switch {
	case errors.IsNotFoundError(err):
		logger.Warnf("Feed not found, reporting maintenance, feed: %s", m.config.Monitor.FeedPath)
		return maintenance
	case err != nil:
		logger.Errorf("Failed to load feed, reporting maintenance, error: %v", err)
		return maintenance
	case len(units) == 0:
		logger.Warnf("Feed is empty, reporting maintenance, feed: %s", m.config.Monitor.FeedPath)
		return maintenance
	}

	return m.aggregator.Aggregate(ctx, units)
}

func (m *Monitor) renderPage(global health.GlobalStatus, now time.Time) ([]byte, error) {
	if m.config.Render.OutputPath == "" {
		return m.renderer.RenderPage(global, now)
	}
	return m.renderer.WritePage(m.config.Render.OutputPath, global, now)
}
