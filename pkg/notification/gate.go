package notification

import (
	"context"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/health"
	"github.com/core-tools/hsu-monitor/pkg/logging"
)

// DefaultSuppressionWindow is the minimum time between two sends of one bucket.
const DefaultSuppressionWindow = time.Hour

// Outcome is the terminal state of one gate evaluation.
type Outcome string

const (
	OutcomeSkipped    Outcome = "skipped"     // healthy, nothing to clear
	OutcomeCleared    Outcome = "cleared"     // healthy, record deleted
	OutcomeSuppressed Outcome = "suppressed"  // bucket sent within the window
	OutcomeSent       Outcome = "sent"        // sent and recorded
	OutcomeSendFailed Outcome = "send-failed" // not sent, record untouched
)

// EmailRenderer builds the HTML body of a notification.
type EmailRenderer interface {
	RenderEmail(global health.GlobalStatus, now time.Time) (string, error)
}

type GateOptions struct {
	SuppressionWindow time.Duration
	Sender            string
	Recipient         string
}

// Gate decides whether a run pages someone and keeps the debounce record.
type Gate struct {
	store    *RecordStore
	mailer   Mailer
	renderer EmailRenderer
	options  GateOptions
	clock    func() time.Time
	logger   logging.Logger
}

func NewGate(store *RecordStore, mailer Mailer, renderer EmailRenderer, options GateOptions, logger logging.Logger) *Gate {
	if options.SuppressionWindow < 0 {
		options.SuppressionWindow = DefaultSuppressionWindow
	}
	return &Gate{
		store:    store,
		mailer:   mailer,
		renderer: renderer,
		options:  options,
		clock:    time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// MaybeNotify evaluates one run. A returned error is informational: the outcome
// is always valid and the run should continue.
func (g *Gate) MaybeNotify(ctx context.Context, global health.GlobalStatus) (Outcome, error) {
	now := g.clock()

	bucket, pages := BucketFor(global.Aggregate)
	if !pages {
		return g.clear(ctx)
	}

	unlock := g.lock(ctx)
	defer unlock()

	record, err := g.store.Load()
	if err != nil {
		g.logger.Warnf("Ignoring unreadable notification record, path: %s, error: %v", g.store.Path(), err)
		record = Record{}
	}

	if last, ok := record.LastSent(bucket); ok && now.Sub(last) < g.options.SuppressionWindow {
		g.logger.Infof("Notification suppressed, bucket: %s, last_sent: %s, window: %v",
			bucket, last.Format(time.RFC3339), g.options.SuppressionWindow)
		return OutcomeSuppressed, nil
	}

	if g.mailer == nil || g.options.Recipient == "" {
		err := errors.NewConfigurationError("mail recipient or credentials are not configured", nil).
			WithContext("bucket", string(bucket))
		g.logger.Errorf("Notification not sent, bucket: %s, error: %v", bucket, err)
		return OutcomeSendFailed, err
	}

	body, err := g.renderer.RenderEmail(global, now)
	if err != nil {
		g.logger.Errorf("Failed to render notification, bucket: %s, error: %v", bucket, err)
		return OutcomeSendFailed, err
	}

	message := Message{
		Subject:   Subject(bucket, now),
		HTMLBody:  body,
		Sender:    g.options.Sender,
		Recipient: g.options.Recipient,
	}
	if err := g.mailer.Send(ctx, message); err != nil {
		g.logger.Errorf("Failed to send notification, bucket: %s, recipient: %s, error: %v", bucket, message.Recipient, err)
		return OutcomeSendFailed, err
	}

	record.MarkSent(bucket, now)
	if err := g.store.Save(record); err != nil {
		g.logger.Errorf("Notification sent but not recorded, bucket: %s, error: %v", bucket, err)
		return OutcomeSent, err
	}

	g.logger.Infof("Notification sent, bucket: %s, subject: %s", bucket, message.Subject)
	return OutcomeSent, nil
}

func (g *Gate) clear(ctx context.Context) (Outcome, error) {
	if !g.store.Exists() {
		return OutcomeSkipped, nil
	}

	unlock := g.lock(ctx)
	defer unlock()

	deleted, err := g.store.Delete()
	if err != nil {
		g.logger.Errorf("Failed to clear notification record, path: %s, error: %v", g.store.Path(), err)
		return OutcomeSkipped, err
	}
	if !deleted {
		return OutcomeSkipped, nil
	}

	g.logger.Infof("Notification record cleared, path: %s", g.store.Path())
	return OutcomeCleared, nil
}

// lock returns a no-op unlock when the lock cannot be taken; the update then proceeds unlocked.
func (g *Gate) lock(ctx context.Context) func() {
	unlock, err := g.store.Lock(ctx)
	if err != nil {
		g.logger.Warnf("Proceeding without record lock, path: %s, error: %v", g.store.Path(), err)
		return func() {}
	}
	return unlock
}
