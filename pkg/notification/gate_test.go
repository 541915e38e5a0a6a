package notification

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/health"
	"github.com/core-tools/hsu-monitor/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (f *fakeMailer) Send(ctx context.Context, message Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeMailer) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeRenderer struct{}

func (fakeRenderer) RenderEmail(global health.GlobalStatus, now time.Time) (string, error) {
	return fmt.Sprintf("<p>%s</p>", global.Aggregate), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type gateFixture struct {
	gate   *Gate
	store  *RecordStore
	mailer *fakeMailer
	clock  *fakeClock
}

func newGateFixture(t *testing.T, window time.Duration) *gateFixture {
	t.Helper()
	store := NewRecordStore(filepath.Join(t.TempDir(), "last_notify.yaml"), logging.Nop())
	mailer := &fakeMailer{}
	clock := &fakeClock{now: time.Date(2026, time.October, 17, 9, 30, 0, 0, time.UTC)}
	options := GateOptions{SuppressionWindow: window, Sender: "JarvisMonitor", Recipient: "oncall@example.com"}
	gate := NewGate(store, mailer, fakeRenderer{}, options, logging.Nop()).WithClock(clock.Now)
	return &gateFixture{gate: gate, store: store, mailer: mailer, clock: clock}
}

func statusWith(aggregate health.Aggregate) health.GlobalStatus {
	return health.GlobalStatus{
		Units:     map[health.UnitName]health.UnitStatus{"jarvis": {Color: health.Red}},
		Aggregate: aggregate,
		Notify:    true,
	}
}

func TestMaybeNotify_IdempotentWithinWindow(t *testing.T) {
	f := newGateFixture(t, time.Hour)
	ctx := context.Background()

	outcome, err := f.gate.MaybeNotify(ctx, statusWith(health.AggregateMainDegraded))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	f.clock.Advance(30 * time.Minute)
	outcome, err = f.gate.MaybeNotify(ctx, statusWith(health.AggregateMainDegraded))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, outcome)
	assert.Equal(t, 1, f.mailer.sent())

	f.clock.Advance(31 * time.Minute)
	outcome, err = f.gate.MaybeNotify(ctx, statusWith(health.AggregateMainDegraded))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
	assert.Equal(t, 2, f.mailer.sent())
}

func TestMaybeNotify_DifferentBucketIsNotSuppressed(t *testing.T) {
	f := newGateFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.gate.MaybeNotify(ctx, statusWith(health.AggregateMainDegraded))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	outcome, err := f.gate.MaybeNotify(ctx, statusWith(health.AggregateServiceDisrupted))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	record, err := f.store.Load()
	require.NoError(t, err)
	assert.Len(t, record, 2, "sibling buckets must be kept")
	assert.Contains(t, record, BucketMainDegraded)
	assert.Contains(t, record, BucketServiceDisrupted)
}

func TestMaybeNotify_RecoveryClearsRecord(t *testing.T) {
	f := newGateFixture(t, time.Hour)
	ctx := context.Background()

	for _, aggregate := range []health.Aggregate{health.AggregateHealthy, health.AggregateLimited} {
		t.Run(string(aggregate), func(t *testing.T) {
			_, err := f.gate.MaybeNotify(ctx, statusWith(health.AggregatePartialDegraded))
			require.NoError(t, err)
			require.True(t, f.store.Exists())

			outcome, err := f.gate.MaybeNotify(ctx, health.GlobalStatus{Aggregate: aggregate})
			require.NoError(t, err)
			assert.Equal(t, OutcomeCleared, outcome)
			assert.False(t, f.store.Exists())

			// a regression right after recovery notifies immediately
			before := f.mailer.sent()
			f.clock.Advance(time.Minute)
			outcome, err = f.gate.MaybeNotify(ctx, statusWith(health.AggregatePartialDegraded))
			require.NoError(t, err)
			assert.Equal(t, OutcomeSent, outcome)
			assert.Equal(t, before+1, f.mailer.sent())

			_, err = f.gate.MaybeNotify(ctx, health.GlobalStatus{Aggregate: aggregate})
			require.NoError(t, err)
		})
	}
}

func TestMaybeNotify_HealthyWithoutRecordTouchesNothing(t *testing.T) {
	f := newGateFixture(t, time.Hour)

	outcome, err := f.gate.MaybeNotify(context.Background(), health.GlobalStatus{Aggregate: health.AggregateHealthy})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	entries, err := os.ReadDir(filepath.Dir(f.store.Path()))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, f.mailer.sent())
}

func TestMaybeNotify_SendFailureLeavesNoRecord(t *testing.T) {
	f := newGateFixture(t, time.Hour)
	f.mailer.err = errors.NewNotificationError("smtp rejected", nil)
	ctx := context.Background()

	outcome, err := f.gate.MaybeNotify(ctx, statusWith(health.AggregateServiceDisrupted))
	assert.Equal(t, OutcomeSendFailed, outcome)
	assert.True(t, errors.IsNotificationError(err))
	assert.False(t, f.store.Exists())

	// the next run retries immediately
	f.mailer.err = nil
	f.clock.Advance(time.Minute)
	outcome, err = f.gate.MaybeNotify(ctx, statusWith(health.AggregateServiceDisrupted))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
}

func TestMaybeNotify_MissingConfiguration(t *testing.T) {
	store := NewRecordStore(filepath.Join(t.TempDir(), "last_notify.yaml"), logging.Nop())

	tests := []struct {
		name   string
		mailer Mailer
		opts   GateOptions
	}{
		{name: "no mailer", mailer: nil, opts: GateOptions{Recipient: "oncall@example.com"}},
		{name: "no recipient", mailer: &fakeMailer{}, opts: GateOptions{}},
		{name: "no smtp credentials", mailer: NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25}, logging.Nop()), opts: GateOptions{Recipient: "oncall@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(store, tt.mailer, fakeRenderer{}, tt.opts, logging.Nop())

			outcome, err := gate.MaybeNotify(context.Background(), statusWith(health.AggregateMainDegraded))
			assert.Equal(t, OutcomeSendFailed, outcome)
			assert.True(t, errors.IsConfigurationError(err))
			assert.False(t, store.Exists())
		})
	}
}

func TestMaybeNotify_CorruptRecordNeverSuppresses(t *testing.T) {
	f := newGateFixture(t, time.Hour)
	require.NoError(t, os.WriteFile(f.store.Path(), []byte("main-degraded: [not, a, timestamp"), 0644))

	outcome, err := f.gate.MaybeNotify(context.Background(), statusWith(health.AggregateMainDegraded))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	record, err := f.store.Load()
	require.NoError(t, err)
	assert.Contains(t, record, BucketMainDegraded)
}

func TestMaybeNotify_MaintenanceNotifies(t *testing.T) {
	f := newGateFixture(t, time.Hour)

	outcome, err := f.gate.MaybeNotify(context.Background(), health.MaintenanceStatus())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
	require.Equal(t, 1, f.mailer.sent())

	message := f.mailer.messages[0]
	assert.Equal(t, "Process map unreachable - October 17, 2026 - 09:30 AM UTC", message.Subject)
	assert.Equal(t, "JarvisMonitor", message.Sender)
	assert.Equal(t, "oncall@example.com", message.Recipient)
	assert.Equal(t, "<p>maintenance</p>", message.HTMLBody)
}

func TestMaybeNotify_ZeroWindowNeverSuppresses(t *testing.T) {
	f := newGateFixture(t, 0)

	for i := 0; i < 3; i++ {
		outcome, err := f.gate.MaybeNotify(context.Background(), statusWith(health.AggregatePartialDegraded))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, outcome)
	}
	assert.Equal(t, 3, f.mailer.sent())
}

func TestMaybeNotify_ConcurrentRunsSendOnce(t *testing.T) {
	f := newGateFixture(t, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.gate.MaybeNotify(context.Background(), statusWith(health.AggregateMainDegraded))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.mailer.sent())
}
