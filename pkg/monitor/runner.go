package monitor

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"
)

// DefaultInterval is the time between runs when none is configured.
const DefaultInterval = 5 * time.Minute

// Run performs a run immediately and then once per configured interval until ctx
// is done, runDuration elapses (when positive) or the process is interrupted.
// Runs never overlap; ticks missed during a long run are coalesced.
func (m *Monitor) Run(ctx context.Context, runDuration time.Duration) error {
	m.logger.Infof("Monitor runner starting, interval: %v, feed: %s", m.config.Monitor.Interval, m.config.Monitor.FeedPath)

	if runDuration > 0 {
		m.logger.Infof("Using RUN DURATION of %v", runDuration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	go func() {
		select {
		case receivedSignal := <-sig:
			m.logger.Infof("Monitor runner received signal: %v", receivedSignal)
			cancelRuns()
		case <-runCtx.Done():
		}
	}()

	interval := m.config.Monitor.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(runCtx); err != nil {
			m.logger.Errorf("Run finished with errors, error: %v", err)
		}

		select {
		case <-runCtx.Done():
			m.logger.Infof("Monitor runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}
