package inspector

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/logging"

	"github.com/shirou/gopsutil/v4/process"
)

// DefaultSampleInterval is the CPU sampling window used when none is configured.
const DefaultSampleInterval = 500 * time.Millisecond

// Metric is a single resource reading of one process.
type Metric struct {
	CPUPercent float64
	Threads    int
	OpenFiles  int
}

// Inspection is what the OS process table reports for one pid.
type Inspection struct {
	PID    int32
	Alive  bool
	Status []string
	// Metric is only sampled when Alive is true.
	Metric Metric
}

// Inspector queries the OS for liveness and resource usage of a pid.
type Inspector interface {
	// Inspect returns a not-found DomainError when no process has the given pid.
	Inspect(ctx context.Context, pid int32) (*Inspection, error)
}

type Options struct {
	SampleInterval time.Duration
}

type processInspector struct {
	options Options
	logger  logging.Logger
}

// NewInspector returns an Inspector backed by gopsutil.
func NewInspector(options Options, logger logging.Logger) Inspector {
	if options.SampleInterval <= 0 {
		options.SampleInterval = DefaultSampleInterval
	}
	return &processInspector{
		options: options,
		logger:  logger,
	}
}

func (pi *processInspector) Inspect(ctx context.Context, pid int32) (*Inspection, error) {
	if pid <= 0 {
		return nil, errors.NewNotFoundError("invalid process id", nil).WithContext("pid", pid)
	}

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if stderrors.Is(err, process.ErrorProcessNotRunning) {
			return nil, errors.NewNotFoundError("process not found", err).WithContext("pid", pid)
		}
		return nil, errors.NewProcessError("failed to open process", err).WithContext("pid", pid)
	}

	status, err := proc.StatusWithContext(ctx)
	if err != nil {
		// The process may exit between lookup and status read
		running, runErr := proc.IsRunningWithContext(ctx)
		if runErr == nil && !running {
			return nil, errors.NewNotFoundError("process exited during inspection", err).WithContext("pid", pid)
		}
		return nil, errors.NewProcessError("failed to read process status", err).WithContext("pid", pid)
	}

	inspection := &Inspection{
		PID:    pid,
		Alive:  IsAliveStatus(status),
		Status: status,
	}
	if !inspection.Alive {
		pi.logger.Debugf("Process is not alive, pid: %d, status: %v", pid, status)
		return inspection, nil
	}

	metric, err := pi.sample(ctx, proc)
	if err != nil {
		return nil, err
	}
	inspection.Metric = metric

	pi.logger.Debugf("Process inspected, pid: %d, cpu: %.1f, threads: %d, open_files: %d",
		pid, metric.CPUPercent, metric.Threads, metric.OpenFiles)

	return inspection, nil
}

// sample blocks for the sampling window to average CPU usage.
func (pi *processInspector) sample(ctx context.Context, proc *process.Process) (Metric, error) {
	var metric Metric

	cpu, err := proc.PercentWithContext(ctx, pi.options.SampleInterval)
	if err != nil {
		if ctx.Err() != nil {
			return metric, errors.NewTimeoutError("cpu sampling cancelled", ctx.Err()).WithContext("pid", proc.Pid)
		}
		return metric, errors.NewProcessError("failed to sample cpu usage", err).WithContext("pid", proc.Pid)
	}
	metric.CPUPercent = cpu

	threads, err := proc.NumThreadsWithContext(ctx)
	if err != nil {
		pi.logger.Warnf("Failed to read thread count, pid: %d, error: %v", proc.Pid, err)
	} else {
		metric.Threads = int(threads)
	}

	// Reading descriptors of another user's process usually needs elevated privileges
	files, err := proc.OpenFilesWithContext(ctx)
	if err != nil {
		pi.logger.Warnf("Failed to read open files, pid: %d, error: %v", proc.Pid, err)
	} else {
		metric.OpenFiles = len(files)
	}

	return metric, nil
}

// IsAliveStatus reports whether a gopsutil status list describes a live process.
// Sleeping and idle processes count as alive; zombie, stopped and dead ones do not.
func IsAliveStatus(status []string) bool {
	if len(status) == 0 {
		return false
	}
	for _, s := range status {
		switch s {
		case process.Zombie, process.Stop, "dead":
			return false
		}
	}
	return true
}
