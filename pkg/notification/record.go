package notification

import (
	"context"
	"math"
	"os"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/logging"
	"github.com/core-tools/hsu-monitor/pkg/statefile"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const lockRetryDelay = 50 * time.Millisecond

// Record maps each bucket to the Unix time, in seconds, of its last confirmed send.
type Record map[Bucket]float64

// LastSent returns when bucket was last sent, if ever.
func (r Record) LastSent(bucket Bucket) (time.Time, bool) {
	seconds, ok := r[bucket]
	if !ok {
		return time.Time{}, false
	}
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))), true
}

// MarkSent stores now under bucket, keeping every other bucket.
func (r Record) MarkSent(bucket Bucket, now time.Time) {
	r[bucket] = float64(now.UnixNano()) / float64(time.Second)
}

// RecordStore persists the debounce record as a YAML file.
type RecordStore struct {
	path   string
	logger logging.Logger
}

func NewRecordStore(path string, logger logging.Logger) *RecordStore {
	return &RecordStore{
		path:   path,
		logger: logger,
	}
}

func (s *RecordStore) Path() string {
	return s.path
}

// Exists reports whether a record file is present.
func (s *RecordStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Lock takes an exclusive file lock next to the record for a read-modify-write.
func (s *RecordStore) Lock(ctx context.Context) (func(), error) {
	lockPath := statefile.LockFilePath(s.path)
	if err := statefile.EnsureDirectory(lockPath); err != nil {
		return nil, err
	}

	lock := flock.New(lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, errors.NewIOError("failed to lock notification record", err).WithContext("lock_file", lockPath)
	}
	if !locked {
		return nil, errors.NewTimeoutError("notification record is locked", nil).WithContext("lock_file", lockPath)
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warnf("Failed to unlock notification record, lock_file: %s, error: %v", lockPath, err)
		}
	}, nil
}

// Load reads the record. An absent file is an empty record. A corrupt file is
// returned as an empty record together with the error.
func (s *RecordStore) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, errors.NewIOError("failed to read notification record", err).WithContext("path", s.path)
	}

	record := Record{}
	if err := yaml.Unmarshal(data, &record); err != nil {
		return Record{}, errors.NewValidationError("corrupt notification record", err).WithContext("path", s.path)
	}
	if record == nil {
		record = Record{}
	}
	return record, nil
}

// Save replaces the record file atomically.
func (s *RecordStore) Save(record Record) error {
	data, err := yaml.Marshal(record)
	if err != nil {
		return errors.NewInternalError("failed to encode notification record", err)
	}
	return statefile.WriteFileAtomic(s.path, data, 0644)
}

// Delete removes the record file and reports whether one existed.
func (s *RecordStore) Delete() (bool, error) {
	if err := os.Remove(s.path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.NewIOError("failed to delete notification record", err).WithContext("path", s.path)
	}
	return true, nil
}
