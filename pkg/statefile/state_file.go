package statefile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"
	"github.com/core-tools/hsu-monitor/pkg/logging"
)

// Default application name for HSU Monitor
const DefaultAppName = "hsu-monitor"

const (
	notificationRecordName = "last_notify.yaml"
	lockSuffix             = ".lock"
	logFileLayout          = "02-01-2006"
)

// StateFileConfig holds configuration for state file placement (debounce record, logs)
type StateFileConfig struct {
	// Base directory for state files. If empty, uses OS-appropriate default
	BaseDirectory string

	ServiceContext ServiceContext

	// Application name for subdirectory creation
	AppName string

	UseSubdirectory bool
}

// ServiceContext defines the context in which the monitor runs
type ServiceContext string

const (
	SystemService  ServiceContext = "system"
	UserService    ServiceContext = "user"
	SessionService ServiceContext = "session"
)

// StateFileManager resolves where the monitor keeps its durable files.
type StateFileManager struct {
	config StateFileConfig
	logger logging.Logger
}

func NewStateFileManager(config StateFileConfig, logger logging.Logger) *StateFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}

	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}

	return &StateFileManager{
		config: config,
		logger: logger,
	}
}

// StateDirectory returns the directory holding the notification record.
func (m *StateFileManager) StateDirectory() string {
	baseDir := m.getBaseDirectory()
	if m.config.UseSubdirectory {
		baseDir = filepath.Join(baseDir, m.config.AppName)
	}
	return baseDir
}

// NotificationRecordPath returns the default path of the debounce record.
func (m *StateFileManager) NotificationRecordPath() string {
	return filepath.Join(m.StateDirectory(), notificationRecordName)
}

// LockFilePath returns the lock file guarding the given state file.
func LockFilePath(stateFile string) string {
	return stateFile + lockSuffix
}

// LogDirectory returns the directory for monitor log files.
func (m *StateFileManager) LogDirectory() string {
	if m.config.BaseDirectory != "" {
		return filepath.Join(m.config.BaseDirectory, "logs")
	}
	baseDir := m.getLogBaseDirectory()
	if m.config.UseSubdirectory {
		return filepath.Join(baseDir, m.config.AppName)
	}
	return baseDir
}

// DailyLogFilePath returns the log file for the given day, e.g. hsu-monitor_17-10-2026.log.
func (m *StateFileManager) DailyLogFilePath(day time.Time) string {
	name := fmt.Sprintf("%s_%s.log", m.config.AppName, day.Format(logFileLayout))
	return filepath.Join(m.LogDirectory(), name)
}

// CleanupLogs removes daily log files older than retention days and returns how many were removed.
func (m *StateFileManager) CleanupLogs(now time.Time, retention int) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	keep := make(map[string]bool, retention)
	for i := 0; i < retention; i++ {
		keep[filepath.Base(m.DailyLogFilePath(now.AddDate(0, 0, -i)))] = true
	}

	dir := m.LogDirectory()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.NewIOError("failed to list log directory", err).WithContext("directory", dir)
	}

	prefix := m.config.AppName + "_"
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") || keep[name] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			m.logger.Warnf("Failed to remove expired log file, path: %s, error: %v", name, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		m.logger.Infof("Removed expired log files, directory: %s, count: %d", dir, removed)
	}
	return removed, nil
}

func (m *StateFileManager) getBaseDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}

	switch m.config.ServiceContext {
	case SystemService:
		return m.getSystemStateDirectory()
	case SessionService:
		return m.getSessionStateDirectory()
	default:
		return m.getUserStateDirectory()
	}
}

func (m *StateFileManager) getSystemStateDirectory() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return programData
	default:
		// Debounce state must survive reboots, so /run is not an option
		return "/var/lib"
	}
}

func (m *StateFileManager) getUserStateDirectory() string {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
				localAppData = filepath.Join(userProfile, "AppData", "Local")
			} else {
				localAppData = "C:\\Users\\Default\\AppData\\Local"
			}
		}
		return localAppData

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, "Library", "Application Support")

	default:
		if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
			return stateHome
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, ".local", "state")
	}
}

func (m *StateFileManager) getSessionStateDirectory() string {
	if runtime.GOOS == "linux" {
		sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
		if _, err := os.Stat(sessionDir); err == nil {
			return sessionDir
		}
	}
	return os.TempDir()
}

func (m *StateFileManager) getLogBaseDirectory() string {
	switch m.config.ServiceContext {
	case SystemService:
		if runtime.GOOS == "windows" {
			return filepath.Join(m.getSystemStateDirectory(), "logs")
		}
		return "/var/log"
	case SessionService:
		return filepath.Join(os.TempDir(), "logs")
	default:
		if runtime.GOOS == "darwin" {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				return filepath.Join(homeDir, "Library", "Logs")
			}
		}
		return filepath.Join(m.getUserStateDirectory(), "logs")
	}
}

// EnsureDirectory creates the parent directory of path if needed and checks it is writable.
func EnsureDirectory(path string) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to access state directory", err).WithContext("directory", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create state directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("state path parent is not a directory", nil).WithContext("path", dir)
	}

	testFile, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		return errors.NewIOError("state directory is not writable", err).WithContext("directory", dir)
	}
	testFile.Close()
	os.Remove(testFile.Name())

	return nil
}

// WriteFileAtomic writes data to a temp file in the same directory and renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := EnsureDirectory(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err != nil {
		return errors.NewIOError("failed to create temporary state file", err).WithContext("path", path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIOError("failed to write temporary state file", err).WithContext("path", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("failed to close temporary state file", err).WithContext("path", tmpName)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("failed to set state file permissions", err).WithContext("path", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("failed to replace state file", err).WithContext("path", path)
	}
	return nil
}

// GetRecommendedStateFileConfig returns state file configuration for a deployment scenario
func GetRecommendedStateFileConfig(scenario string, appName string) StateFileConfig {
	if appName == "" {
		appName = DefaultAppName
	}

	switch strings.ToLower(scenario) {
	case "system", "daemon", "service":
		return StateFileConfig{ServiceContext: SystemService, AppName: appName, UseSubdirectory: true}
	case "session", "desktop":
		return StateFileConfig{ServiceContext: SessionService, AppName: appName}
	case "development", "dev", "test":
		return StateFileConfig{
			BaseDirectory:  filepath.Join(os.TempDir(), appName+"-dev"),
			ServiceContext: UserService,
			AppName:        appName,
		}
	default:
		return StateFileConfig{ServiceContext: UserService, AppName: appName, UseSubdirectory: true}
	}
}
