package config

import (
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding the file, e.g. HSU_MONITOR_NOTIFICATION_SMTP_PASSWORD.
const EnvPrefix = "HSU_MONITOR"

// SkipScheduleLayout is the time-of-day layout of monitor.skip_schedule.
const SkipScheduleLayout = "15:04"

// MonitorConfig represents the top-level configuration file structure
type MonitorConfig struct {
	Monitor      MonitorOptions      `yaml:"monitor" split_words:"true"`
	Thresholds   ThresholdOptions    `yaml:"thresholds" split_words:"true"`
	Notification NotificationOptions `yaml:"notification" split_words:"true"`
	Render       RenderOptions       `yaml:"render" split_words:"true"`
	Publish      PublishOptions      `yaml:"publish" split_words:"true"`
	Metrics      MetricsOptions      `yaml:"metrics" split_words:"true"`
	Logging      LoggingOptions      `yaml:"logging" split_words:"true"`
}

// MonitorOptions controls one health run and the schedule around it.
type MonitorOptions struct {
	FeedPath       string        `yaml:"feed_path" split_words:"true"`
	PrimaryUnit    string        `yaml:"primary_unit,omitempty" split_words:"true"`
	Interval       time.Duration `yaml:"interval,omitempty" split_words:"true"`
	RunTimeout     time.Duration `yaml:"run_timeout,omitempty" split_words:"true"`
	SampleInterval time.Duration `yaml:"sample_interval,omitempty" split_words:"true"`
	SkipSchedule   string        `yaml:"skip_schedule,omitempty" split_words:"true"`
	StateDirectory string        `yaml:"state_directory,omitempty" split_words:"true"`
	ServiceContext string        `yaml:"service_context,omitempty" split_words:"true"` // "system", "user", "session" or "dev"
}

// ThresholdOptions are the resource ceilings above which a live unit is degraded.
// Zero disables a ceiling.
type ThresholdOptions struct {
	CPUCeilingPercent *float64 `yaml:"cpu_ceiling_percent,omitempty" split_words:"true"` // Pointer to distinguish unset from 0
	OpenFilesCeiling  *int     `yaml:"open_files_ceiling,omitempty" split_words:"true"`  // Pointer to distinguish unset from 0
	ThreadCeiling     int      `yaml:"thread_ceiling,omitempty" split_words:"true"`
}

// CPUCeiling returns the CPU ceiling, zero when unset.
func (o ThresholdOptions) CPUCeiling() float64 {
	if o.CPUCeilingPercent == nil {
		return 0
	}
	return *o.CPUCeilingPercent
}

// OpenFiles returns the open files ceiling, zero when unset.
func (o ThresholdOptions) OpenFiles() int {
	if o.OpenFilesCeiling == nil {
		return 0
	}
	return *o.OpenFilesCeiling
}

// NotificationOptions configures the debounce gate and the SMTP mailer.
type NotificationOptions struct {
	RecordPath string `yaml:"record_path,omitempty" split_words:"true"`
	// SuppressionWindow of zero never suppresses.
	SuppressionWindow *time.Duration `yaml:"suppression_window,omitempty" split_words:"true"` // Pointer to distinguish unset from 0
	SMTPHost     string `yaml:"smtp_host,omitempty" split_words:"true"`
	SMTPPort     int    `yaml:"smtp_port,omitempty" split_words:"true"`
	SMTPUser     string `yaml:"smtp_user,omitempty" split_words:"true"`
	SMTPPassword string `yaml:"smtp_password,omitempty" split_words:"true"`
	Sender       string `yaml:"sender,omitempty" split_words:"true"`
	Recipient    string `yaml:"recipient,omitempty" split_words:"true"`
}

// Window returns the suppression window, zero when unset.
func (o NotificationOptions) Window() time.Duration {
	if o.SuppressionWindow == nil {
		return 0
	}
	return *o.SuppressionWindow
}

// RenderOptions configures the status page.
type RenderOptions struct {
	SystemName string `yaml:"system_name,omitempty" split_words:"true"`
	OutputPath string `yaml:"output_path,omitempty" split_words:"true"`
	Webpage    string `yaml:"webpage,omitempty" split_words:"true"`
}

// PublishOptions configures pushing the status page to a GitHub repository.
// Publishing is disabled while Token is empty.
type PublishOptions struct {
	BaseURL       string        `yaml:"base_url,omitempty" split_words:"true"`
	Owner         string        `yaml:"owner,omitempty" split_words:"true"`
	Repository    string        `yaml:"repository,omitempty" split_words:"true"`
	Branch        string        `yaml:"branch,omitempty" split_words:"true"`
	Path          string        `yaml:"path,omitempty" split_words:"true"`
	Token         string        `yaml:"token,omitempty" split_words:"true"`
	MaxRetries    int           `yaml:"max_retries,omitempty" split_words:"true"`
	RetryInterval time.Duration `yaml:"retry_interval,omitempty" split_words:"true"`
}

// MetricsOptions configures the OpenTelemetry meter provider.
type MetricsOptions struct {
	Enabled  bool          `yaml:"enabled,omitempty" split_words:"true"`
	Exporter string        `yaml:"exporter,omitempty" split_words:"true"` // "stdout" or "none"
	Interval time.Duration `yaml:"interval,omitempty" split_words:"true"`
}

// LoggingOptions configures the zap backend.
type LoggingOptions struct {
	Level     string `yaml:"level,omitempty" split_words:"true"`
	Format    string `yaml:"format,omitempty" split_words:"true"` // "console" or "json"
	Output    string `yaml:"output,omitempty" split_words:"true"` // "stdout", "stderr", "file" or a path
	Retention int    `yaml:"retention,omitempty" split_words:"true"`
}

// LoadConfigFromFile reads the YAML file, applies environment overrides and defaults.
func LoadConfigFromFile(filename string) (*MonitorConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, errors.NewValidationError("failed to parse configuration", err).WithContext("filename", filename)
	}

	return config, nil
}

// ParseConfig parses YAML data, applies environment overrides and defaults.
func ParseConfig(data []byte) (*MonitorConfig, error) {
	var config MonitorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	if err := ApplyEnvironment(&config); err != nil {
		return nil, err
	}

	SetConfigDefaults(&config)

	return &config, nil
}

// ApplyEnvironment overrides fields from HSU_MONITOR_* variables; unset variables leave fields untouched.
func ApplyEnvironment(config *MonitorConfig) error {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return errors.NewValidationError("failed to apply environment overrides", err)
	}
	return nil
}

// SetConfigDefaults fills zero values with defaults.
func SetConfigDefaults(config *MonitorConfig) {
	monitor := &config.Monitor
	if monitor.PrimaryUnit == "" {
		monitor.PrimaryUnit = "jarvis"
	}
	if monitor.Interval == 0 {
		monitor.Interval = 5 * time.Minute
	}
	if monitor.RunTimeout == 0 {
		monitor.RunTimeout = time.Minute
	}
	if monitor.SampleInterval == 0 {
		monitor.SampleInterval = 500 * time.Millisecond
	}
	if monitor.ServiceContext == "" {
		monitor.ServiceContext = "user"
	}

	thresholds := &config.Thresholds
	if thresholds.CPUCeilingPercent == nil {
		ceiling := 50.0
		thresholds.CPUCeilingPercent = &ceiling
	}
	if thresholds.OpenFilesCeiling == nil {
		ceiling := 50
		thresholds.OpenFilesCeiling = &ceiling
	}

	notification := &config.Notification
	if notification.SuppressionWindow == nil {
		window := time.Hour
		notification.SuppressionWindow = &window
	}
	if notification.SMTPHost == "" {
		notification.SMTPHost = "smtp.gmail.com"
	}
	if notification.SMTPPort == 0 {
		notification.SMTPPort = 587
	}
	if notification.Sender == "" {
		notification.Sender = "JarvisMonitor"
	}

	render := &config.Render
	if render.SystemName == "" {
		render.SystemName = "Jarvis"
	}

	publish := &config.Publish
	if publish.BaseURL == "" {
		publish.BaseURL = "https://api.github.com"
	}
	if publish.Branch == "" {
		publish.Branch = "docs"
	}
	if publish.Path == "" {
		publish.Path = "docs/index.html"
	}
	if publish.MaxRetries == 0 {
		publish.MaxRetries = 3
	}
	if publish.RetryInterval == 0 {
		publish.RetryInterval = time.Second
	}

	metrics := &config.Metrics
	if metrics.Exporter == "" {
		metrics.Exporter = "none"
	}
	if metrics.Interval == 0 {
		metrics.Interval = time.Minute
	}

	logging := &config.Logging
	if logging.Level == "" {
		logging.Level = "info"
	}
	if logging.Format == "" {
		logging.Format = "console"
	}
	if logging.Output == "" {
		logging.Output = "stdout"
	}
	if logging.Retention == 0 {
		logging.Retention = 3
	}
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *MonitorConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateMonitorOptions(&config.Monitor); err != nil {
		return errors.NewValidationError("invalid monitor configuration", err)
	}

	if err := validateThresholdOptions(&config.Thresholds); err != nil {
		return errors.NewValidationError("invalid thresholds configuration", err)
	}

	if err := validateNotificationOptions(&config.Notification); err != nil {
		return errors.NewValidationError("invalid notification configuration", err)
	}

	if err := validatePublishOptions(&config.Publish); err != nil {
		return errors.NewValidationError("invalid publish configuration", err)
	}

	switch config.Metrics.Exporter {
	case "stdout", "none":
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported metrics exporter: %s", config.Metrics.Exporter), nil).
			WithContext("supported_exporters", "stdout, none")
	}

	switch config.Logging.Format {
	case "console", "json":
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported log format: %s", config.Logging.Format), nil)
	}

	return nil
}

func validateMonitorOptions(options *MonitorOptions) error {
	if options.FeedPath == "" {
		return errors.NewValidationError("feed path is required", nil)
	}
	if options.Interval <= 0 {
		return errors.NewValidationError("interval must be positive", nil)
	}
	if options.RunTimeout <= 0 {
		return errors.NewValidationError("run timeout must be positive", nil)
	}
	switch options.ServiceContext {
	case "system", "user", "session", "dev":
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported service context: %s", options.ServiceContext), nil).
			WithContext("supported_contexts", "system, user, session, dev")
	}
	if options.SampleInterval <= 0 || options.SampleInterval >= options.RunTimeout {
		return errors.NewValidationError("sample interval must be positive and shorter than run timeout", nil).
			WithContext("sample_interval", options.SampleInterval.String()).
			WithContext("run_timeout", options.RunTimeout.String())
	}
	return nil
}

func validateThresholdOptions(options *ThresholdOptions) error {
	if options.CPUCeiling() < 0 {
		return errors.NewValidationError("cpu ceiling cannot be negative", nil)
	}
	if options.OpenFiles() < 0 {
		return errors.NewValidationError("open files ceiling cannot be negative", nil)
	}
	if options.ThreadCeiling < 0 {
		return errors.NewValidationError("thread ceiling cannot be negative", nil)
	}
	return nil
}

func validateNotificationOptions(options *NotificationOptions) error {
	if options.Window() < 0 {
		return errors.NewValidationError("suppression window cannot be negative", nil)
	}
	if options.SMTPPort <= 0 || options.SMTPPort > 65535 {
		return errors.NewValidationError("SMTP port must be between 1 and 65535", nil)
	}
	return nil
}

func validatePublishOptions(options *PublishOptions) error {
	if options.Token == "" {
		return nil
	}
	if options.Owner == "" || options.Repository == "" {
		return errors.NewValidationError("owner and repository are required when a publish token is set", nil)
	}
	if options.MaxRetries < 0 {
		return errors.NewValidationError("max retries cannot be negative", nil)
	}
	return nil
}

// ParseSkipSchedule validates a skip_schedule value. An empty value disables skipping.
func ParseSkipSchedule(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	parsed, err := time.Parse(SkipScheduleLayout, value)
	if err != nil {
		return "", errors.NewValidationError("invalid skip schedule, expected HH:MM", err).WithContext("skip_schedule", value)
	}
	return parsed.Format(SkipScheduleLayout), nil
}

// ValidateConfigFile validates a configuration file without running the monitor
func ValidateConfigFile(configFile string) error {
	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}

	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	return nil
}
