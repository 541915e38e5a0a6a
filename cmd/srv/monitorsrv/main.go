package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/config"
	"github.com/core-tools/hsu-monitor/pkg/inspector"
	"github.com/core-tools/hsu-monitor/pkg/logging"
	"github.com/core-tools/hsu-monitor/pkg/metrics"
	"github.com/core-tools/hsu-monitor/pkg/monitor"
	"github.com/core-tools/hsu-monitor/pkg/notification"
	"github.com/core-tools/hsu-monitor/pkg/publish"
	"github.com/core-tools/hsu-monitor/pkg/statefile"

	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"path to the monitor configuration file" required:"true"`
	Once        bool   `long:"once" description:"perform a single run and exit"`
	RunDuration int    `long:"run-duration" description:"stop after this many seconds (0 runs until interrupted)"`
	Validate    bool   `long:"validate" description:"validate the configuration file and exit"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if opts.Validate {
		if err := config.ValidateConfigFile(opts.Config); err != nil {
			fmt.Printf("Configuration is invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration is valid: %s\n", opts.Config)
		return
	}

	cfg, err := config.LoadConfigFromFile(opts.Config)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	states := statefile.NewStateFileManager(monitor.StateFileConfig(cfg), logging.Nop())

	zapLogger, err := newZapLogger(cfg.Logging, states)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	logger := logging.NewLogger(logPrefix("hsu-monitor"), logging.ZapLogFuncs(zapLogger.Sugar()))
	logger.Infof("opts: %+v", opts)
	logger.Infof("Configuration loaded successfully from %s", opts.Config)

	if cfg.Logging.Output == "file" {
		states = statefile.NewStateFileManager(monitor.StateFileConfig(cfg), logging.WithPrefix(logger, "statefile: "))
		if _, err := states.CleanupLogs(time.Now(), cfg.Logging.Retention); err != nil {
			logger.Warnf("Failed to clean up expired logs, error: %v", err)
		}
	}

	if err := run(cfg, opts, logger); err != nil {
		logger.Errorf("Monitor failed: %v", err)
		os.Exit(1)
	}
}

func newZapLogger(options config.LoggingOptions, states *statefile.StateFileManager) (*zap.Logger, error) {
	zapConfig := logging.DefaultZapConfig()
	zapConfig.Level = options.Level
	zapConfig.Format = options.Format
	zapConfig.Output = options.Output
	if options.Output == "file" {
		zapConfig.Output = states.DailyLogFilePath(time.Now())
	}
	return logging.NewZapLogger(zapConfig)
}

func run(cfg *config.MonitorConfig, opts flagOptions, logger logging.Logger) error {
	provider, err := metrics.NewProvider(metrics.ProviderOptions{
		Enabled:  cfg.Metrics.Enabled,
		Exporter: cfg.Metrics.Exporter,
		Interval: cfg.Metrics.Interval,
	})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warnf("Failed to flush metrics, error: %v", err)
		}
	}()

	recorder, err := metrics.NewRecorder(provider.Meter())
	if err != nil {
		return err
	}

	deps := monitor.Dependencies{
		Inspector: inspector.NewInspector(inspector.Options{
			SampleInterval: cfg.Monitor.SampleInterval,
		}, logging.WithPrefix(logger, "inspector: ")),
		Recorder: recorder,
	}

	if cfg.Notification.SMTPUser != "" && cfg.Notification.SMTPPassword != "" {
		deps.Mailer = notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.Notification.SMTPHost,
			Port:     cfg.Notification.SMTPPort,
			User:     cfg.Notification.SMTPUser,
			Password: cfg.Notification.SMTPPassword,
		}, logging.WithPrefix(logger, "mailer: "))
	} else {
		logger.Warnf("SMTP credentials are not configured, notifications will not be sent")
	}

	if cfg.Publish.Token != "" {
		deps.Publisher = publish.NewGitHubPublisher(publish.Options{
			BaseURL:       cfg.Publish.BaseURL,
			Owner:         cfg.Publish.Owner,
			Repository:    cfg.Publish.Repository,
			Branch:        cfg.Publish.Branch,
			Path:          cfg.Publish.Path,
			Token:         cfg.Publish.Token,
			MaxRetries:    cfg.Publish.MaxRetries,
			RetryInterval: cfg.Publish.RetryInterval,
		}, logging.WithPrefix(logger, "publish: "))
	} else {
		logger.Infof("Publish token is not configured, status page will not be published")
	}

	m, err := monitor.New(cfg, deps, logger)
	if err != nil {
		return err
	}

	if opts.Once {
		report, err := m.RunOnce(context.Background())
		if report != nil {
			logger.Infof("Single run finished, aggregate: %s, notification: %s", report.Status.Aggregate, report.Notification)
		}
		return err
	}

	return m.Run(context.Background(), time.Duration(opts.RunDuration)*time.Second)
}
