package metrics

import (
	"context"
	"os"
	"time"

	"github.com/core-tools/hsu-monitor/pkg/errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

type ProviderOptions struct {
	Enabled     bool
	Exporter    string
	Interval    time.Duration
	ServiceName string
}

// Provider owns the meter provider of the process.
type Provider struct {
	meterProvider metric.MeterProvider
	shutdown      func(context.Context) error
	serviceName   string
}

// NewProvider returns a stdout-exporting provider, or a no-op one when metrics are
// disabled or the exporter is "none".
func NewProvider(options ProviderOptions) (*Provider, error) {
	if options.ServiceName == "" {
		options.ServiceName = "hsu-monitor"
	}

	if !options.Enabled || options.Exporter == ExporterNone || options.Exporter == "" {
		return &Provider{
			meterProvider: noop.NewMeterProvider(),
			shutdown:      func(context.Context) error { return nil },
			serviceName:   options.ServiceName,
		}, nil
	}

	if options.Exporter != ExporterStdout {
		return nil, errors.NewConfigurationError("unsupported metrics exporter", nil).WithContext("exporter", options.Exporter)
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
	if err != nil {
		return nil, errors.NewInternalError("failed to create stdout metrics exporter", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if options.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(options.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", options.ServiceName))),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
	)

	return &Provider{
		meterProvider: mp,
		shutdown:      mp.Shutdown,
		serviceName:   options.ServiceName,
	}, nil
}

func (p *Provider) Meter() metric.Meter {
	return p.meterProvider.Meter(p.serviceName)
}

// Shutdown flushes pending metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
