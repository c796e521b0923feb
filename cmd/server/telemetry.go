package main

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/imattdu/orbitrace/config"
	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/exporter"
	"github.com/imattdu/orbitrace/tracex"
)

const metricInterval = 15 * time.Second

// telemetry tracer、batch processor 和 meter provider 的生命周期
type telemetry struct {
	tracer *tracex.Tracer
	batch  *tracex.BatchProcessor // exporter 为 none 时为 nil
	meter  *sdkmetric.MeterProvider
}

func newTelemetry(ctx context.Context, cfg *config.Config) (*telemetry, error) {
	sampler, err := cfg.Trace.NewSampler()
	if err != nil {
		return nil, err
	}
	format, err := cfg.Trace.TextFormat()
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	exp, err := newExporter(ctx, cfg)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	t := &telemetry{meter: mp}
	opts := []tracex.Option{tracex.WithSampler(sampler), tracex.WithTextFormat(format)}
	if exp != nil {
		t.batch = tracex.NewBatchProcessor(exp,
			tracex.WithBatchSize(cfg.Trace.BatchSize),
			tracex.WithQueueSize(cfg.Trace.QueueSize),
			tracex.WithExportInterval(cfg.Trace.ExportInterval),
			tracex.WithExportTimeout(cfg.Exporter.Timeout),
			tracex.WithMeterProvider(mp))
		opts = append(opts, tracex.WithProcessor(t.batch))
	}
	t.tracer = tracex.NewTracer(opts...)
	return t, nil
}

// shutdown 先把剩余 span 导出，再关 meter provider
func (t *telemetry) shutdown(ctx context.Context) error {
	return errors.Join(t.tracer.Shutdown(ctx), t.meter.Shutdown(ctx))
}

func newExporter(ctx context.Context, cfg *config.Config) (tracex.Exporter, error) {
	ec := cfg.Exporter
	switch ec.Kind {
	case config.ExporterLog:
		return exporter.NewLogExporter(nil), nil
	case config.ExporterOTLP:
		return exporter.NewOTLPHTTPExporter(ctx, exporter.OTLPHTTPConfig{
			Endpoint:    ec.Endpoint,
			URLPath:     ec.URLPath,
			Insecure:    ec.Insecure,
			Timeout:     ec.Timeout,
			ServiceName: cfg.Trace.ServiceName,
		})
	case config.ExporterHTTP:
		return exporter.NewHTTPExporter(exporter.HTTPConfig{
			URL:         ec.Endpoint,
			Path:        ec.URLPath,
			ServiceName: cfg.Trace.ServiceName,
			Timeout:     ec.Timeout,
			MaxAttempts: ec.MaxAttempts,
		})
	case config.ExporterNone:
		return nil, nil
	default:
		return nil, errorx.NewConfig(errorx.ErrInvalidConfig,
			errorx.WithComponent(errorx.ComponentExporter),
			errorx.WithMessagef("unknown exporter kind %q", ec.Kind))
	}
}

// newMeterProvider otlp 时周期推送到 collector，其余情况只在进程内计数
func newMeterProvider(ctx context.Context, cfg *config.Config) (*sdkmetric.MeterProvider, error) {
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.Trace.ServiceName))
	if cfg.Exporter.Kind != config.ExporterOTLP {
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Exporter.Endpoint)}
	if cfg.Exporter.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrExport,
			errorx.WithComponent(errorx.ComponentExporter),
			errorx.WithMessage("create otlp metric exporter failed"))
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	), nil
}
