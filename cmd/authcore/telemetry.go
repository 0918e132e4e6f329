package main

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const exporterDialTimeout = 10 * time.Second

// telemetry owns the SDK providers behind request spans and the exported
// engine counters.
type telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

func newTelemetry(res *resource.Resource, reader sdkmetric.Reader, spans sdktrace.TracerProviderOption) *telemetry {
	return &telemetry{
		tracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			spans,
		),
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		),
	}
}

// startTelemetry dials the OTLP collector at cfg.Endpoint and installs the
// providers globally. It returns nil when telemetry is disabled.
func startTelemetry(ctx context.Context, cfg telemetryConfig, logger logrus.FieldLogger) (*telemetry, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, oops.Code("TELEMETRY_INIT_FAILED").Wrapf(err, "build resource")
	}

	dialCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spanExporter, err := otlptracegrpc.New(dialCtx, traceOpts...)
	if err != nil {
		return nil, oops.Code("TELEMETRY_INIT_FAILED").With("endpoint", cfg.Endpoint).Wrapf(err, "create trace exporter")
	}
	metricExporter, err := otlpmetricgrpc.New(dialCtx, metricOpts...)
	if err != nil {
		_ = spanExporter.Shutdown(ctx)
		return nil, oops.Code("TELEMETRY_INIT_FAILED").With("endpoint", cfg.Endpoint).Wrapf(err, "create metric exporter")
	}

	tel := newTelemetry(res,
		sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.ExportInterval)),
		sdktrace.WithBatcher(spanExporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)

	otel.SetTracerProvider(tel.tracerProvider)
	otel.SetMeterProvider(tel.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.WithFields(logrus.Fields{
		"endpoint": cfg.Endpoint,
		"interval": cfg.ExportInterval.String(),
	}).Info("telemetry: otlp")
	return tel, nil
}

// Shutdown flushes pending spans and a final metric collection.
func (t *telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return errors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
	)
}
