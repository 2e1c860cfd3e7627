// Package tracing wires the OpenTelemetry SDK: a TracerProvider selectable
// across stdout/otlp-grpc/otlp-http/none exporters, plus stdout-backed
// MeterProvider and LoggerProvider, under the service name "epgviewer".
package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ExporterType selects which backend the TracerProvider emits spans to.
type ExporterType string

const (
	ExporterTypeStdout   ExporterType = "stdout"
	ExporterTypeOTLP     ExporterType = "otlp"
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"
	ExporterTypeNone     ExporterType = "none"
)

// SetupOTelSDK bootstraps the OpenTelemetry pipeline. If it does not return
// an error, the caller must invoke the returned shutdown function for
// proper cleanup.
func SetupOTelSDK(ctx context.Context, exporterType ExporterType) (func(context.Context) error, error) {
	fmt.Printf("[tracing] setting up OpenTelemetry with exporter: %s\n", exporterType)
	var shutdownFuncs []func(context.Context) error
	var err error

	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	prop := newPropagator()
	otel.SetTextMapPropagator(prop)

	tracerProvider, err := newTracerProvider(ctx, exporterType)
	if err != nil {
		handleErr(err)
		return shutdown, err
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMeterProvider()
	if err != nil {
		handleErr(err)
		return shutdown, err
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	loggerProvider, err := newLoggerProvider()
	if err != nil {
		handleErr(err)
		return shutdown, err
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return shutdown, err
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newTracerProvider(ctx context.Context, exporterType ExporterType) (*trace.TracerProvider, error) {
	traceExporter, err := newSpanExporter(ctx, exporterType)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("epgviewer"),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
	}

	if traceExporter != nil {
		opts = append(opts, trace.WithBatcher(traceExporter,
			trace.WithBatchTimeout(time.Second)))
	}

	return trace.NewTracerProvider(opts...), nil
}

func newSpanExporter(ctx context.Context, exporterType ExporterType) (trace.SpanExporter, error) {
	switch exporterType {
	case ExporterTypeOTLP:
		return otlptracegrpc.New(ctx)
	case ExporterTypeOTLPHTTP:
		return otlptracehttp.New(ctx)
	case ExporterTypeStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, nil
	}
}

func newMeterProvider() (*metric.MeterProvider, error) {
	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter,
			metric.WithInterval(15*time.Second))),
	), nil
}

func newLoggerProvider() (*log.LoggerProvider, error) {
	logExporter, err := stdoutlog.New()
	if err != nil {
		return nil, err
	}

	return log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(logExporter)),
	), nil
}
