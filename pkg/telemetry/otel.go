package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	tracetype "go.opentelemetry.io/otel/trace"
)

// Options configures Setup
type Options struct {
	ServiceName string
	Version     string
	Writer      io.Writer // span and log records; stderr when nil
}

// Telemetry owns the trace and log providers created by Setup
type Telemetry struct {
	tp *trace.TracerProvider
	lp *sdklog.LoggerProvider
}

var (
	meterOnce     sync.Once
	meterProvider *sdkmetric.MeterProvider
	meterErr      error
)

// InitMetrics installs the process-wide meter provider backed by the
// Prometheus default registry and creates the global instruments.
// Later calls return the first result.
func InitMetrics() error {
	meterOnce.Do(func() {
		exporter, err := prometheus.New()
		if err != nil {
			meterErr = fmt.Errorf("failed to create metric exporter: %w", err)
			return
		}
		meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		otel.SetMeterProvider(meterProvider)

		if err := GetGlobalMetrics().InitMetrics(meterProvider.Meter("risk_calculator")); err != nil {
			meterErr = fmt.Errorf("failed to init metrics: %w", err)
		}
	})
	return meterErr
}

// Setup adds tracing and OTel log export on top of InitMetrics. Spans and
// log records go to opts.Writer so stdout stays command output.
func Setup(opts Options) (*Telemetry, error) {
	if err := InitMetrics(); err != nil {
		return nil, err
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
	)

	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	global.SetLoggerProvider(lp)
	return &Telemetry{tp: tp, lp: lp}, nil
}

// Shutdown flushes pending spans and log records. Metrics stay registered
// for the life of the process.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.tp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("trace provider: %w", err))
	}
	if err := t.lp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("log provider: %w", err))
	}
	return errors.Join(errs...)
}

// GetMeter returns a meter for the given name
func GetMeter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// GetTracer returns a tracer for the given name
func GetTracer(name string) tracetype.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
