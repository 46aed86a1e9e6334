// Package otel provides OpenTelemetry integration for tool calls and the
// HTTP transport.
package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petal-labs/toolhost/tool"
)

const instrumentationName = "github.com/petal-labs/toolhost"

// Config selects where telemetry goes.
type Config struct {
	ServiceName string
	// OTLPEndpoint is the host:port of an OTLP/HTTP trace collector. Empty
	// keeps spans in-process only.
	OTLPEndpoint string
	Insecure     bool
	// Readers are attached to the meter provider, e.g. a manual reader in tests.
	Readers []metric.Reader
	// SpanProcessors are attached to the tracer provider in addition to the
	// OTLP exporter.
	SpanProcessors []sdktrace.SpanProcessor
}

// Providers holds the SDK providers and the instruments built from them.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	Calls          *CallObserver
	HTTP           *HTTPMetrics
}

// Setup builds tracer and meter providers and the toolhost instruments.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "toolhost"
	}
	res := resource.NewSchemaless(attribute.String("service.name", service))

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("otel: create otlp exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	for _, sp := range cfg.SpanProcessors {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(sp))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	meterOpts := []metric.Option{metric.WithResource(res)}
	for _, reader := range cfg.Readers {
		meterOpts = append(meterOpts, metric.WithReader(reader))
	}
	mp := metric.NewMeterProvider(meterOpts...)

	meter := mp.Meter(instrumentationName)
	calls, err := NewCallObserver(meter, tp.Tracer(instrumentationName))
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	httpMetrics, err := NewHTTPMetrics(meter)
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx), mp.Shutdown(ctx))
	}

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		Calls:          calls,
		HTTP:           httpMetrics,
	}, nil
}

// Install registers the providers globally and routes tool call
// observations to the call observer.
func (p *Providers) Install() {
	otelapi.SetTracerProvider(p.TracerProvider)
	otelapi.SetMeterProvider(p.MeterProvider)
	tool.SetObserver(p.Calls)
}

// Shutdown flushes and stops both providers and detaches the call observer.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	tool.SetObserver(nil)
	return errors.Join(
		p.TracerProvider.Shutdown(ctx),
		p.MeterProvider.Shutdown(ctx),
	)
}
