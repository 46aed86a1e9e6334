package otel_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	hostotel "github.com/petal-labs/toolhost/otel"
	"github.com/petal-labs/toolhost/tool"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func TestSetupInstallRoutesObservations(t *testing.T) {
	reader := metric.NewManualReader()
	recorder := tracetest.NewSpanRecorder()

	providers, err := hostotel.Setup(context.Background(), hostotel.Config{
		ServiceName:    "toolhost-test",
		Readers:        []metric.Reader{reader},
		SpanProcessors: []sdktrace.SpanProcessor{recorder},
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	providers.Install()
	t.Cleanup(func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})

	tool.ObserveCall(tool.CallObservation{
		ToolName:   "greet",
		Origin:     tool.OriginNative,
		StatusCode: http.StatusOK,
		Duration:   time.Millisecond,
	})

	rm := collectMetrics(t, reader)
	if findMetric(rm, "toolhost.tool.calls") == nil {
		t.Fatal("toolhost.tool.calls metric not found after Install")
	}
	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "tool.call" {
		t.Fatalf("ended spans = %d, want one tool.call span", len(spans))
	}
	if got := spans[0].Resource().Attributes(); len(got) == 0 {
		t.Fatal("span resource has no attributes, want service.name")
	}
}

func TestSetupWithOTLPEndpoint(t *testing.T) {
	providers, err := hostotel.Setup(context.Background(), hostotel.Config{
		OTLPEndpoint: "127.0.0.1:4318",
		Insecure:     true,
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil {
		t.Fatal("providers not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = providers.Shutdown(ctx)
}

func TestNilProvidersShutdown(t *testing.T) {
	var providers *hostotel.Providers
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
