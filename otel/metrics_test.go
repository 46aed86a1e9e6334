package otel_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	hostotel "github.com/petal-labs/toolhost/otel"
)

// newTestMeter returns a meter backed by a manual reader for collecting metrics in tests.
func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

// collectMetrics reads all metrics from the reader.
func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

// findMetric searches for a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetrics_RecordRequest(t *testing.T) {
	reader, mp := newTestMeter()
	h, err := hostotel.NewHTTPMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}

	h.RecordRequest(http.MethodPost, "/api/call", http.StatusOK, 15*time.Millisecond)
	h.RecordRequest(http.MethodPost, "/api/call", http.StatusOK, 5*time.Millisecond)
	h.RecordRequest(http.MethodPost, "/api/call", http.StatusNotFound, time.Millisecond)

	rm := collectMetrics(t, reader)

	requests := findMetric(rm, "toolhost.http.requests")
	if requests == nil {
		t.Fatal("toolhost.http.requests metric not found")
	}
	sum, ok := requests.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("toolhost.http.requests type = %T, want Sum[int64]", requests.Data)
	}
	byClass := map[string]int64{}
	for _, dp := range sum.DataPoints {
		class, _ := dp.Attributes.Value(attribute.Key("status_class"))
		byClass[class.AsString()] += dp.Value
	}
	if byClass["2xx"] != 2 || byClass["4xx"] != 1 {
		t.Fatalf("requests by class = %v, want 2xx=2 4xx=1", byClass)
	}

	duration := findMetric(rm, "toolhost.http.duration")
	if duration == nil {
		t.Fatal("toolhost.http.duration metric not found")
	}
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("toolhost.http.duration type = %T, want Histogram[float64]", duration.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Fatalf("histogram count = %d, want 3", count)
	}
}

func TestHTTPMetrics_NilIsSafe(t *testing.T) {
	var h *hostotel.HTTPMetrics
	h.RecordRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
}
