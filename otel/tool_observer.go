package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolhost/tool"
)

// CallObserver records tool call outcomes into OpenTelemetry.
type CallObserver struct {
	tracer trace.Tracer

	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewCallObserver creates a call observer bound to the provided meter/tracer.
// A nil tracer disables spans.
func NewCallObserver(meter metric.Meter, tracer trace.Tracer) (*CallObserver, error) {
	calls, err := meter.Int64Counter(
		"toolhost.tool.calls",
		metric.WithDescription("Number of tool calls"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"toolhost.tool.failures",
		metric.WithDescription("Number of tool calls that ended with an error code"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"toolhost.tool.latency",
		metric.WithDescription("Tool call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &CallObserver{
		tracer:   tracer,
		calls:    calls,
		failures: failures,
		latency:  latency,
	}, nil
}

// ObserveCall records one call result.
func (o *CallObserver) ObserveCall(observation tool.CallObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.String("origin", observation.Origin),
		attribute.Int("status_code", observation.StatusCode),
		attribute.Bool("success", observation.Success()),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.calls.Add(ctx, 1, options)
	o.latency.Record(ctx, observation.Duration.Seconds(), options)
	if observation.ErrorCode != "" {
		o.failures.Add(ctx, 1, options)
	}

	if o.tracer == nil {
		return
	}
	end := time.Now()
	spanAttrs := attrs
	if observation.RequestID != "" {
		spanAttrs = append(spanAttrs, attribute.String("request_id", observation.RequestID))
	}
	_, span := o.tracer.Start(ctx, "tool.call",
		trace.WithTimestamp(end.Add(-observation.Duration)),
		trace.WithAttributes(spanAttrs...),
	)
	if observation.ErrorCode != "" || !observation.Success() {
		span.SetStatus(codes.Error, observation.ErrorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

var _ tool.Observer = (*CallObserver)(nil)
