// Package adapter provides adapters for fsplugin integration with external systems.
package adapter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName is the meter and tracer name used by fsplugin.
const InstrumentationName = "github.com/srediag/fsplugin"

// OTel holds the OpenTelemetry instruments shared by the client and the transport.
// A nil *OTel records nothing.
type OTel struct {
	tracer        trace.Tracer
	requests      metric.Int64Counter
	duration      metric.Float64Histogram
	bytesSent     metric.Int64Counter
	bytesReceived metric.Int64Counter
}

// NewOTel creates the instruments. Nil providers fall back to no-op providers.
func NewOTel(mp metric.MeterProvider, tp trace.TracerProvider) (*OTel, error) {
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	meter := mp.Meter(InstrumentationName)

	requests, err := meter.Int64Counter(
		"fsplugin_requests_total",
		metric.WithDescription("Requests sent to the sync engine"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"fsplugin_request_duration_seconds",
		metric.WithDescription("Round trip time of requests to the sync engine"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, err
	}
	bytesSent, err := meter.Int64Counter(
		"fsplugin_transport_sent_bytes",
		metric.WithDescription("Bytes written to the IPC channel"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	bytesReceived, err := meter.Int64Counter(
		"fsplugin_transport_received_bytes",
		metric.WithDescription("Bytes read from the IPC channel"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	return &OTel{
		tracer:        tp.Tracer(InstrumentationName),
		requests:      requests,
		duration:      duration,
		bytesSent:     bytesSent,
		bytesReceived: bytesReceived,
	}, nil
}

// StartSpan starts a client span.
func (o *OTel) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// EndSpan records err on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordRequest records one finished request.
func (o *OTel) RecordRequest(ctx context.Context, op string, d time.Duration, err error) {
	if o == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	)
	o.requests.Add(ctx, 1, attrs)
	o.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordSent records n bytes written.
func (o *OTel) RecordSent(ctx context.Context, n int) {
	if o == nil || n <= 0 {
		return
	}
	o.bytesSent.Add(ctx, int64(n))
}

// RecordReceived records n bytes read.
func (o *OTel) RecordReceived(ctx context.Context, n int) {
	if o == nil || n <= 0 {
		return
	}
	o.bytesReceived.Add(ctx, int64(n))
}
