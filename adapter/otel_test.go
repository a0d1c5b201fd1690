package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestOTelRecords(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	o, err := NewOTel(mp, tp)
	require.NoError(t, err)

	ctx := context.Background()
	o.RecordRequest(ctx, "watch_set", 10*time.Millisecond, nil)
	o.RecordRequest(ctx, "watch_set", 20*time.Millisecond, errors.New("boom"))
	o.RecordSent(ctx, 12)
	o.RecordSent(ctx, 0)
	o.RecordReceived(ctx, 30)

	_, span := o.StartSpan(ctx, "fsplugin.watch_set")
	EndSpan(span, errors.New("boom"))

	data := collect(t, reader)
	requests, ok := data["fsplugin_requests_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range requests.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
	assert.Len(t, requests.DataPoints, 2)

	sent, ok := data["fsplugin_transport_sent_bytes"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sent.DataPoints, 1)
	assert.Equal(t, int64(12), sent.DataPoints[0].Value)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "fsplugin.watch_set", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestNilOTelIsSafe(t *testing.T) {
	var o *OTel
	ctx := context.Background()
	o.RecordRequest(ctx, "ping", time.Millisecond, nil)
	o.RecordSent(ctx, 1)
	o.RecordReceived(ctx, 1)
	got, span := o.StartSpan(ctx, "x")
	assert.Equal(t, ctx, got)
	EndSpan(span, nil)
}

func TestNewOTelDefaults(t *testing.T) {
	o, err := NewOTel(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, o)
	o.RecordRequest(context.Background(), "ping", time.Millisecond, nil)
}
