package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))

	var nilProvider *MeterProvider
	assert.NotNil(t, nilProvider.Meter("test"))
}

func TestCounterAndHistogram(t *testing.T) {
	reader, provider := newTestMeter(t)
	meter := provider.Meter("test")

	counter, err := NewCounter(meter, "test.counter", "a counter", "1")
	require.NoError(t, err)
	counter.Inc(context.Background())
	counter.Add(context.Background(), 4)

	histogram, err := NewHistogram(meter, HistogramOpts{
		Name:       "test.histogram",
		Unit:       "s",
		Boundaries: []float64{1, 2},
	})
	require.NoError(t, err)
	histogram.RecordDuration(context.Background(), 1500*time.Millisecond)

	metrics := collect(t, reader)

	sum := metrics["test.counter"].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(5), sum.DataPoints[0].Value)

	hist := metrics["test.histogram"].Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, []float64{1, 2}, hist.DataPoints[0].Bounds)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 1e-9)
}

func TestConnectorMetrics(t *testing.T) {
	reader, provider := newTestMeter(t)

	m, err := NewConnectorMetrics(provider.Meter(MeterName))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordInvocation(ctx, "CheckForCustomer", 200, 10*time.Millisecond)
	m.RecordInvocation(ctx, "CheckForCustomer", 200, 20*time.Millisecond)
	m.RecordInvocation(ctx, "CheckForCustomer", 409, 5*time.Millisecond)
	m.RecordItems(ctx, "GetProductMatrixFromQuery", 7)
	m.RecordItems(ctx, "GetProductMatrixFromQuery", 0)
	m.RecordRemoteRequest(ctx, "GET", "crm.example.com", 200, time.Second)

	metrics := collect(t, reader)

	invocations := metrics["connector.function.invocations"].Data.(metricdata.Sum[int64])
	byStatus := map[string]int64{}
	for _, dp := range invocations.DataPoints {
		status, _ := dp.Attributes.Value(AttrStatusCode)
		byStatus[status.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"200": 2, "409": 1}, byStatus)

	items := metrics["connector.function.items"].Data.(metricdata.Sum[int64])
	require.Len(t, items.DataPoints, 1)
	assert.Equal(t, int64(7), items.DataPoints[0].Value)

	remote := metrics["connector.remote.requests"].Data.(metricdata.Sum[int64])
	require.Len(t, remote.DataPoints, 1)
	host, ok := remote.DataPoints[0].Attributes.Value(AttrServerAddress)
	require.True(t, ok)
	assert.Equal(t, "crm.example.com", host.AsString())
	code, _ := remote.DataPoints[0].Attributes.Value(attribute.Key("http.response.status_code"))
	assert.Equal(t, int64(200), code.AsInt64())
}

func TestConnectorMetrics_NilSafe(t *testing.T) {
	var m *ConnectorMetrics
	assert.NotPanics(t, func() {
		m.RecordInvocation(context.Background(), "f", 200, time.Second)
		m.RecordItems(context.Background(), "f", 1)
		m.RecordRemoteRequest(context.Background(), "GET", "h", 200, time.Second)
	})
}
