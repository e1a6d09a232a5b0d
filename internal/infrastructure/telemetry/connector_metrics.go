package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of connector metrics.
const MeterName = "erp-connector"

// ConnectorMetrics records function invocations and remote requests.
type ConnectorMetrics struct {
	invocations     *Counter
	invocationTime  *Histogram
	items           *Counter
	remoteRequests  *Counter
	remoteDurations *Histogram
}

// NewConnectorMetrics creates the connector instruments on meter.
func NewConnectorMetrics(meter metric.Meter) (*ConnectorMetrics, error) {
	invocations, err := NewCounter(meter, "connector.function.invocations",
		"Number of connector function invocations by resulting status", "{invocation}")
	if err != nil {
		return nil, err
	}
	invocationTime, err := NewHistogram(meter, HistogramOpts{
		Name:        "connector.function.duration",
		Description: "Duration of connector function invocations",
		Unit:        "s",
		Boundaries:  RemoteDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	items, err := NewCounter(meter, "connector.function.items",
		"Number of documents emitted by query functions", "{item}")
	if err != nil {
		return nil, err
	}
	remoteRequests, err := NewCounter(meter, "connector.remote.requests",
		"Number of requests sent to the remote platform", "{request}")
	if err != nil {
		return nil, err
	}
	remoteDurations, err := NewHistogram(meter, HistogramOpts{
		Name:        "connector.remote.duration",
		Description: "Duration of requests sent to the remote platform",
		Unit:        "s",
		Boundaries:  RemoteDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &ConnectorMetrics{
		invocations:     invocations,
		invocationTime:  invocationTime,
		items:           items,
		remoteRequests:  remoteRequests,
		remoteDurations: remoteDurations,
	}, nil
}

// RecordInvocation records one finished function invocation.
func (m *ConnectorMetrics) RecordInvocation(ctx context.Context, function string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrFunction.String(function), AttrStatusCode.String(strconv.Itoa(statusCode))}
	m.invocations.Inc(ctx, attrs...)
	m.invocationTime.RecordDuration(ctx, elapsed, attrs...)
}

// RecordItems records the number of documents emitted by a query function.
func (m *ConnectorMetrics) RecordItems(ctx context.Context, function string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.items.Add(ctx, int64(count), AttrFunction.String(function))
}

// RecordRemoteRequest records one completed remote request.
func (m *ConnectorMetrics) RecordRemoteRequest(ctx context.Context, method, host string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrHTTPMethod.String(method),
		AttrServerAddress.String(host),
		AttrHTTPStatusCode.Int(statusCode),
	}
	m.remoteRequests.Inc(ctx, attrs...)
	m.remoteDurations.RecordDuration(ctx, elapsed, attrs...)
}
