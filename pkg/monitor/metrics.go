package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/TheEntropyCollective/logtree/pkg/event"
	"github.com/TheEntropyCollective/logtree/pkg/sink"
)

// Metrics holds the server counters as OpenTelemetry instruments behind a
// manual reader, collected on demand by the /api/metrics handler. No
// exporter daemon is needed.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	events   metric.Int64Counter
	messages metric.Int64Counter
	streams  metric.Int64UpDownCounter
}

// NewMetrics creates the instrument set.
func NewMetrics() (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("logtree")

	m := &Metrics{provider: provider, reader: reader}
	var err error
	if m.events, err = meter.Int64Counter("logtree.events.consumed",
		metric.WithDescription("stream events delivered to sinks")); err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}
	if m.messages, err = meter.Int64Counter("logtree.messages.consumed",
		metric.WithDescription("log message entries delivered to sinks")); err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}
	if m.streams, err = meter.Int64UpDownCounter("logtree.streams.active",
		metric.WithDescription("currently open producer streams")); err != nil {
		return nil, fmt.Errorf("failed to create streams counter: %w", err)
	}
	return m, nil
}

// Collect gathers the current values.
func (m *Metrics) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := m.reader.Collect(ctx, &rm)
	return rm, err
}

// Shutdown flushes and releases the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// Instrument wraps a sink factory so every stream and event is counted.
func Instrument(next sink.Factory, metrics *Metrics) sink.Factory {
	return &instrumentedFactory{next: next, metrics: metrics}
}

type instrumentedFactory struct {
	next    sink.Factory
	metrics *Metrics
}

func (f *instrumentedFactory) MakeStream() sink.Sink {
	return &instrumentedSink{next: f.next.MakeStream(), metrics: f.metrics}
}

func (f *instrumentedFactory) Update()      { f.next.Update() }
func (f *instrumentedFactory) Close() error { return f.next.Close() }

type instrumentedSink struct {
	next    sink.Sink
	metrics *Metrics
}

func (s *instrumentedSink) Consume(ev event.Event) {
	ctx := context.Background()
	s.metrics.events.Add(ctx, 1)
	switch ev.(type) {
	case *event.BeginInfo:
		s.metrics.streams.Add(ctx, 1)
	case *event.FinishInfo:
		s.metrics.streams.Add(ctx, -1)
	case *event.MessageInfo:
		s.metrics.messages.Add(ctx, 1)
	}
	s.next.Consume(ev)
}
