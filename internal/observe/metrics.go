// Package observe provides application-wide observability primitives for
// voxmorph: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// The audio callback never touches these instruments directly: the engine
// accumulates per-block counts in atomics and a flusher goroutine reports
// them here, so instrument overhead stays off the real-time path.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxmorph metrics.
const meterName = "github.com/voxmorph/voxmorph"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// BlockDuration tracks wall-clock processing time per audio block.
	BlockDuration metric.Float64Histogram

	// BlocksProcessed counts audio blocks run through the effect chain.
	BlocksProcessed metric.Int64Counter

	// BlockErrors counts blocks degraded to silence by a stage failure.
	BlockErrors metric.Int64Counter

	// EngineFailures counts engines that escalated to the error state.
	EngineFailures metric.Int64Counter

	// ProtocolMessages counts control-protocol messages. Use with attributes:
	//   attribute.String("action", ...), attribute.String("status", ...)
	ProtocolMessages metric.Int64Counter

	// ActiveSessions tracks the number of live control sessions.
	ActiveSessions metric.Int64UpDownCounter

	// EnginesRunning tracks the number of engines currently processing.
	EnginesRunning metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// blockBuckets defines histogram bucket boundaries (in seconds) sized for
// per-block budgets: a 512-sample block at 44.1 kHz allows ~11.6 ms.
var blockBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BlockDuration, err = m.Float64Histogram("voxmorph.engine.block.duration",
		metric.WithDescription("Wall-clock processing time per audio block."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(blockBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BlocksProcessed, err = m.Int64Counter("voxmorph.engine.blocks",
		metric.WithDescription("Total audio blocks run through the effect chain."),
	); err != nil {
		return nil, err
	}
	if met.BlockErrors, err = m.Int64Counter("voxmorph.engine.block.errors",
		metric.WithDescription("Total blocks degraded to silence by a stage failure."),
	); err != nil {
		return nil, err
	}
	if met.EngineFailures, err = m.Int64Counter("voxmorph.engine.failures",
		metric.WithDescription("Total engines that escalated to the error state."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolMessages, err = m.Int64Counter("voxmorph.protocol.messages",
		metric.WithDescription("Total control-protocol messages by action and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxmorph.active_sessions",
		metric.WithDescription("Number of live control sessions."),
	); err != nil {
		return nil, err
	}
	if met.EnginesRunning, err = m.Int64UpDownCounter("voxmorph.engines_running",
		metric.WithDescription("Number of engines currently processing audio."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxmorph.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProtocolMessage records one handled control message with the
// standard attribute set.
func (m *Metrics) RecordProtocolMessage(ctx context.Context, action, status string) {
	m.ProtocolMessages.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

// RecordBlocks reports a batch of processed and failed block counts, as
// accumulated off the real-time path by the engine's flusher.
func (m *Metrics) RecordBlocks(ctx context.Context, processed, failed int64) {
	if processed > 0 {
		m.BlocksProcessed.Add(ctx, processed)
	}
	if failed > 0 {
		m.BlockErrors.Add(ctx, failed)
	}
}
