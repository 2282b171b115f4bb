package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestBlockDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.BlockDuration.Record(ctx, 0.0004)
	m.BlockDuration.Record(ctx, 0.0011)

	rm := collect(t, reader)
	met := findMetric(rm, "voxmorph.engine.block.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("metric has no data points")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

func TestRecordBlocks(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBlocks(ctx, 100, 3)
	m.RecordBlocks(ctx, 50, 0)

	rm := collect(t, reader)

	blocks := findMetric(rm, "voxmorph.engine.blocks")
	if blocks == nil {
		t.Fatal("blocks metric not found")
	}
	sum, ok := blocks.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("blocks metric is not a sum")
	}
	if got := sum.DataPoints[0].Value; got != 150 {
		t.Errorf("processed blocks = %d, want 150", got)
	}

	errsMet := findMetric(rm, "voxmorph.engine.block.errors")
	if errsMet == nil {
		t.Fatal("block errors metric not found")
	}
	errSum, ok := errsMet.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("block errors metric is not a sum")
	}
	if got := errSum.DataPoints[0].Value; got != 3 {
		t.Errorf("failed blocks = %d, want 3", got)
	}
}

func TestRecordProtocolMessage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProtocolMessage(ctx, "selectVoice", "ok")
	m.RecordProtocolMessage(ctx, "selectVoice", "ok")
	m.RecordProtocolMessage(ctx, "selectVoice", "error")

	rm := collect(t, reader)
	met := findMetric(rm, "voxmorph.protocol.messages")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}

	// Find the data point with status=ok.
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "status" && kv.Value.AsString() == "ok" {
				if dp.Value != 2 {
					t.Errorf("counter value = %d, want 2", dp.Value)
				}
				return
			}
		}
	}
	t.Error("data point with status=ok not found")
}

func TestActiveSessionsUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "voxmorph.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestAttrHelper(t *testing.T) {
	kv := Attr("action", "start")
	if kv != attribute.String("action", "start") {
		t.Errorf("Attr = %v, want attribute.String equivalent", kv)
	}
}
