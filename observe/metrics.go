// Package observe holds the OpenTelemetry instruments of the corpus tools.
//
// Components take a *Metrics and fall back to [Nop] when none is given. The
// CLI builds one from [NewManualProvider] so run totals can be read back and
// printed when a command ends; tests use the same provider to assert on
// recorded values.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope of every instrument.
const meterName = "github.com/maastricht-university/emocorpus"

// Instrument names.
const (
	ClipsName        = "emocorpus.clips"
	FramesName       = "emocorpus.frames.written"
	ClipDurationName = "emocorpus.clip.duration"
	MaterializedName = "emocorpus.materialize.clips"
)

// Metrics holds the instruments. Safe for concurrent use.
type Metrics struct {
	// Clips counts ingested clips by attribute.String("status", ...).
	Clips metric.Int64Counter

	// FramesWritten counts frames appended to clip stores.
	FramesWritten metric.Int64Counter

	// ClipDuration tracks wall time per clip, in seconds.
	ClipDuration metric.Float64Histogram

	// Materialized counts clips copied into a corpus by
	// attribute.String("status", ...).
	Materialized metric.Int64Counter
}

// clipBuckets are seconds; a clip takes from a few seconds to minutes
// depending on the aligner.
var clipBuckets = []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Clips, err = m.Int64Counter(ClipsName,
		metric.WithDescription("Clips processed by ingestion, by status."),
	); err != nil {
		return nil, err
	}
	if met.FramesWritten, err = m.Int64Counter(FramesName,
		metric.WithDescription("Frames appended to clip stores."),
	); err != nil {
		return nil, err
	}
	if met.ClipDuration, err = m.Float64Histogram(ClipDurationName,
		metric.WithDescription("Wall time to ingest one clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(clipBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Materialized, err = m.Int64Counter(MaterializedName,
		metric.WithDescription("Clips copied into a materialized corpus, by status."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	nopMetrics     *Metrics
	nopMetricsOnce sync.Once
)

// Nop returns instruments that record nothing.
func Nop() *Metrics {
	nopMetricsOnce.Do(func() {
		var err error
		nopMetrics, err = NewMetrics(noop.NewMeterProvider())
		if err != nil {
			panic("observe: noop metrics: " + err.Error())
		}
	})
	return nopMetrics
}

// Global returns instruments on the global otel MeterProvider, or [Nop] if
// they cannot be created. Until a provider is installed with
// otel.SetMeterProvider they record nothing.
func Global() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return Nop()
	}
	return m
}

// RecordClip counts one ingested clip and its duration.
func (m *Metrics) RecordClip(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.Clips.Add(ctx, 1, attrs)
	m.ClipDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordFrames counts n frames written for clip.
func (m *Metrics) RecordFrames(ctx context.Context, n int) {
	m.FramesWritten.Add(ctx, int64(n))
}

// RecordMaterialized counts one clip copied (status "copied") or skipped.
func (m *Metrics) RecordMaterialized(ctx context.Context, status string) {
	m.Materialized.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
