package observe

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// ManualProvider is an in-process MeterProvider whose values are read on
// demand.
type ManualProvider struct {
	*sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

// NewManualProvider returns a provider backed by a ManualReader.
func NewManualProvider() *ManualProvider {
	reader := sdkmetric.NewManualReader()
	return &ManualProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader:        reader,
	}
}

// Collect reads the current values.
func (p *ManualProvider) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := p.reader.Collect(ctx, &rm)
	return rm, err
}

// Totals flattens every int64 sum into "name" or "name{key=value,...}" keys.
// Histograms are reported as their observation count under "name.count".
func (p *ManualProvider) Totals(ctx context.Context) (map[string]int64, error) {
	rm, err := p.Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name, dp.Attributes.ToSlice())] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name+".count"] += int64(dp.Count)
				}
			}
		}
	}
	return out, nil
}

func seriesKey(name string, attrs []attribute.KeyValue) string {
	if len(attrs) == 0 {
		return name
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, string(a.Key)+"="+a.Value.Emit())
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
