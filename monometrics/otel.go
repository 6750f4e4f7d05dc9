package monometrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var defaultLatencyBuckets = metric.WithExplicitBucketBoundaries(
	1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100,
	130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000)

// attrSetCache memoizes the metric.MeasurementOption for a given
// attribute slice so hot paths don't allocate an attribute.Set per
// call, the same caching idiom as the teacher's
// common/otel_metrics.go loadOrStoreAttributeOption.
type attrSetCache struct {
	m sync.Map // string key -> metric.MeasurementOption
}

func attrKey(attrs []Attr) string {
	var b []byte
	for _, a := range attrs {
		b = append(b, a.Key...)
		b = append(b, '=')
		b = append(b, a.Value...)
		b = append(b, ';')
	}
	return string(b)
}

func (c *attrSetCache) option(attrs []Attr) metric.MeasurementOption {
	key := attrKey(attrs)
	if v, ok := c.m.Load(key); ok {
		return v.(metric.MeasurementOption)
	}
	kvs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		kvs[i] = attribute.String(a.Key, a.Value)
	}
	opt := metric.WithAttributeSet(attribute.NewSet(kvs...))
	v, _ := c.m.LoadOrStore(key, opt)
	return v.(metric.MeasurementOption)
}

// otelMetrics is the OpenTelemetry-backed MetricHandle.
type otelMetrics struct {
	opsCount      metric.Int64Counter
	opsErrorCount metric.Int64Counter
	opsLatency    metric.Float64Histogram

	backingRequestCount   metric.Int64Counter
	backingRequestLatency metric.Float64Histogram
	backingReadCount      metric.Int64Counter
	backingDownloadBytes  metric.Int64Counter

	objectReadCount      metric.Int64Counter
	objectReadBytesCount metric.Int64Counter
	objectReadLatency    metric.Float64Histogram

	attrs attrSetCache
}

// NewOTel builds a MetricHandle backed by the given meter name,
// registering the fixed set of instruments monofs reports.
func NewOTel(meterName string) (MetricHandle, error) {
	meter := otel.Meter(meterName)

	opsCount, err1 := meter.Int64Counter("fs/ops_count", metric.WithDescription("Number of kernel operations dispatched."))
	opsLatency, err2 := meter.Float64Histogram("fs/ops_latency", metric.WithDescription("Kernel operation latency."), metric.WithUnit("us"), defaultLatencyBuckets)
	opsErrorCount, err3 := meter.Int64Counter("fs/ops_error_count", metric.WithDescription("Number of kernel operations that returned an error."))

	backingRequestCount, err4 := meter.Int64Counter("backingstore/request_count", metric.WithDescription("Number of backing-store requests issued."))
	backingRequestLatency, err5 := meter.Float64Histogram("backingstore/request_latency", metric.WithDescription("Backing-store request latency."), metric.WithUnit("ms"))
	backingReadCount, err6 := meter.Int64Counter("backingstore/read_count", metric.WithDescription("Number of objects fetched from the backing store."))
	backingDownloadBytes, err7 := meter.Int64Counter("backingstore/download_bytes_count", metric.WithDescription("Bytes fetched from the backing store."), metric.WithUnit("By"))

	objectReadCount, err8 := meter.Int64Counter("objectstore/read_count", metric.WithDescription("Number of reads served by the object store."))
	objectReadBytesCount, err9 := meter.Int64Counter("objectstore/read_bytes_count", metric.WithDescription("Bytes served by the object store."), metric.WithUnit("By"))
	objectReadLatency, err10 := meter.Float64Histogram("objectstore/read_latency", metric.WithDescription("Object store read latency."), metric.WithUnit("us"), defaultLatencyBuckets)

	if err := errors.Join(err1, err2, err3, err4, err5, err6, err7, err8, err9, err10); err != nil {
		return nil, err
	}

	return &otelMetrics{
		opsCount:              opsCount,
		opsErrorCount:         opsErrorCount,
		opsLatency:            opsLatency,
		backingRequestCount:   backingRequestCount,
		backingRequestLatency: backingRequestLatency,
		backingReadCount:      backingReadCount,
		backingDownloadBytes:  backingDownloadBytes,
		objectReadCount:       objectReadCount,
		objectReadBytesCount:  objectReadBytesCount,
		objectReadLatency:     objectReadLatency,
	}, nil
}

func (o *otelMetrics) OpsCount(ctx context.Context, inc int64, attrs []Attr) {
	o.opsCount.Add(ctx, inc, o.attrs.option(attrs))
}

func (o *otelMetrics) OpsLatency(ctx context.Context, latency time.Duration, attrs []Attr) {
	o.opsLatency.Record(ctx, float64(latency.Microseconds()), o.attrs.option(attrs))
}

func (o *otelMetrics) OpsErrorCount(ctx context.Context, inc int64, attrs []Attr) {
	o.opsErrorCount.Add(ctx, inc, o.attrs.option(attrs))
}

func (o *otelMetrics) BackingStoreRequestCount(ctx context.Context, inc int64, attrs []Attr) {
	o.backingRequestCount.Add(ctx, inc, o.attrs.option(attrs))
}

func (o *otelMetrics) BackingStoreRequestLatency(ctx context.Context, latency time.Duration, attrs []Attr) {
	o.backingRequestLatency.Record(ctx, float64(latency.Milliseconds()), o.attrs.option(attrs))
}

func (o *otelMetrics) BackingStoreReadCount(ctx context.Context, inc int64, attrs []Attr) {
	o.backingReadCount.Add(ctx, inc, o.attrs.option(attrs))
}

func (o *otelMetrics) BackingStoreDownloadBytesCount(ctx context.Context, inc int64, attrs []Attr) {
	o.backingDownloadBytes.Add(ctx, inc, o.attrs.option(attrs))
}

func (o *otelMetrics) ObjectStoreReadCount(ctx context.Context, inc int64, attrs []Attr) {
	o.objectReadCount.Add(ctx, inc, o.attrs.option(attrs))
}

func (o *otelMetrics) ObjectStoreReadBytesCount(ctx context.Context, inc int64, attrs []Attr) {
	o.objectReadBytesCount.Add(ctx, inc, o.attrs.option(attrs))
}

func (o *otelMetrics) ObjectStoreReadLatency(ctx context.Context, latency time.Duration, attrs []Attr) {
	o.objectReadLatency.Record(ctx, float64(latency.Microseconds()), o.attrs.option(attrs))
}
