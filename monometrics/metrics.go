// Package monometrics defines the metric surface monofs instruments
// itself with, and an OpenTelemetry-backed implementation with a
// no-op fallback for when no meter provider is configured.
//
// Grounded on the teacher's common/telemetry.go, common/otel_metrics.go
// and common/noop_metrics.go: the same three-interface split (kernel
// operations, backing-store requests, local-tier reads) generalized
// from GCS/file-cache naming to monofs's backing-store/object-store
// naming, using the same OpenTelemetry metric API.
package monometrics

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ShutdownFn releases resources held by a MetricHandle, e.g. flushing
// a meter provider.
type ShutdownFn func(ctx context.Context) error

// JoinShutdownFn combines several shutdown functions into one that
// runs all of them and joins their errors.
func JoinShutdownFn(fns ...ShutdownFn) ShutdownFn {
	return func(ctx context.Context) error {
		var err error
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			err = errors.Join(err, fn(ctx))
		}
		return err
	}
}

// Attr is a single metric attribute key/value pair.
type Attr struct {
	Key, Value string
}

func (a Attr) String() string {
	return fmt.Sprintf("%s=%s", a.Key, a.Value)
}

// OpsMetricHandle instruments kernel-channel operation dispatch.
type OpsMetricHandle interface {
	OpsCount(ctx context.Context, inc int64, attrs []Attr)
	OpsLatency(ctx context.Context, latency time.Duration, attrs []Attr)
	OpsErrorCount(ctx context.Context, inc int64, attrs []Attr)
}

// BackingStoreMetricHandle instruments requests to the backing store
// (spec.md §4.1), the monofs analogue of the teacher's GCS calls.
type BackingStoreMetricHandle interface {
	BackingStoreRequestCount(ctx context.Context, inc int64, attrs []Attr)
	BackingStoreRequestLatency(ctx context.Context, latency time.Duration, attrs []Attr)
	BackingStoreReadCount(ctx context.Context, inc int64, attrs []Attr)
	BackingStoreDownloadBytesCount(ctx context.Context, inc int64, attrs []Attr)
}

// ObjectStoreMetricHandle instruments reads served out of the object
// store's in-memory and local-store tiers (spec.md §4.3).
type ObjectStoreMetricHandle interface {
	ObjectStoreReadCount(ctx context.Context, inc int64, attrs []Attr)
	ObjectStoreReadBytesCount(ctx context.Context, inc int64, attrs []Attr)
	ObjectStoreReadLatency(ctx context.Context, latency time.Duration, attrs []Attr)
}

// MetricHandle is the full metric surface a mount instruments itself
// with.
type MetricHandle interface {
	OpsMetricHandle
	BackingStoreMetricHandle
	ObjectStoreMetricHandle
}

// Attribute keys shared across instruments.
const (
	OpKey       = "fs_op"
	ErrCategory = "fs_error_category"
	TierKey     = "tier" // "memory", "local", "backing"
	MethodKey   = "backing_method"
)
