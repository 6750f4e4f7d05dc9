package monometrics

import (
	"context"
	"time"
)

// NewNoop returns a MetricHandle whose instruments discard every
// observation, used when no meter provider has been configured.
func NewNoop() MetricHandle {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) OpsCount(context.Context, int64, []Attr)                   {}
func (noopMetrics) OpsLatency(context.Context, time.Duration, []Attr)         {}
func (noopMetrics) OpsErrorCount(context.Context, int64, []Attr)              {}
func (noopMetrics) BackingStoreRequestCount(context.Context, int64, []Attr)   {}
func (noopMetrics) BackingStoreRequestLatency(context.Context, time.Duration, []Attr) {}
func (noopMetrics) BackingStoreReadCount(context.Context, int64, []Attr)      {}
func (noopMetrics) BackingStoreDownloadBytesCount(context.Context, int64, []Attr) {}
func (noopMetrics) ObjectStoreReadCount(context.Context, int64, []Attr)       {}
func (noopMetrics) ObjectStoreReadBytesCount(context.Context, int64, []Attr)  {}
func (noopMetrics) ObjectStoreReadLatency(context.Context, time.Duration, []Attr) {}
