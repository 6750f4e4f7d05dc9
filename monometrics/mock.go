package monometrics

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockMetricHandle is a recording MetricHandle for use in other
// packages' tests, matching the teacher's common.MockMetricHandle
// (common/mock_metrics_handle.go).
type MockMetricHandle struct {
	mock.Mock
}

func (m *MockMetricHandle) OpsCount(ctx context.Context, inc int64, attrs []Attr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) OpsLatency(ctx context.Context, latency time.Duration, attrs []Attr) {
	m.Called(ctx, latency, attrs)
}

func (m *MockMetricHandle) OpsErrorCount(ctx context.Context, inc int64, attrs []Attr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) BackingStoreRequestCount(ctx context.Context, inc int64, attrs []Attr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) BackingStoreRequestLatency(ctx context.Context, latency time.Duration, attrs []Attr) {
	m.Called(ctx, latency, attrs)
}

func (m *MockMetricHandle) BackingStoreReadCount(ctx context.Context, inc int64, attrs []Attr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) BackingStoreDownloadBytesCount(ctx context.Context, inc int64, attrs []Attr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) ObjectStoreReadCount(ctx context.Context, inc int64, attrs []Attr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) ObjectStoreReadBytesCount(ctx context.Context, inc int64, attrs []Attr) {
	m.Called(ctx, inc, attrs)
}

func (m *MockMetricHandle) ObjectStoreReadLatency(ctx context.Context, latency time.Duration, attrs []Attr) {
	m.Called(ctx, latency, attrs)
}
