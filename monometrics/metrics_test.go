package monometrics

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopSatisfiesInterfaceWithoutPanicking(t *testing.T) {
	var h MetricHandle = NewNoop()
	ctx := context.Background()
	attrs := []Attr{{Key: OpKey, Value: "lookup"}}

	h.OpsCount(ctx, 1, attrs)
	h.OpsLatency(ctx, time.Millisecond, attrs)
	h.OpsErrorCount(ctx, 1, attrs)
	h.BackingStoreRequestCount(ctx, 1, attrs)
	h.BackingStoreRequestLatency(ctx, time.Millisecond, attrs)
	h.BackingStoreReadCount(ctx, 1, attrs)
	h.BackingStoreDownloadBytesCount(ctx, 1024, attrs)
	h.ObjectStoreReadCount(ctx, 1, attrs)
	h.ObjectStoreReadBytesCount(ctx, 1024, attrs)
	h.ObjectStoreReadLatency(ctx, time.Millisecond, attrs)
}

func TestMockRecordsCalls(t *testing.T) {
	m := &MockMetricHandle{}
	attrs := []Attr{{Key: OpKey, Value: "read"}}
	m.On("OpsCount", context.Background(), int64(1), attrs).Return()

	m.OpsCount(context.Background(), 1, attrs)

	m.AssertExpectations(t)
}

func TestJoinShutdownFnJoinsErrors(t *testing.T) {
	e1 := errors.New("one")
	e2 := errors.New("two")
	fn := JoinShutdownFn(
		func(context.Context) error { return e1 },
		nil,
		func(context.Context) error { return e2 },
	)

	err := fn(context.Background())
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected joined error to contain both causes, got %v", err)
	}
}

func TestAttrKeyDeterministic(t *testing.T) {
	a := []Attr{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	b := []Attr{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}

	if attrKey(a) != attrKey(b) {
		t.Fatalf("expected identical attribute slices to produce the same cache key")
	}
}
