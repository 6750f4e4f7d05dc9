package backingstore

import (
	"context"
	"testing"
)

func TestDeprioritizeReturnsCopy(t *testing.T) {
	fc := FetchContext{Context: context.Background(), Pid: 42, Priority: PriorityNormal}
	low := fc.Deprioritize()

	if fc.Priority != PriorityNormal {
		t.Fatalf("original FetchContext must be unmodified, got %v", fc.Priority)
	}
	if low.Priority != PriorityLow {
		t.Fatalf("expected deprioritized copy to have PriorityLow")
	}
	if low.Pid != fc.Pid {
		t.Fatalf("Deprioritize must preserve Pid")
	}
}
