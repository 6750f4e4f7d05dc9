package clock

import (
	"testing"
	"time"
)

func TestSystemClockAfterFires(t *testing.T) {
	var c SystemClock
	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("SystemClock.After did not fire in time")
	}
}

func TestLaggedClockAfterIgnoresRequestedDuration(t *testing.T) {
	lc := &LaggedClock{WaitTime: time.Millisecond}
	select {
	case <-lc.After(time.Hour):
	case <-time.After(time.Second):
		t.Fatal("LaggedClock.After did not fire within WaitTime")
	}
}

func TestSimulatedClockAdvanceTimeFiresPending(t *testing.T) {
	start := time.Unix(0, 0)
	sc := NewSimulatedClock(start)

	ch := sc.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before its duration elapsed")
	default:
	}

	sc.AdvanceTime(10 * time.Second)

	select {
	case got := <-ch:
		if !got.Equal(start.Add(10 * time.Second)) {
			t.Fatalf("got %v, want %v", got, start.Add(10*time.Second))
		}
	default:
		t.Fatal("After did not fire once its duration elapsed")
	}
}

func TestSimulatedClockAfterNonPositiveDurationFiresImmediately(t *testing.T) {
	start := time.Unix(100, 0)
	sc := NewSimulatedClock(start)

	ch := sc.After(0)
	select {
	case got := <-ch:
		if !got.Equal(start) {
			t.Fatalf("got %v, want %v", got, start)
		}
	default:
		t.Fatal("expected immediate delivery for non-positive duration")
	}
}

func TestSimulatedClockSetTime(t *testing.T) {
	sc := NewSimulatedClock(time.Unix(0, 0))
	target := time.Unix(1000, 0)
	sc.SetTime(target)

	if !sc.Now().Equal(target) {
		t.Fatalf("got %v, want %v", sc.Now(), target)
	}
}
