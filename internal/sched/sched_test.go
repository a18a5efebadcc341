package sched

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManualRunsTasksInDueOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var order []int

	m.After(30*time.Millisecond, func() { order = append(order, 3) })
	m.After(10*time.Millisecond, func() { order = append(order, 1) })
	m.After(20*time.Millisecond, func() { order = append(order, 2) })

	m.Advance(25 * time.Millisecond)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("after 25ms expected [1 2], got %v", order)
	}

	m.Advance(5 * time.Millisecond)
	if len(order) != 3 || order[2] != 3 {
		t.Fatalf("after 30ms expected [1 2 3], got %v", order)
	}
}

func TestManualBoundaryIsInclusive(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	m.After(5000*time.Millisecond, func() { fired = true })

	m.Advance(4999 * time.Millisecond)
	if fired {
		t.Fatal("task fired before due time")
	}
	m.Advance(time.Millisecond)
	if !fired {
		t.Fatal("task did not fire at due time")
	}
}

func TestManualCancel(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	h := m.After(time.Second, func() { fired = true })

	if !h.Cancel() {
		t.Fatal("first Cancel should report true")
	}
	if h.Cancel() {
		t.Fatal("second Cancel should report false")
	}
	m.Advance(2 * time.Second)
	if fired {
		t.Fatal("cancelled task ran")
	}
	if m.Pending() != 0 {
		t.Errorf("expected 0 pending, got %d", m.Pending())
	}
}

func TestManualTaskCanReschedule(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		m.After(time.Second, tick)
	}
	m.After(time.Second, tick)

	m.Advance(3500 * time.Millisecond)
	if count != 3 {
		t.Errorf("expected 3 ticks in 3.5s, got %d", count)
	}
}

func TestSleepReturnsOnContextCancel(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Sleep(ctx, m, time.Hour) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after cancel")
	}
}

func TestSleepRealClock(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), Clock{}, 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Sleep returned early")
	}
}
