package otel

import (
	"sync"
	"testing"
)

func TestPushAndSnapshot(t *testing.T) {
	r := NewRingBuffer(8)
	for i := 0; i < 5; i++ {
		r.Push(Event{Kind: KindPollStart, Count: i})
	}

	snap := r.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("expected 5 events, got %d", len(snap))
	}
	for i, e := range snap {
		if e.Count != i {
			t.Errorf("snap[%d].Count=%d, want %d", i, e.Count, i)
		}
	}
}

func TestWrapAround(t *testing.T) {
	r := NewRingBuffer(4)
	for i := 0; i < 8; i++ {
		r.Push(Event{Kind: KindPollStart, Count: i})
	}

	snap := r.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("expected 4 events, got %d", len(snap))
	}
	// oldest evicted: 4, 5, 6, 7 remain
	for i, e := range snap {
		if want := i + 4; e.Count != want {
			t.Errorf("snap[%d].Count=%d, want %d", i, e.Count, want)
		}
	}
}

func TestLastWrapped(t *testing.T) {
	r := NewRingBuffer(4)
	for i := 0; i < 6; i++ {
		r.Push(Event{Kind: KindPollStart, Count: i})
	}
	last2 := r.Last(2)
	if len(last2) != 2 {
		t.Fatalf("expected 2, got %d", len(last2))
	}
	if last2[0].Count != 4 || last2[1].Count != 5 {
		t.Errorf("expected [4,5], got [%d,%d]", last2[0].Count, last2[1].Count)
	}
}

func TestLastBounds(t *testing.T) {
	r := NewRingBuffer(8)
	r.Push(Event{Kind: KindStartup})
	r.Push(Event{Kind: KindShutdown})

	if got := r.Last(100); len(got) != 2 {
		t.Errorf("Last(100) returned %d events, want 2", len(got))
	}
	if got := r.Last(0); got != nil {
		t.Errorf("Last(0) = %v, want nil", got)
	}
	if got := r.Last(-1); got != nil {
		t.Errorf("Last(-1) = %v, want nil", got)
	}
}

func TestLastAtLeast(t *testing.T) {
	r := NewRingBuffer(8)
	r.Push(Event{Kind: KindPollStart, Level: LevelDebug, Count: 1})
	r.Push(Event{Kind: KindPollError, Level: LevelWarn, Count: 2})
	r.Push(Event{Kind: KindMergeApply, Count: 3}) // no level counts as info
	r.Push(Event{Kind: KindConnError, Level: LevelError, Count: 4})

	warn := r.LastAtLeast(LevelWarn, 10)
	if len(warn) != 2 || warn[0].Count != 2 || warn[1].Count != 4 {
		t.Errorf("unexpected warn+ events: %+v", warn)
	}

	info := r.LastAtLeast(LevelInfo, 2)
	if len(info) != 2 || info[0].Count != 3 || info[1].Count != 4 {
		t.Errorf("expected the two newest info+ events, got %+v", info)
	}
}

func TestStats(t *testing.T) {
	r := NewRingBuffer(16)
	r.Push(Event{Kind: KindPollStart})
	r.Push(Event{Kind: KindPollStart})
	r.Push(Event{Kind: KindPollComplete})
	r.Push(Event{Kind: KindPollError})

	stats := r.Stats()
	if stats[KindPollStart] != 2 {
		t.Errorf("poll.start=%d, want 2", stats[KindPollStart])
	}
	if stats[KindPollComplete] != 1 || stats[KindPollError] != 1 {
		t.Errorf("unexpected stats %v", stats)
	}
}

func TestConcurrentPushSnapshot(t *testing.T) {
	r := NewRingBuffer(256)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Push(Event{Kind: KindPollStart})
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.Snapshot()
				_ = r.Last(10)
				_ = r.Stats()
			}
		}()
	}
	wg.Wait()

	if r.Len() != 256 {
		t.Errorf("expected full buffer, got %d", r.Len())
	}
}

func TestEmptySnapshot(t *testing.T) {
	r := NewRingBuffer(8)
	if snap := r.Snapshot(); snap != nil {
		t.Errorf("expected nil, got %v", snap)
	}
}

func TestDeepCopyExtra(t *testing.T) {
	r := NewRingBuffer(4)
	extra := map[string]any{"key": "original"}
	r.Push(Event{Kind: KindStartup, Extra: extra})

	extra["key"] = "mutated"

	snap := r.Snapshot()
	if snap[0].Extra["key"] != "original" {
		t.Errorf("extra was aliased: got %v, want 'original'", snap[0].Extra["key"])
	}
}

func TestDefaultRingSize(t *testing.T) {
	if r := NewRingBuffer(0); r.Cap() != DefaultRingSize {
		t.Errorf("Cap() = %d, want %d", r.Cap(), DefaultRingSize)
	}
}

func TestRingBufferWithLogger(t *testing.T) {
	r := NewRingBuffer(16)
	l := NewNullLogger()
	l.SetRingBuffer(r)

	l.Emit(Event{Kind: KindStartup, Msg: "hello"})
	l.Emit(Event{Kind: KindShutdown, Msg: "bye"})
	l.Close() // Close waits for drain

	if r.Len() != 2 {
		t.Fatalf("expected 2 events in ring buffer, got %d", r.Len())
	}
	last := r.Last(2)
	if last[0].Kind != KindStartup || last[1].Kind != KindShutdown {
		t.Errorf("unexpected order: %v, %v", last[0].Kind, last[1].Kind)
	}
}
