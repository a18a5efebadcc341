// Package sched provides the cancellable delayed-task primitive used for
// poll intervals, reconnect backoff and highlight decay.
//
// Callbacks run on a goroutine owned by the Scheduler. They must not touch
// state owned by another goroutine directly; post to that goroutine instead.
package sched

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Handle refers to one scheduled task.
type Handle interface {
	// Cancel stops the task if it has not run yet. Returns true if the call
	// prevented the task from running.
	Cancel() bool
}

// Scheduler runs a function once after a delay.
type Scheduler interface {
	After(d time.Duration, fn func()) Handle
	Now() time.Time
}

// Clock is the real Scheduler backed by time.AfterFunc.
type Clock struct{}

// After schedules fn to run after d on its own goroutine.
func (Clock) After(d time.Duration, fn func()) Handle {
	return timerHandle{t: time.AfterFunc(d, fn)}
}

// Now returns the wall clock time.
func (Clock) Now() time.Time { return time.Now() }

type timerHandle struct {
	t *time.Timer
}

func (h timerHandle) Cancel() bool { return h.t.Stop() }

// Sleep blocks for d or until ctx is done, whichever comes first.
// Returns ctx.Err() if the context ended the wait.
func Sleep(ctx context.Context, s Scheduler, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	done := make(chan struct{})
	h := s.After(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.Cancel()
		return ctx.Err()
	}
}

// Manual is a Scheduler driven by Advance. Tasks run synchronously on the
// goroutine calling Advance, in due-time order. Safe for concurrent use.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	m        *Manual
	due      time.Time
	seq      uint64
	fn       func()
	canceled bool
	fired    bool
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the manual clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After registers fn to run once the clock has advanced by d.
func (m *Manual) After(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{m: m, due: m.now.Add(d), seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Pending returns the number of tasks that have neither run nor been cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.canceled && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, running every task that becomes due.
// Tasks scheduled by a running task are honored if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		next.fired = true
		m.mu.Unlock()

		next.fn()
	}
}

func (m *Manual) nextDueLocked(target time.Time) *manualTask {
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.canceled && !t.fired {
			live = append(live, t)
		}
	}
	m.tasks = live
	sort.Slice(m.tasks, func(i, j int) bool {
		if m.tasks[i].due.Equal(m.tasks[j].due) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].due.Before(m.tasks[j].due)
	})
	if len(m.tasks) == 0 || m.tasks[0].due.After(target) {
		return nil
	}
	return m.tasks[0]
}

func (t *manualTask) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.canceled || t.fired {
		return false
	}
	t.canceled = true
	return true
}
