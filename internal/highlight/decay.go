// Package highlight tracks which items count as "just arrived".
package highlight

import (
	"time"

	"github.com/abelbrown/livefeed/internal/sched"
)

// DefaultTTL is how long arrivals stay highlighted.
const DefaultTTL = 5 * time.Second

// Decay holds the Newness Set and clears it wholesale ttl after the last Mark.
//
// Decay is not goroutine-safe. The owner calls it from one goroutine and
// supplies a dispatch func that moves the expiry callback onto that same
// goroutine.
type Decay struct {
	sched    sched.Scheduler
	ttl      time.Duration
	dispatch func(func())
	onChange func()

	ids     map[string]struct{}
	order   []string
	pending sched.Handle
	gen     uint64
}

// New creates a Decay. A nil dispatch runs expiry inline on the scheduler's
// goroutine, which is only safe when nothing else touches the Decay.
func New(s sched.Scheduler, ttl time.Duration, dispatch func(func())) *Decay {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &Decay{
		sched:    s,
		ttl:      ttl,
		dispatch: dispatch,
		ids:      map[string]struct{}{},
	}
}

// OnChange registers fn to run after the set is cleared by expiry.
func (d *Decay) OnChange(fn func()) {
	d.onChange = fn
}

// Mark replaces the set with ids and restarts the expiry window.
// An empty ids leaves both the set and the pending expiry alone.
func (d *Decay) Mark(ids []string) {
	if len(ids) == 0 {
		return
	}
	d.cancel()

	d.ids = make(map[string]struct{}, len(ids))
	d.order = append(d.order[:0], ids...)
	for _, id := range ids {
		d.ids[id] = struct{}{}
	}

	d.gen++
	gen := d.gen
	d.pending = d.sched.After(d.ttl, func() {
		d.dispatch(func() { d.expire(gen) })
	})
}

// Clear cancels any pending expiry and empties the set.
func (d *Decay) Clear() {
	d.cancel()
	d.gen++
	d.ids = map[string]struct{}{}
	d.order = d.order[:0]
}

func (d *Decay) has(id string) bool {
	_, ok := d.ids[id]
	return ok
}

// Len returns the number of highlighted ids.
func (d *Decay) Len() int { return len(d.ids) }

// IDs returns a copy of the highlighted ids in arrival order.
func (d *Decay) IDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func (d *Decay) scheduled() bool { return d.pending != nil }

func (d *Decay) cancel() {
	if d.pending != nil {
		d.pending.Cancel()
		d.pending = nil
	}
}

// expire clears the set unless a later Mark or Clear superseded this timer.
func (d *Decay) expire(gen uint64) {
	if gen != d.gen {
		return
	}
	d.pending = nil
	d.ids = map[string]struct{}{}
	d.order = d.order[:0]
	if d.onChange != nil {
		d.onChange()
	}
}
