package controller

import (
	"time"

	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/transport"
)

// View is an immutable picture of the feed for presentation.
type View struct {
	Items     []feed.Item // newest first; shared, do not modify
	State     transport.State
	FirstLoad bool  // nothing loaded since the last reset
	Err       error // user-visible; only set while nothing has loaded
	LastErr   error // most recent non-cancellation failure
	Source    string
	Arrivals  int // items admitted after a first load, cumulative
	UpdatedAt time.Time

	newIDs map[string]struct{}
}

// IsNew reports whether id is highlighted as a recent arrival.
func (v View) IsNew(id string) bool {
	_, ok := v.newIDs[id]
	return ok
}

// NewCount returns the number of highlighted items.
func (v View) NewCount() int { return len(v.newIDs) }

// Loading reports whether the user is waiting for the first data.
func (v View) Loading() bool {
	return v.FirstLoad && v.Err == nil
}

func (c *Controller) view() View {
	ids := c.decay.IDs()
	newIDs := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		newIDs[id] = struct{}{}
	}
	return View{
		Items:     c.state.List,
		State:     c.connState,
		FirstLoad: c.state.FirstLoad,
		Err:       c.err,
		LastErr:   c.lastErr,
		Source:    c.source,
		Arrivals:  c.arrivals,
		UpdatedAt: c.opts.Scheduler.Now(),
		newIDs:    newIDs,
	}
}
