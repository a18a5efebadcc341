// Package controller owns the live feed state and is the only place it changes.
//
// The Controller sits between a transport connector and the presentation
// layer. Connector events, highlight expiry and user commands all arrive as
// messages on one loop goroutine, which folds snapshots into the Display List
// and publishes an immutable View after every change.
//
// # Architecture
//
//	┌────────────┐  events  ┌────────────┐  View  ┌───────────┐
//	│ Connector  │ ───────> │ Controller │ ─────> │ Publisher │
//	│(push/pull) │          │   (loop)   │        │   (UI)    │
//	└────────────┘          └────────────┘        └───────────┘
//	                              │ arrivals
//	                              v
//	                        ┌──────────┐
//	                        │ Recorder │
//	                        └──────────┘
//
// # Concurrency
//
// Connect, Disconnect, Retarget and Refresh are safe from any goroutine; they
// are serialized into the loop. Current returns the last published View.
// Each connector run carries a generation number and events from an older
// run are dropped, so a superseded connection can never touch the list.
package controller

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/highlight"
	"github.com/abelbrown/livefeed/internal/otel"
	"github.com/abelbrown/livefeed/internal/sched"
	"github.com/abelbrown/livefeed/internal/transport"
)

// ConnectorFactory builds a connector for a source filter.
type ConnectorFactory func(source string) (transport.Connector, error)

// Publisher receives every View the controller publishes. Publish is called
// on the loop goroutine and must not block.
type Publisher interface {
	Publish(View)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(View)

// Publish calls f(v).
func (f PublisherFunc) Publish(v View) { f(v) }

// Recorder persists newly admitted items.
type Recorder interface {
	RecordArrivals(ctx context.Context, items []feed.Item, at time.Time) error
}

// defaultRecordBuffer is the number of arrival batches queued for the Recorder.
const defaultRecordBuffer = 64

// Options configures a Controller.
type Options struct {
	Merge        feed.MergeOptions
	HighlightTTL time.Duration
	Source       string // initial source filter

	Scheduler    sched.Scheduler
	Logger       *otel.Logger
	Publisher    Publisher
	Recorder     Recorder // optional
	RecordBuffer int
}

type runEvent struct {
	gen uint64
	ev  transport.Event
}

type arrivalBatch struct {
	items []feed.Item
	at    time.Time
}

// Controller runs the feed loop. Create with New, then Start.
type Controller struct {
	factory ConnectorFactory
	opts    Options
	log     *otel.Logger

	cmds    chan func(ctx context.Context)
	posts   chan func()
	events  chan runEvent
	records chan arrivalBatch
	stopped chan struct{}

	current atomic.Pointer[View]
	g       *errgroup.Group

	// Owned by the loop goroutine.
	state     feed.State
	decay     *highlight.Decay
	connState transport.State
	err       error
	lastErr   error
	source    string
	gen       uint64
	running   bool
	runCancel context.CancelFunc
	refresher transport.Refresher
	arrivals  int
}

// New creates a Controller. Nothing runs until Start.
func New(factory ConnectorFactory, opts Options) *Controller {
	if opts.Scheduler == nil {
		opts.Scheduler = sched.Clock{}
	}
	if opts.Publisher == nil {
		opts.Publisher = PublisherFunc(func(View) {})
	}
	if opts.RecordBuffer <= 0 {
		opts.RecordBuffer = defaultRecordBuffer
	}
	c := &Controller{
		factory:   factory,
		opts:      opts,
		log:       opts.Logger,
		cmds:      make(chan func(ctx context.Context), 16),
		posts:     make(chan func(), 16),
		events:    make(chan runEvent, 64),
		records:   make(chan arrivalBatch, opts.RecordBuffer),
		stopped:   make(chan struct{}),
		state:     feed.Reset(),
		connState: transport.StateDisconnected,
		source:    opts.Source,
	}
	c.decay = highlight.New(opts.Scheduler, opts.HighlightTTL, c.post)
	c.decay.OnChange(func() {
		c.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindHighlightExpire, Comp: "controller"})
		c.publish()
	})
	v := c.view()
	c.current.Store(&v)
	return c
}

// Start runs the loop, and the recorder if one is configured, until ctx is
// cancelled. Call Wait after cancelling to block until both have exited.
func (c *Controller) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	c.g = g

	g.Go(func() error {
		defer close(c.stopped)
		return c.loop(gctx)
	})
	if c.opts.Recorder != nil {
		g.Go(func() error { return c.record(gctx) })
	}
}

// Wait blocks until every goroutine started by Start has exited.
func (c *Controller) Wait() error {
	if c.g == nil {
		return nil
	}
	return c.g.Wait()
}

// Current returns the most recently published View.
func (c *Controller) Current() View {
	return *c.current.Load()
}

// Connect starts a connector for the current source. No-op when running.
func (c *Controller) Connect() {
	c.do(func(ctx context.Context) {
		if c.running {
			return
		}
		c.startRun(ctx)
	})
}

// Disconnect stops the connector and resets the feed.
func (c *Controller) Disconnect() {
	c.do(func(context.Context) {
		c.stopRun()
		c.reset("disconnect")
		c.connState = transport.StateDisconnected
		c.publish()
	})
}

// Retarget switches to a new source filter: the current connector is
// cancelled, the feed reset, and a fresh connector started.
func (c *Controller) Retarget(source string) {
	c.do(func(ctx context.Context) {
		c.stopRun()
		c.source = source
		c.err, c.lastErr = nil, nil
		c.reset("retarget")
		c.startRun(ctx)
	})
}

// Reconnect restarts the connector for the current source with a fresh feed.
func (c *Controller) Reconnect() {
	c.do(func(ctx context.Context) {
		c.stopRun()
		c.reset("reconnect")
		c.startRun(ctx)
	})
}

// Refresh asks a pull connector for an immediate poll. Ignored for push.
func (c *Controller) Refresh() {
	c.do(func(context.Context) {
		if c.refresher != nil {
			c.refresher.Refresh()
		}
	})
}

// do queues fn for the loop. Dropped once the loop has exited.
func (c *Controller) do(fn func(ctx context.Context)) {
	select {
	case c.cmds <- fn:
	case <-c.stopped:
	}
}

// post moves fn onto the loop. Used as the highlight dispatch func.
func (c *Controller) post(fn func()) {
	select {
	case c.posts <- fn:
	case <-c.stopped:
	}
}

func (c *Controller) loop(ctx context.Context) error {
	c.log.Info(otel.KindStartup, "controller", "loop started")
	defer func() {
		c.stopRun()
		c.decay.Clear()
		c.log.Info(otel.KindShutdown, "controller", "loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-c.cmds:
			fn(ctx)
		case fn := <-c.posts:
			fn()
		case re := <-c.events:
			if re.gen != c.gen {
				continue
			}
			c.handle(re.ev)
		}
	}
}

// startRun builds a connector for c.source and runs it under a fresh
// generation.
func (c *Controller) startRun(ctx context.Context) {
	conn, err := c.factory(c.source)
	if err != nil {
		c.log.Error(otel.KindError, "controller", err)
		c.err, c.lastErr = err, err
		c.connState = transport.StateErrored
		c.publish()
		return
	}

	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(ctx)
	c.runCancel = cancel
	c.running = true
	c.refresher, _ = conn.(transport.Refresher)

	out := make(chan transport.Event, 16)
	c.g.Go(func() error {
		if err := conn.Run(runCtx, out); err != nil {
			c.log.Error(otel.KindConnError, "controller", err)
		}
		return nil
	})
	c.g.Go(func() error {
		c.pump(runCtx, gen, out)
		return nil
	})
}

// pump tags a run's events with its generation and forwards them to the loop.
func (c *Controller) pump(ctx context.Context, gen uint64, out <-chan transport.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-out:
			select {
			case c.events <- runEvent{gen: gen, ev: ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// stopRun cancels the current connector. Its queued events become stale.
func (c *Controller) stopRun() {
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
	c.running = false
	c.refresher = nil
	c.gen++
}

// reset restores first-load semantics and clears highlights.
func (c *Controller) reset(reason string) {
	c.state = feed.Reset()
	c.decay.Clear()
	c.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindMergeReset, Comp: "controller", Msg: reason})
}

func (c *Controller) handle(ev transport.Event) {
	switch ev := ev.(type) {
	case transport.StateChanged:
		c.connState = ev.State
		c.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindConnState, Comp: "controller",
			State: ev.State.String(), Source: c.source})
		if ev.State.Resets() {
			c.reset(ev.State.String())
		}
		c.publish()

	case transport.SnapshotReceived:
		c.apply(ev.Snapshot, ev.Seq)

	case transport.Failed:
		c.fail(ev)
	}
}

// apply merges one snapshot into the feed.
func (c *Controller) apply(snap feed.Snapshot, seq uint64) {
	prev := c.state
	res := feed.Merge(prev, snap, c.opts.Merge)
	c.err = nil

	if !res.Changed {
		c.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindMergeNoop, Comp: "controller",
			Seq: seq, Count: len(snap)})
		c.publish()
		return
	}

	c.state = res.State
	c.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindMergeApply, Comp: "controller",
		Seq: seq, Count: len(res.Added), Extra: map[string]any{"first_load": prev.FirstLoad, "size": len(res.State.List)}})

	admitted := res.State.List
	if !prev.FirstLoad {
		admitted = admitted[:min(len(res.Added), len(admitted))]
		c.arrivals += len(res.Added)
	}
	c.decay.Mark(res.Added)
	c.enqueue(admitted)
	c.publish()
}

// fail applies the error policy: cancellations are dropped, everything else
// is kept in LastErr. Connection errors are shown to the user only while
// nothing has loaded; parse errors never are.
func (c *Controller) fail(f transport.Failed) {
	kind := f.Kind()
	if kind == transport.KindCancelled {
		return
	}
	c.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindConnError, Comp: "controller",
		Err: f.Err.Error(), Msg: kind.String()})

	c.lastErr = f.Err
	if c.state.FirstLoad && kind != transport.KindParse {
		c.err = f.Err
	}
	c.publish()
}

// enqueue hands admitted items to the recorder without blocking the loop.
func (c *Controller) enqueue(items []feed.Item) {
	if c.opts.Recorder == nil || len(items) == 0 {
		return
	}
	batch := arrivalBatch{items: items, at: c.opts.Scheduler.Now()}
	select {
	case c.records <- batch:
	default:
		c.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindJournalError, Comp: "controller",
			Count: len(items), Msg: "recorder queue full, arrivals dropped"})
	}
}

func (c *Controller) record(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-c.records:
			if err := c.opts.Recorder.RecordArrivals(ctx, b.items, b.at); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.log.Error(otel.KindJournalError, "recorder", fmt.Errorf("record %d arrivals: %w", len(b.items), err))
				continue
			}
			c.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindJournalWrite, Comp: "recorder", Count: len(b.items)})
		}
	}
}

func (c *Controller) publish() {
	v := c.view()
	c.current.Store(&v)
	c.opts.Publisher.Publish(v)
}
