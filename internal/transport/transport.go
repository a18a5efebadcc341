// Package transport connects to the remote item source and turns it into a
// stream of typed events: state changes, snapshots and failures.
//
// Two connectors share one contract. Socket holds a WebSocket open and
// reconnects with backoff; Poller POSTs to the data endpoint on an interval
// with at most one request in flight.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abelbrown/livefeed/internal/config"
	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/otel"
	"github.com/abelbrown/livefeed/internal/sched"
)

// Connector owns one logical connection to the item source.
type Connector interface {
	// Run drives the connection until ctx is cancelled, sending events to out.
	// It never closes out. A cancelled ctx is a normal return (nil error).
	Run(ctx context.Context, out chan<- Event) error
}

// Refresher is implemented by connectors that can fetch on demand.
type Refresher interface {
	Refresh()
}

// State is the connection/load state reported by a connector.
type State int

const (
	// push
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// pull
	StateIdle
	StateLoading
	StateRefreshing
	StateErrored
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateReconnecting: "reconnecting",
	StateIdle:         "idle",
	StateLoading:      "loading",
	StateRefreshing:   "refreshing",
	StateErrored:      "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Resets reports whether entering s restarts first-load semantics.
func (s State) Resets() bool {
	return s == StateDisconnected || s == StateReconnecting
}

// Busy reports whether a connection attempt or request is in flight.
func (s State) Busy() bool {
	switch s {
	case StateConnecting, StateReconnecting, StateLoading, StateRefreshing:
		return true
	}
	return false
}

// Event is one item of a connector's output sequence.
type Event interface {
	isEvent()
}

// StateChanged reports a connection/load state transition.
type StateChanged struct {
	State State
}

// SnapshotReceived carries one full listing.
type SnapshotReceived struct {
	Snapshot feed.Snapshot
	Seq      uint64 // per-run sequence, increasing
}

// Failed reports a transport or parse failure. Cancellations are never sent.
type Failed struct {
	Err error
}

func (StateChanged) isEvent()     {}
func (SnapshotReceived) isEvent() {}
func (Failed) isEvent()           {}

// Kind classifies the failure.
func (f Failed) Kind() ErrorKind { return ErrorKindOf(f.Err) }

// emit sends ev unless ctx ends first. Returns false if ctx ended.
func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Options carries the collaborators shared by both connectors.
type Options struct {
	Scheduler sched.Scheduler
	Logger    *otel.Logger
	Client    *http.Client // pull only; nil builds one from the config timeout
}

// New builds the connector selected by cfg.Transport. source overrides
// cfg.Pull.Source when non-empty; push ignores it.
func New(cfg *config.Config, source string, opts Options) (Connector, error) {
	if opts.Scheduler == nil {
		opts.Scheduler = sched.Clock{}
	}
	switch cfg.Transport {
	case config.TransportPush:
		return NewSocket(SocketConfig{
			BaseURL:         cfg.Push.BaseURL,
			MaxMessageBytes: cfg.Push.MaxMessageBytes,
			Backoff: Backoff{
				Min:    cfg.BackoffMin(),
				Max:    cfg.BackoffMax(),
				Jitter: cfg.Backoff.Jitter,
			},
			Scheduler: opts.Scheduler,
			Logger:    opts.Logger,
		})
	case config.TransportPull:
		if source == "" {
			source = cfg.Pull.Source
		}
		return NewPoller(PollerConfig{
			BaseURL:   cfg.Pull.BaseURL,
			Source:    source,
			Interval:  cfg.PollInterval(),
			Timeout:   cfg.RequestTimeout(),
			Client:    opts.Client,
			Scheduler: opts.Scheduler,
			Logger:    opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// defaultTimeout bounds a poll request when no timeout is configured.
const defaultTimeout = 30 * time.Second
