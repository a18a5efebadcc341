package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/otel"
	"github.com/abelbrown/livefeed/internal/sched"
	"github.com/google/uuid"
)

const (
	dataPath  = "/api/data"
	userAgent = "livefeed/1.0"

	// maxBodyBytes bounds a single poll response.
	maxBodyBytes = 32 << 20
)

// PollerConfig configures a Poller.
type PollerConfig struct {
	BaseURL  string
	Source   string // sent as {"url": Source}
	Interval time.Duration
	Timeout  time.Duration // per request; zero uses defaultTimeout

	Client    *http.Client
	Scheduler sched.Scheduler
	Logger    *otel.Logger
}

// Poller fetches full snapshots from <base>/api/data on an interval.
// At most one request is in flight; a newer request supersedes the old one.
type Poller struct {
	endpoint string
	source   string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	sched    sched.Scheduler
	log      *otel.Logger

	refresh chan struct{}

	// fetch performs one request. Replaced in tests.
	fetch func(ctx context.Context) (feed.Snapshot, error)
}

// NewPoller validates cfg and returns a Poller. Nothing is sent until Run.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	endpoint, err := joinURL(cfg.BaseURL, dataPath)
	if err != nil {
		return nil, err
	}
	endpoint, err = httpURL(endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.Interval)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	s := cfg.Scheduler
	if s == nil {
		s = sched.Clock{}
	}
	p := &Poller{
		endpoint: endpoint,
		source:   cfg.Source,
		interval: cfg.Interval,
		timeout:  timeout,
		client:   client,
		sched:    s,
		log:      cfg.Logger,
		refresh:  make(chan struct{}, 1),
	}
	p.fetch = p.do
	return p, nil
}

// Refresh requests an immediate poll that supersedes any request in flight.
// Safe from any goroutine; requests made before Run starts are coalesced.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

type pollResult struct {
	seq  uint64
	snap feed.Snapshot
	err  error
	dur  time.Duration
}

// Run polls until ctx is cancelled. It issues a request immediately and then
// one per interval, emitting Loading/Refreshing before each request and
// Idle or Errored after each result that is still current.
func (p *Poller) Run(ctx context.Context, out chan<- Event) error {
	connID := uuid.NewString()
	results := make(chan pollResult)
	ticks := make(chan struct{}, 1)

	var (
		seq       uint64
		cancelReq context.CancelFunc
		tick      sched.Handle
		loaded    bool
	)
	defer func() {
		if cancelReq != nil {
			cancelReq()
		}
		if tick != nil {
			tick.Cancel()
		}
	}()

	schedule := func() {
		tick = p.sched.After(p.interval, func() {
			select {
			case ticks <- struct{}{}:
			default:
			}
		})
	}

	issue := func() bool {
		if cancelReq != nil {
			cancelReq()
		}
		seq++
		reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
		cancelReq = cancel

		state := StateLoading
		if loaded {
			state = StateRefreshing
		}
		p.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindPollStart, Comp: "poller",
			ConnID: connID, Seq: seq, Source: p.source})

		go func(seq uint64) {
			start := time.Now()
			snap, err := p.fetch(reqCtx)
			select {
			case results <- pollResult{seq: seq, snap: snap, err: err, dur: time.Since(start)}:
			case <-ctx.Done():
			}
		}(seq)

		return emit(ctx, out, StateChanged{State: state})
	}

	if !issue() {
		return nil
	}
	schedule()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticks:
			if !issue() {
				return nil
			}
			schedule()

		case <-p.refresh:
			if !issue() {
				return nil
			}

		case r := <-results:
			if r.seq != seq || ErrorKindOf(r.err) == KindCancelled {
				p.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindPollDiscard, Comp: "poller",
					ConnID: connID, Seq: r.seq, Msg: fmt.Sprintf("latest=%d", seq)})
				continue
			}
			cancelReq()
			cancelReq = nil

			if r.err != nil {
				p.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindPollError, Comp: "poller",
					ConnID: connID, Seq: r.seq, Dur: r.dur, Err: r.err.Error()})
				if !emit(ctx, out, Failed{Err: r.err}) || !emit(ctx, out, StateChanged{State: StateErrored}) {
					return nil
				}
				continue
			}

			loaded = true
			p.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindPollComplete, Comp: "poller",
				ConnID: connID, Seq: r.seq, Dur: r.dur, Count: len(r.snap)})
			if !emit(ctx, out, SnapshotReceived{Snapshot: r.snap, Seq: r.seq}) || !emit(ctx, out, StateChanged{State: StateIdle}) {
				return nil
			}
		}
	}
}

// do performs a single POST and parses the reply.
func (p *Poller) do(ctx context.Context) (feed.Snapshot, error) {
	body, err := json.Marshal(struct {
		URL string `json:"url"`
	}{URL: p.source})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "request", URL: p.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: "request", URL: p.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &TransportError{Op: "request", URL: p.endpoint, Status: resp.StatusCode, Err: ErrBadStatus}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: "read", URL: p.endpoint, Status: resp.StatusCode, Err: err}
	}

	snap, stats, err := feed.ParseSnapshotStats(data)
	if err != nil {
		return nil, err
	}
	if stats.Dropped() > 0 {
		p.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindParseError, Comp: "poller",
			Count: stats.Dropped(), Msg: fmt.Sprintf("items dropped: %d without id, %d malformed", stats.MissingID, stats.Malformed)})
	}
	return snap, nil
}

// joinURL appends path to base, dropping any trailing slash on base.
func joinURL(base, path string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("base url is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
