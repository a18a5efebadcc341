package transport

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/abelbrown/livefeed/internal/feed"
	"github.com/abelbrown/livefeed/internal/otel"
	"github.com/abelbrown/livefeed/internal/sched"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	socketPath = "/ws"

	defaultPongWait  = 60 * time.Second
	defaultWriteWait = 10 * time.Second
)

// SocketConfig configures a Socket.
type SocketConfig struct {
	BaseURL         string
	MaxMessageBytes int64
	Backoff         Backoff

	Dialer    *websocket.Dialer
	Scheduler sched.Scheduler
	Logger    *otel.Logger
}

// Socket keeps a WebSocket to <base>/ws open, reconnecting with backoff.
// Each message is a full snapshot. The client sends only control frames.
type Socket struct {
	endpoint string
	maxBytes int64
	backoff  Backoff
	dialer   *websocket.Dialer
	sched    sched.Scheduler
	log      *otel.Logger
	limiter  *rate.Limiter

	pongWait   time.Duration
	pingPeriod time.Duration
	writeWait  time.Duration
}

// NewSocket validates cfg and returns a Socket. Nothing is dialed until Run.
func NewSocket(cfg SocketConfig) (*Socket, error) {
	endpoint, err := joinURL(cfg.BaseURL, socketPath)
	if err != nil {
		return nil, err
	}
	endpoint, err = wsURL(endpoint)
	if err != nil {
		return nil, err
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	}
	s := cfg.Scheduler
	if s == nil {
		s = sched.Clock{}
	}
	b := cfg.Backoff
	if b.Min <= 0 {
		b.Min = 500 * time.Millisecond
	}
	if b.Max < b.Min {
		b.Max = 30 * time.Second
	}
	return &Socket{
		endpoint:   endpoint,
		maxBytes:   cfg.MaxMessageBytes,
		backoff:    b,
		dialer:     dialer,
		sched:      s,
		log:        cfg.Logger,
		limiter:    rate.NewLimiter(rate.Every(b.Min), 1),
		pongWait:   defaultPongWait,
		pingPeriod: defaultPongWait * 9 / 10,
		writeWait:  defaultWriteWait,
	}, nil
}

// Run dials and reads until ctx is cancelled, redialing after every failure.
func (s *Socket) Run(ctx context.Context, out chan<- Event) error {
	connID := uuid.NewString()
	attempt := 0
	dialed := false
	var seq uint64

	for {
		state := StateConnecting
		if dialed {
			state = StateReconnecting
		}
		dialed = true
		s.logState(connID, state)
		if !emit(ctx, out, StateChanged{State: state}) {
			return nil
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		start := time.Now()
		conn, resp, err := s.dialer.DialContext(ctx, s.endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			te := &TransportError{Op: "dial", URL: s.endpoint, Err: err}
			if resp != nil {
				te.Status = resp.StatusCode
				resp.Body.Close()
			}
			if !s.fail(ctx, out, connID, te) {
				return nil
			}
		} else {
			s.log.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindConnDial, Comp: "socket",
				ConnID: connID, Dur: time.Since(start), Source: s.endpoint})
			s.logState(connID, StateConnected)
			if !emit(ctx, out, StateChanged{State: StateConnected}) {
				conn.Close()
				return nil
			}

			delivered, err := s.read(ctx, conn, out, &seq, connID)
			if ctx.Err() != nil {
				return nil
			}
			if delivered > 0 {
				attempt = 0
			}
			if !s.fail(ctx, out, connID, &TransportError{Op: "read", URL: s.endpoint, Err: err}) {
				return nil
			}
		}

		wait := s.backoff.Next(attempt)
		attempt++
		s.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindConnState, Comp: "socket",
			ConnID: connID, Dur: wait, Msg: fmt.Sprintf("retry attempt %d", attempt)})
		if err := sched.Sleep(ctx, s.sched, wait); err != nil {
			return nil
		}
	}
}

// fail reports err followed by Disconnected. Returns false if ctx ended.
func (s *Socket) fail(ctx context.Context, out chan<- Event, connID string, err error) bool {
	s.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindConnError, Comp: "socket",
		ConnID: connID, Err: err.Error()})
	s.logState(connID, StateDisconnected)
	return emit(ctx, out, Failed{Err: err}) && emit(ctx, out, StateChanged{State: StateDisconnected})
}

// read pumps messages from conn until it fails or ctx ends. It returns the
// number of snapshots delivered.
func (s *Socket) read(ctx context.Context, conn *websocket.Conn, out chan<- Event, seq *uint64, connID string) (int, error) {
	defer conn.Close()

	if s.maxBytes > 0 {
		conn.SetReadLimit(s.maxBytes)
	}
	conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepalive(ctx, conn, done)

	delivered := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return delivered, err
		}
		conn.SetReadDeadline(time.Now().Add(s.pongWait))

		snap, stats, err := feed.ParseSnapshotStats(data)
		if err != nil {
			s.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindParseError, Comp: "socket",
				ConnID: connID, Err: err.Error()})
			if !emit(ctx, out, Failed{Err: err}) {
				return delivered, ctx.Err()
			}
			continue
		}
		if stats.Dropped() > 0 {
			s.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindParseError, Comp: "socket",
				ConnID: connID, Count: stats.Dropped(), Msg: fmt.Sprintf("items dropped: %d without id, %d malformed", stats.MissingID, stats.Malformed)})
		}

		*seq++
		delivered++
		if !emit(ctx, out, SnapshotReceived{Snapshot: snap, Seq: *seq}) {
			return delivered, ctx.Err()
		}
	}
}

// keepalive pings the peer and closes conn when ctx ends, which unblocks the
// reader. It is the only writer on conn.
func (s *Socket) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (s *Socket) logState(connID string, st State) {
	s.log.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindConnState, Comp: "socket",
		ConnID: connID, State: st.String()})
}

// wsURL rewrites http(s) to ws(s).
func wsURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q for websocket", u.Scheme)
	}
	return u.String(), nil
}

// httpURL rewrites ws(s) to http(s).
func httpURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q for http", u.Scheme)
	}
	return u.String(), nil
}
