package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abelbrown/livefeed/internal/sched"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// wsServer upgrades /ws and hands the connection to serve. serve returning
// closes the connection.
func wsServer(t *testing.T, serve func(conn *websocket.Conn, n int)) *httptest.Server {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn, int(conns.Add(1)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSocket(t *testing.T, base string) *Socket {
	t.Helper()
	s, err := NewSocket(SocketConfig{
		BaseURL:         base,
		MaxMessageBytes: 1 << 20,
		Backoff:         Backoff{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond},
	})
	require.NoError(t, err)
	return s
}

// holdOpen blocks until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestSocketDeliversSnapshots(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, _ int) {
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"id":"a"}]`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"id":"b"},{"id":"a"}]`))
		holdOpen(conn)
	})

	s := newTestSocket(t, srv.URL)
	assert.True(t, strings.HasPrefix(s.endpoint, "ws://"))

	events, stop := runConnector(t, s)
	defer stop()

	expectState(t, events, StateConnecting)
	expectState(t, events, StateConnected)

	sr := expectSnapshot(t, events)
	assert.Equal(t, []string{"a"}, sr.Snapshot.IDs())
	assert.Equal(t, uint64(1), sr.Seq)

	f := expectFailed(t, events)
	assert.Equal(t, KindParse, f.Kind())

	sr = expectSnapshot(t, events)
	assert.Equal(t, []string{"b", "a"}, sr.Snapshot.IDs())
	assert.Equal(t, uint64(2), sr.Seq)

	expectQuiet(t, events)
}

func TestSocketReconnectsAfterClose(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, n int) {
		if n == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`[{"id":"a"}]`))
			return // drop the connection
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"id":"z"}]`))
		holdOpen(conn)
	})

	events, stop := runConnector(t, newTestSocket(t, srv.URL))
	defer stop()

	expectState(t, events, StateConnecting)
	expectState(t, events, StateConnected)
	expectSnapshot(t, events)

	f := expectFailed(t, events)
	assert.Equal(t, KindTransport, f.Kind())
	expectState(t, events, StateDisconnected)

	expectState(t, events, StateReconnecting)
	expectState(t, events, StateConnected)
	sr := expectSnapshot(t, events)
	assert.Equal(t, []string{"z"}, sr.Snapshot.IDs())
}

func TestSocketDialFailureReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	events, stop := runConnector(t, newTestSocket(t, srv.URL))
	defer stop()

	expectState(t, events, StateConnecting)
	f := expectFailed(t, events)

	var te *TransportError
	require.True(t, errors.As(f.Err, &te))
	assert.Equal(t, "dial", te.Op)
	assert.Equal(t, http.StatusServiceUnavailable, te.Status)
	expectState(t, events, StateDisconnected)
	expectState(t, events, StateReconnecting)
}

// recordingScheduler reports every delay requested of the manual clock.
type recordingScheduler struct {
	*sched.Manual
	waits chan time.Duration
}

func (r recordingScheduler) After(d time.Duration, fn func()) sched.Handle {
	h := r.Manual.After(d, fn)
	r.waits <- d
	return h
}

// expectWaits checks each reconnect delay in turn and releases it.
func expectWaits(t *testing.T, rs recordingScheduler, want ...time.Duration) {
	t.Helper()
	for i, w := range want {
		select {
		case d := <-rs.waits:
			assert.Equalf(t, w, d, "wait %d", i)
			rs.Advance(d)
		case <-time.After(2 * time.Second):
			t.Fatalf("no reconnect wait %d scheduled", i)
		}
	}
}

func newBackoffSocket(t *testing.T, base string) (*Socket, recordingScheduler) {
	t.Helper()
	rs := recordingScheduler{Manual: sched.NewManual(time.Unix(0, 0)), waits: make(chan time.Duration, 16)}
	s, err := NewSocket(SocketConfig{
		BaseURL:   base,
		Backoff:   Backoff{Min: 10 * time.Millisecond, Max: 80 * time.Millisecond},
		Scheduler: rs,
	})
	require.NoError(t, err)
	return s, rs
}

func TestSocketBackoffGrowsToMax(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, rs := newBackoffSocket(t, srv.URL)
	_, stop := runConnector(t, s)
	defer stop()

	expectWaits(t, rs,
		10*time.Millisecond, 20*time.Millisecond, 40*time.Millisecond,
		80*time.Millisecond, 80*time.Millisecond, 80*time.Millisecond)
	assert.GreaterOrEqual(t, int(dials.Load()), 6)
}

func TestSocketBackoffResetsOnlyAfterDelivery(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch dials.Add(1) {
		case 2: // connects but never delivers
			if conn, err := upgrader.Upgrade(w, r, nil); err == nil {
				conn.Close()
			}
		case 4:
			if conn, err := upgrader.Upgrade(w, r, nil); err == nil {
				conn.WriteMessage(websocket.TextMessage, []byte(`[{"id":"a"}]`))
				conn.Close()
			}
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	s, rs := newBackoffSocket(t, srv.URL)
	_, stop := runConnector(t, s)
	defer stop()

	// dial 2 opens without a snapshot, so the delay keeps growing
	expectWaits(t, rs, 10*time.Millisecond, 20*time.Millisecond, 40*time.Millisecond)
	// dial 4 delivers, so the next delay starts over
	expectWaits(t, rs, 10*time.Millisecond, 20*time.Millisecond, 40*time.Millisecond)
}

func TestSocketReadLimit(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, _ int) {
		big := `[{"id":"` + strings.Repeat("x", 4096) + `"}]`
		conn.WriteMessage(websocket.TextMessage, []byte(big))
		holdOpen(conn)
	})

	s, err := NewSocket(SocketConfig{
		BaseURL:         srv.URL,
		MaxMessageBytes: 512,
		Backoff:         Backoff{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond},
	})
	require.NoError(t, err)

	events, stop := runConnector(t, s)
	defer stop()

	expectState(t, events, StateConnecting)
	expectState(t, events, StateConnected)
	f := expectFailed(t, events)
	assert.Equal(t, KindTransport, f.Kind())
	expectState(t, events, StateDisconnected)
}

func TestWSURL(t *testing.T) {
	tests := map[string]string{
		"http://h/ws":  "ws://h/ws",
		"https://h/ws": "wss://h/ws",
		"ws://h/ws":    "ws://h/ws",
		"wss://h/ws":   "wss://h/ws",
	}
	for in, want := range tests {
		got, err := wsURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := wsURL("ftp://h/ws")
	assert.Error(t, err)
}
