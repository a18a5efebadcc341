// Package otel provides structured observability for livefeed.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps recent events in memory for the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Connection events (push and pull)
	KindConnState EventKind = "conn.state"
	KindConnDial  EventKind = "conn.dial"
	KindConnError EventKind = "conn.error"

	// Poll events
	KindPollStart    EventKind = "poll.start"
	KindPollComplete EventKind = "poll.complete"
	KindPollError    EventKind = "poll.error"
	KindPollDiscard  EventKind = "poll.discard"

	// Ingestion events
	KindParseError EventKind = "snapshot.parse_error"
	KindMergeApply EventKind = "merge.apply"
	KindMergeNoop  EventKind = "merge.noop"
	KindMergeReset EventKind = "merge.reset"

	KindHighlightExpire EventKind = "highlight.expire"

	// Journal events
	KindJournalWrite EventKind = "journal.write"
	KindJournalError EventKind = "journal.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "socket", "poller", "controller", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire app run
	ConnID    string         `json:"conn_id,omitempty"`    // one per connector run
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Seq       uint64         `json:"seq,omitempty"` // poll request or snapshot sequence
	Source    string         `json:"source,omitempty"`
	State     string         `json:"state,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`   // free text
	Extra     map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
