package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/abelbrown/livefeed/internal/feed"
)

// ErrorKind classifies failures for propagation policy.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindTransport: connection refused, non-2xx status, channel closed.
	KindTransport
	// KindParse: malformed snapshot payload.
	KindParse
	// KindCancelled: superseded or torn-down request. Never surfaced.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindParse:
		return "parse"
	case KindCancelled:
		return "cancelled"
	}
	return "none"
}

// TransportError is a failure to reach the source or a non-success reply.
type TransportError struct {
	Op     string // "dial", "read", "request"
	URL    string
	Status int // HTTP status when one was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrBadStatus is wrapped by TransportError for non-2xx replies.
var ErrBadStatus = errors.New("unexpected status")

// ErrorKindOf maps an error onto the taxonomy. Cancellation wins over the
// wrapping type: a request torn down mid-flight is not a transport failure.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	var pe *feed.ParseError
	if errors.As(err, &pe) {
		return KindParse
	}
	return KindTransport
}
