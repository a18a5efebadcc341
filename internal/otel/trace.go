package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled is set once at package init. Atomic so tests can flip it.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("LIVEFEED_TRACE") != "")
}

// TraceEnabled reports whether LIVEFEED_TRACE is set. Debug-level events are
// only emitted when it is.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// SetTraceEnabled overrides the LIVEFEED_TRACE setting, e.g. from a --trace flag.
func SetTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
