package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled is read from the UI goroutine and written by tests.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("WIKISCROLL_TRACE") != "")
}

// TraceEnabled reports whether WIKISCROLL_TRACE was set at startup. When it
// is, the UI records every message it handles.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
