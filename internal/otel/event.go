// Package otel records structured events for wikiscroll.
//
// Events are typed structs written as JSONL lines by an asynchronous Logger.
// A RingBuffer can be attached to keep the most recent events in memory for
// the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level is event severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind names an event as "<subsystem>.<action>".
type EventKind string

const (
	// Stream controller
	KindStreamReset     EventKind = "stream.reset"
	KindStreamFetch     EventKind = "stream.fetch"
	KindStreamBatch     EventKind = "stream.batch"
	KindDuplicatePage   EventKind = "stream.duplicate_page"
	KindThinBatch       EventKind = "stream.thin_batch"
	KindStreamExhausted EventKind = "stream.exhausted"
	KindStreamError     EventKind = "stream.error"
	KindTriggerDropped  EventKind = "stream.trigger_dropped"

	// Gateways
	KindGatewayRetry EventKind = "gateway.retry"
	KindArticleFetch EventKind = "gateway.article"

	// Store
	KindStoreError EventKind = "store.error"

	// UI
	KindKeyPress    EventKind = "ui.key"
	KindMsgReceived EventKind = "ui.msg"

	// System
	KindStartup      EventKind = "sys.startup"
	KindShutdown     EventKind = "sys.shutdown"
	KindConfigReload EventKind = "sys.config_reload"
	KindError        EventKind = "sys.error"
)

// Event is one observability record. Only Kind and Time are always present.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // "feed", "wiki", "ui", "main"
	SessionID string         `json:"session_id,omitempty"` // fixed for one run
	Source    string         `json:"source,omitempty"`     // stream key
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // filled from Dur when marshalling
	Count     int            `json:"count,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON writes Dur as dur_ms.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	a := alias(e)
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
