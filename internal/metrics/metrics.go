package metrics

import "sync"

// Event counter names. Routing and call-tracking code increments these; the
// /metrics endpoint exposes them in Prometheus' text format.
const (
	ClientConnected    = "client_connected"
	ClientDisconnected = "client_disconnected"

	MessageForwarded   = "message_forwarded"
	MalformedMessage   = "malformed_message"
	UnknownMessageType = "unknown_message_type"
	PeerNotFound       = "peer_not_found"
	DuplicateClientID  = "duplicate_client_id"
	RateLimited        = "rate_limited"

	CallOpened     = "call_opened"
	CallClosed     = "call_closed"
	CallSuperseded = "call_superseded"

	SinkUnavailable = "sink_unavailable"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay is expected to plug into a real metrics backend eventually; this
// type keeps routing and tracking logic testable in the meantime.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		snap[k] = v
	}
	return snap
}
