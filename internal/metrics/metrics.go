package metrics

import "sync"

// Event names incremented by the signaling relay. Names are intentionally
// simple; they are exposed as the `event` label of a single Prometheus
// counter.
const (
	WSConnections   = "ws_connections"
	WSDisconnects   = "ws_disconnects"
	Joins           = "joins"
	Leaves          = "leaves"
	Relays          = "relays"
	Broadcasts      = "broadcasts"
	RoomsPruned     = "rooms_pruned"
	DropBadMessage  = "drop_bad_message"
	DropUnknownType = "drop_unknown_type"
	DropNoTarget    = "drop_no_target"
	DropSendFailure = "drop_send_failure"
	DropRateLimited = "drop_rate_limited"
	DropOversized   = "drop_oversized"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay is expected to plug into a real metrics backend eventually; this
// type keeps dispatch and cleanup logic testable in the meantime.
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
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters at a point in time.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
