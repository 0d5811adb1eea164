package metrics

import "sync"

// Counter names. Values double as the `event` label in the Prometheus
// exposition, so they stay snake_case.
const (
	Connects           = "connects"
	Disconnects        = "disconnects"
	PairRequests       = "pair_requests"
	Matches            = "matches"
	MatchesByInterest  = "matches_by_interest"
	Waits              = "waits"
	OpenFloorJoins     = "open_floor_joins"
	ChatMessages       = "chat_messages"
	CensoredMessages   = "censored_messages"
	SignalsRelayed     = "signals_relayed"
	Skips              = "skips"
	RejectedInputs     = "rejected_inputs"
	ProtocolViolations = "protocol_violations"
	SendDrops          = "send_drops"
	RateLimitDrops     = "rate_limit_drops"
	ReportsSaved       = "reports_saved"
	ReportSaveFailures = "report_save_failures"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A real deployment would plug into a full metrics backend; this keeps the
// engine's accounting testable while still being scrapeable.
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

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
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
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
