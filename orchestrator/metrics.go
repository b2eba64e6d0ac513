package orchestrator

import "sync"

// Metrics accumulates per-request outcome counters, per spec.md §4.7
// step 8 ("total, success, failure counts; success rate").
type Metrics struct {
	mu      sync.Mutex
	total   int64
	success int64
	partial int64
	failed  int64
}

func (m *Metrics) record(status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	switch status {
	case StatusSuccess:
		m.success++
	case StatusPartialSuccess:
		m.partial++
	case StatusFailed:
		m.failed++
	}
}

// Snapshot is a point-in-time read of Metrics.
type Snapshot struct {
	Total       int64
	Success     int64
	Partial     int64
	Failed      int64
	SuccessRate float64
}

// Snapshot returns the current counter values and the overall success
// rate (Success+Partial over Total; 0 when Total is 0).
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{Total: m.total, Success: m.success, Partial: m.partial, Failed: m.failed}
	if m.total > 0 {
		s.SuccessRate = float64(m.success+m.partial) / float64(m.total)
	}
	return s
}
