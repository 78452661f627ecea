package server

import "sync"

// runMetrics counts run outcomes and streamed events for the metrics
// endpoint. Counters only reset with the process.
type runMetrics struct {
	mu             sync.Mutex
	runsStarted    int64
	runsCompleted  int64
	runsFailed     int64
	runsCancelled  int64
	eventsStreamed int64
}

func (m *runMetrics) recordStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runsStarted++
}

func (m *runMetrics) recordOutcome(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch status {
	case "completed":
		m.runsCompleted++
	case "failed":
		m.runsFailed++
	case "cancelled":
		m.runsCancelled++
	}
}

func (m *runMetrics) recordEvents(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsStreamed += int64(n)
}

func (m *runMetrics) snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int64{
		"runs_started":    m.runsStarted,
		"runs_completed":  m.runsCompleted,
		"runs_failed":     m.runsFailed,
		"runs_cancelled":  m.runsCancelled,
		"events_streamed": m.eventsStreamed,
	}
}
