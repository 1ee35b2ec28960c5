package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	transitionCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		transitionCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTransition counts workflow transitions by ticket type, edge and
// outcome.
func (m *Metrics) RecordTransition(ticketType, before, after, outcome string) {
	if m == nil {
		return
	}
	key := ticketType + "|" + before + ">" + after + "|" + outcome
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCount[key]++
}

// TransitionCount reads one transition counter, mainly for tests and
// diagnostics.
func (m *Metrics) TransitionCount(ticketType, before, after, outcome string) int64 {
	if m == nil {
		return 0
	}
	key := ticketType + "|" + before + ">" + after + "|" + outcome
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionCount[key]
}
