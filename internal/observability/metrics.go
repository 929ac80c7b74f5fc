package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the queue engine and its
// HTTP surface. All methods are nil-safe.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	callCount    map[string]int64
	retryCount   map[string]int64
	sweepRuns    int64
	sweptTickets int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		callCount:    make(map[string]int64),
		retryCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
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

// RecordCall counts a successful call-next per room.
func (m *Metrics) RecordCall(roomRef string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[roomRef]++
}

// RecordCallRetry counts a call-next snapshot refresh after a lost
// compare-and-swap.
func (m *Metrics) RecordCallRetry(roomRef string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount[roomRef]++
}

// RecordSweep counts one sweeper pass and the tickets it expired.
func (m *Metrics) RecordSweep(expired int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepRuns++
	m.sweptTickets += int64(expired)
}

// CallRetries returns the retry counter for a room.
func (m *Metrics) CallRetries(roomRef string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount[roomRef]
}

// SweepTotals returns sweep runs and total tickets expired by sweeps.
func (m *Metrics) SweepTotals() (runs, expired int64) {
	if m == nil {
		return 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepRuns, m.sweptTickets
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
