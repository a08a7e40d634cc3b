package opt

import (
	"sync"
	"time"
)

// RunRecord is the last ILS run observed for a decision trigger.
type RunRecord struct {
	Metrics
	Orders int       `json:"orders"`
	At     time.Time `json:"at"`
}

var (
	mu    sync.Mutex
	store = map[string]RunRecord{}
)

// RecordMetrics keeps m as the latest run for trigger.
func RecordMetrics(trigger string, orders int, at time.Time, m Metrics) {
	mu.Lock()
	store[trigger] = RunRecord{Metrics: m, Orders: orders, At: at}
	mu.Unlock()
}

// GetMetrics returns a copy of the latest run per trigger.
func GetMetrics() map[string]RunRecord {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]RunRecord, len(store))
	for k, v := range store {
		out[k] = v
	}
	return out
}
