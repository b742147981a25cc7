package opt

import (
	"sync"
	"time"
)

type storedMetrics struct {
	m  Metrics
	at time.Time
}

var (
	mu    sync.Mutex
	store = map[string]storedMetrics{}
)

// RecordMetrics keeps the search metrics of a solve run in memory.
func RecordMetrics(solveID string, m Metrics) {
	mu.Lock()
	store[solveID] = storedMetrics{m: m, at: time.Now()}
	mu.Unlock()
}

func GetMetrics(solveID string) (Metrics, bool) {
	mu.Lock()
	defer mu.Unlock()
	sm, ok := store[solveID]
	return sm.m, ok
}

// PruneMetrics drops metrics recorded before the cutoff and returns how many were removed.
func PruneMetrics(before time.Time) int {
	mu.Lock()
	defer mu.Unlock()
	n := 0
	for id, sm := range store {
		if sm.at.Before(before) {
			delete(store, id)
			n++
		}
	}
	return n
}
