// Package cache stores solve responses by a content key. Solves are deterministic for a
// given problem, options and seed, so a cached response is exact.
package cache

import (
	"context"
	"sync"

	"fleetopt/internal/model"
)

type Cache interface {
	Get(ctx context.Context, key string) (model.SolutionResponse, bool, error)
	Set(ctx context.Context, key string, resp model.SolutionResponse) error
}

// Memory is a bounded cache evicting the oldest entry first.
type Memory struct {
	mu      sync.Mutex
	max     int
	entries map[string]model.SolutionResponse
	order   []string
}

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 256
	}
	return &Memory{max: max, entries: map[string]model.SolutionResponse{}}
}

func (m *Memory) Get(_ context.Context, key string) (model.SolutionResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.entries[key]
	return resp, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, resp model.SolutionResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		m.order = append(m.order, key)
	}
	m.entries[key] = resp
	for len(m.order) > m.max {
		delete(m.entries, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
