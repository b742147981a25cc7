package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetopt/internal/model"
	"fleetopt/internal/opt"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu      sync.Mutex
	solves  map[string]model.SolveRecord
	order   []string // ids in creation order
	metrics map[string]opt.Metrics
}

func NewMemory() *Memory {
	return &Memory{
		solves:  map[string]model.SolveRecord{},
		metrics: map[string]opt.Metrics{},
	}
}

func (m *Memory) CreateSolve(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.SolveRecord{}, fmt.Errorf("create solve: %w", err)
	}
	rec.ID = id.String()
	rec.Status = model.SolveQueued
	rec.CreatedAt = time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solves[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return rec, nil
}

func (m *Memory) GetSolve(ctx context.Context, id string) (model.SolveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.solves[id]
	if !ok {
		return model.SolveRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListSolves(ctx context.Context, status model.SolveStatus, cursor string, limit int) ([]model.SolveRecord, string, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, id := range m.order {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.SolveRecord{}
	for _, id := range m.order[start:] {
		rec := m.solves[id]
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			return out, id, nil
		}
	}
	return out, "", nil
}

func (m *Memory) ClaimQueued(ctx context.Context, limit int) ([]model.SolveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var out []model.SolveRecord
	for _, id := range m.order {
		if len(out) >= limit {
			break
		}
		rec := m.solves[id]
		if rec.Status != model.SolveQueued {
			continue
		}
		rec.Status = model.SolveRunning
		rec.StartedAt = &now
		m.solves[id] = rec
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) finish(id string, fn func(*model.SolveRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.solves[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	rec.FinishedAt = &now
	fn(&rec)
	m.solves[id] = rec
	return nil
}

func (m *Memory) CompleteSolve(ctx context.Context, id string, resp model.SolutionResponse) error {
	return m.finish(id, func(rec *model.SolveRecord) {
		rec.Status = model.SolveSucceeded
		rec.Response = &resp
		rec.Error = ""
	})
}

func (m *Memory) FailSolve(ctx context.Context, id, msg string) error {
	return m.finish(id, func(rec *model.SolveRecord) {
		rec.Status = model.SolveFailed
		rec.Error = msg
	})
}

func (m *Memory) SaveSolveMetrics(ctx context.Context, id string, mx opt.Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.solves[id]; !ok {
		return ErrNotFound
	}
	m.metrics[id] = mx
	return nil
}

func (m *Memory) GetSolveMetrics(ctx context.Context, id string) (opt.Metrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mx, ok := m.metrics[id]
	if !ok {
		return opt.Metrics{}, ErrNotFound
	}
	return mx, nil
}

func (m *Memory) DeleteSolvesBefore(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	n := 0
	for _, id := range m.order {
		rec := m.solves[id]
		done := rec.Status == model.SolveSucceeded || rec.Status == model.SolveFailed
		if done && rec.CreatedAt.Before(before) {
			delete(m.solves, id)
			delete(m.metrics, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return n, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
