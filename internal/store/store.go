package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"fleetopt/internal/model"
	"fleetopt/internal/opt"
)

// Store keeps the history of asynchronous solves for the API server and the worker.
type Store interface {
	// CreateSolve assigns an ID and enqueues the record with status queued.
	CreateSolve(ctx context.Context, rec model.SolveRecord) (model.SolveRecord, error)
	GetSolve(ctx context.Context, id string) (model.SolveRecord, error)
	// ListSolves pages by ID, which follows creation order. An empty status lists all.
	ListSolves(ctx context.Context, status model.SolveStatus, cursor string, limit int) (items []model.SolveRecord, nextCursor string, err error)

	// ClaimQueued moves up to limit queued solves to running and returns them oldest first.
	ClaimQueued(ctx context.Context, limit int) ([]model.SolveRecord, error)
	CompleteSolve(ctx context.Context, id string, resp model.SolutionResponse) error
	FailSolve(ctx context.Context, id, msg string) error

	SaveSolveMetrics(ctx context.Context, id string, m opt.Metrics) error
	GetSolveMetrics(ctx context.Context, id string) (opt.Metrics, error)

	// DeleteSolvesBefore removes finished solves created before the cutoff.
	DeleteSolvesBefore(ctx context.Context, before time.Time) (int, error)
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}

// sortByID puts records in creation order; IDs are UUIDv7, whose text form sorts by time.
func sortByID(recs []model.SolveRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
