package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleetopt/internal/model"
	"fleetopt/internal/opt"
)

// runContract exercises any Store implementation.
func runContract(t *testing.T, s Store) {
	ctx := context.Background()
	req := json.RawMessage(`{"problem":{"fleet":{"key":"v"},"requests":{"key":"r"}}}`)

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := s.CreateSolve(ctx, model.SolveRecord{Request: req, CallbackURL: "http://hook.test/x", CallbackSecret: "s3cret"})
		require.NoError(t, err)
		require.NotEmpty(t, rec.ID)
		require.Equal(t, model.SolveQueued, rec.Status)
		ids = append(ids, rec.ID)
	}

	got, err := s.GetSolve(ctx, ids[0])
	require.NoError(t, err)
	require.JSONEq(t, string(req), string(got.Request))
	require.Equal(t, "s3cret", got.CallbackSecret)

	_, err = s.GetSolve(ctx, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrNotFound)

	page, next, err := s.ListSolves(ctx, "", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, ids[:2], []string{page[0].ID, page[1].ID})
	require.Equal(t, ids[1], next)
	page, next, err = s.ListSolves(ctx, "", next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, ids[2], page[0].ID)
	require.Empty(t, next)

	claimed, err := s.ClaimQueued(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	require.Equal(t, ids[0], claimed[0].ID)
	require.Equal(t, ids[1], claimed[1].ID)
	require.Equal(t, model.SolveRunning, claimed[0].Status)
	require.NotNil(t, claimed[0].StartedAt)

	queued, _, err := s.ListSolves(ctx, model.SolveQueued, "", 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	resp := model.SolutionResponse{TotalCost: 12, UnassignedJobs: []string{}, Routes: []model.RouteOut{{Vehicle: "v", Jobs: []model.ActivityOut{{Request: "r", ArrivalTime: 3, DepartureTime: 8}}}}}
	require.NoError(t, s.CompleteSolve(ctx, ids[0], resp))
	require.NoError(t, s.FailSolve(ctx, ids[1], "boom"))
	require.ErrorIs(t, s.CompleteSolve(ctx, "00000000-0000-0000-0000-000000000000", resp), ErrNotFound)

	done, err := s.GetSolve(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, model.SolveSucceeded, done.Status)
	require.Equal(t, &resp, done.Response)
	require.NotNil(t, done.FinishedAt)

	failed, err := s.GetSolve(ctx, ids[1])
	require.NoError(t, err)
	require.Equal(t, model.SolveFailed, failed.Status)
	require.Equal(t, "boom", failed.Error)

	_, err = s.GetSolveMetrics(ctx, ids[0])
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.SaveSolveMetrics(ctx, ids[0], opt.Metrics{Iterations: 256, BestCost: 12.5}))
	m, err := s.GetSolveMetrics(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, 256, m.Iterations)
	require.Equal(t, 12.5, m.BestCost)

	n, err := s.DeleteSolvesBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, n, "only finished solves are pruned")
	_, err = s.GetSolve(ctx, ids[0])
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetSolve(ctx, ids[2])
	require.NoError(t, err)

	require.NoError(t, s.Ping(ctx))
}
