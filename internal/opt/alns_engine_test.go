package opt

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"fleetopt/internal/model"
)

func TestSolveTrivialFryerOil(t *testing.T) {
	in := model.Problem{
		Fleet: []model.Vehicle{{
			Key: "v1", Location: &model.Location{Latitude: 33.78, Longitude: -118.21},
			CostPerDistance: 1, FryerOil: intp(1000),
		}},
		Requests: []model.ServiceRequest{{
			Key: "r1", Location: &model.Location{Latitude: 33.9, Longitude: -118.1},
			ServiceType: "fryerOil", MaterialCost: 500,
		}},
	}
	resp, _ := solveModel(t, in, Options{})
	require.Empty(t, resp.UnassignedJobs)
	require.Len(t, resp.Routes, 1)
	require.Equal(t, "v1", resp.Routes[0].Vehicle)
	require.Len(t, resp.Routes[0].Jobs, 1)
	require.Equal(t, "r1", resp.Routes[0].Jobs[0].Request)
	requireValidResponse(t, in, resp)
}

func TestSolveRandomProblemsAccountForEveryRequest(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 5; round++ {
		n := 15 + rng.Intn(21)
		in := randomProblem(rng, 5, n)
		first, _ := solveModel(t, in, Options{Seed: 7, MaxIterations: 64})
		second, _ := solveModel(t, in, Options{Seed: 7, MaxIterations: 64})

		jobs := 0
		for _, r := range first.Routes {
			jobs += len(r.Jobs)
		}
		require.Equal(t, n, jobs+len(first.UnassignedJobs))
		require.Equal(t, first, second, "same seed must reproduce the solution")
		requireValidResponse(t, in, first)
	}
}

func TestSolveUnserviceableTypeStaysUnassigned(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	in := randomProblem(rng, 3, 12)
	for i := range in.Fleet {
		in.Fleet[i].HydroJetting = nil
	}
	in.Requests[4].ServiceType = "hydroJetting"
	for _, iterations := range []int{1, 32, 300} {
		resp, _ := solveModel(t, in, Options{MaxIterations: iterations})
		require.Contains(t, resp.UnassignedJobs, in.Requests[4].Key)
		requireValidResponse(t, in, resp)
	}
}

func TestSolveRespectsCapacity(t *testing.T) {
	loc := &model.Location{Latitude: 33, Longitude: -118}
	in := model.Problem{
		Fleet: []model.Vehicle{{Key: "v1", Location: loc, CostPerDistance: 1, GreaseTrap: intp(10)}},
	}
	for _, k := range []string{"a", "b", "c"} {
		in.Requests = append(in.Requests, model.ServiceRequest{
			Key: k, Location: &model.Location{Latitude: 33.1, Longitude: -118.1}, ServiceType: "greaseTrap", MaterialCost: 4,
		})
	}
	resp, _ := solveModel(t, in, Options{})
	require.Len(t, resp.UnassignedJobs, 1)
	require.Len(t, resp.Routes[0].Jobs, 2)
	requireValidResponse(t, in, resp)
}

func TestSolveRespectsTimeWindows(t *testing.T) {
	depot := &model.Location{Latitude: 33, Longitude: -118}
	in := model.Problem{
		Fleet: []model.Vehicle{{Key: "v1", Location: depot, CostPerDistance: 1, FryerOil: intp(100), StartAt: intp(0), EndBy: intp(100)}},
		Requests: []model.ServiceRequest{
			{Key: "late", Location: depot, ServiceType: "fryerOil", TimeWindow: &model.TimeWindow{Start: 200, End: 300}},
			{Key: "ok", Location: depot, ServiceType: "fryerOil", TimeCost: 30, TimeWindow: &model.TimeWindow{Start: 50, End: 60}},
			{Key: "after-ok", Location: depot, ServiceType: "fryerOil", TimeCost: 10, TimeWindow: &model.TimeWindow{Start: 0, End: 70}},
		},
	}
	resp, _ := solveModel(t, in, Options{})
	require.ElementsMatch(t, []string{"late"}, resp.UnassignedJobs)
	require.Equal(t, []model.ActivityOut{
		{Request: "after-ok", ArrivalTime: 0, DepartureTime: 10},
		{Request: "ok", ArrivalTime: 50, DepartureTime: 80},
	}, resp.Routes[0].Jobs)
	requireValidResponse(t, in, resp)
}

func TestSolveMoreIterationsNeverWorse(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	in := randomProblem(rng, 5, 30)
	prev := -1.0
	for _, iterations := range []int{1, 10, 50, 150, 300} {
		_, m := solveModel(t, in, Options{Seed: 5, MaxIterations: iterations})
		if prev >= 0 {
			require.LessOrEqual(t, m.BestObjective, prev, "iterations=%d", iterations)
		}
		prev = m.BestObjective
	}

	// every request is always assignable here, so the reported cost itself is monotone
	for i := range in.Fleet {
		in.Fleet[i].StartAt, in.Fleet[i].EndBy = nil, nil
		for _, c := range []**int{&in.Fleet[i].FryerOil, &in.Fleet[i].GreaseTrap, &in.Fleet[i].HoodCleaning, &in.Fleet[i].HydroJetting} {
			*c = intp(1 << 20)
		}
	}
	for i := range in.Requests {
		in.Requests[i].TimeWindow = nil
	}
	prevCost := -1
	for _, iterations := range []int{1, 10, 50, 150, 300} {
		resp, _ := solveModel(t, in, Options{Seed: 9, MaxIterations: iterations})
		require.Empty(t, resp.UnassignedJobs)
		if prevCost >= 0 {
			require.LessOrEqual(t, resp.TotalCost, prevCost, "iterations=%d", iterations)
		}
		prevCost = resp.TotalCost
	}
}

func TestSolveImprovesOnInitialConstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	in := randomProblem(rng, 5, 25)
	var progress []Progress
	_, m := solveModel(t, in, Options{OnImprove: func(p Progress) { progress = append(progress, p) }})
	require.Equal(t, DefaultMaxIterations, m.Iterations)
	require.Equal(t, m.Iterations, m.RemovalSelects[0]+m.RemovalSelects[1])
	require.Equal(t, m.Iterations, m.InsertSelects[0]+m.InsertSelects[1])
	require.Len(t, progress, m.Improvements)
	require.LessOrEqual(t, m.BestObjective, m.InitialObjective)
	require.Len(t, m.Snapshots, DefaultMaxIterations/snapshotEvery)
	for i := 1; i < len(progress); i++ {
		require.Greater(t, progress[i].Iteration, progress[i-1].Iteration)
	}
	if len(progress) > 0 {
		last := progress[len(progress)-1]
		require.Equal(t, m.BestCost, last.BestCost)
		require.Equal(t, m.Unassigned, last.Unassigned)
	}
}

func TestSolveBudgetOrdersUnassignedBeforeCost(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	in := randomProblem(rng, 3, 40)
	prevUnassigned, prevCost := -1, 0
	for _, iterations := range []int{1, 20, 80, 200} {
		resp, _ := solveModel(t, in, Options{Seed: 3, MaxIterations: iterations})
		n := len(resp.UnassignedJobs)
		if prevUnassigned >= 0 {
			require.LessOrEqual(t, n, prevUnassigned, "iterations=%d", iterations)
			if n == prevUnassigned {
				require.LessOrEqual(t, resp.TotalCost, prevCost, "iterations=%d", iterations)
			}
		}
		prevUnassigned, prevCost = n, resp.TotalCost
	}
}

func TestSolveCancelledReturnsBestSoFar(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	in := randomProblem(rng, 5, 20)
	p, err := Build(in, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, m, err := Solve(ctx, p, Options{MaxIterations: 10_000})
	require.NoError(t, err)
	require.True(t, m.Cancelled)
	require.Zero(t, m.Iterations)
	resp, err := Format(p, s)
	require.NoError(t, err)
	requireValidResponse(t, in, resp)
}

func TestSolveRejectsBrokenModel(t *testing.T) {
	p := &Problem{
		Vehicles: []Vehicle{{ID: "v1", LatestArrival: 100}},
		Jobs:     []Job{{ID: "j1", Skill: NumDimensions, TW: Unbounded}},
		Cost:     Euclidean{},
	}
	_, _, err := Solve(context.Background(), p, Options{})
	require.True(t, errors.Is(err, ErrInvariantViolation))
	var inv *InvariantError
	require.True(t, errors.As(err, &inv))
	require.Equal(t, `job "j1"`, inv.Where)
}

func TestSelectOpFollowsWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	counts := [2]int{}
	for i := 0; i < 10_000; i++ {
		counts[selectOp([]float64{1, 3}, rng)]++
	}
	require.InDelta(t, 0.75, float64(counts[1])/10_000, 0.03)
	require.Equal(t, 0, selectOp([]float64{1, 0}, rng))
}

func TestLocalSearchMoves(t *testing.T) {
	require.Equal(t, []int{0, 3, 2, 1, 4}, twoOptSwap([]int{0, 1, 2, 3, 4}, 1, 3))
	require.Equal(t, []int{1, 2, 0, 3}, moveJob([]int{0, 1, 2, 3}, 0, 2))
	require.Equal(t, []int{3, 0, 1, 2}, moveJob([]int{0, 1, 2, 3}, 3, 0))
}
