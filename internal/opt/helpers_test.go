package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"fleetopt/internal/model"
)

func intp(n int) *int { return &n }

func socal(rng *rand.Rand) *model.Location {
	return &model.Location{
		Latitude:  32.5 + rng.Float64()*2.9,
		Longitude: -119.7 + rng.Float64()*2.55,
	}
}

// randomProblem mirrors the shape of real service days: a handful of trucks with a
// subset of service types each and requests spread over Southern California.
func randomProblem(rng *rand.Rand, vehicles, requests int) model.Problem {
	var p model.Problem
	for i := 0; i < vehicles; i++ {
		v := model.Vehicle{
			Key:             fmt.Sprintf("truck-%d", i),
			Location:        socal(rng),
			StartAt:         intp(200 + rng.Intn(200)),
			EndBy:           intp(1200 + rng.Intn(200)),
			CostPerDistance: 1 + rng.Float64(),
		}
		v.FryerOil = intp(1000 + rng.Intn(4000))
		if rng.Intn(2) == 0 {
			v.GreaseTrap = intp(1000 + rng.Intn(4000))
		}
		if rng.Intn(2) == 0 {
			v.HoodCleaning = intp(1000 + rng.Intn(4000))
		}
		if rng.Intn(3) == 0 {
			v.HydroJetting = intp(1000 + rng.Intn(4000))
		}
		p.Fleet = append(p.Fleet, v)
	}
	names := []string{"fryerOil", "greaseTrap", "hoodCleaning", "hydroJetting"}
	for i := 0; i < requests; i++ {
		r := model.ServiceRequest{
			Key:          fmt.Sprintf("req-%d", i),
			Location:     socal(rng),
			ServiceType:  names[rng.Intn(len(names))],
			MaterialCost: 30 + rng.Intn(1470),
			TimeCost:     5 + rng.Intn(70),
		}
		if rng.Intn(2) == 0 {
			start := 400 + rng.Intn(600)
			r.TimeWindow = &model.TimeWindow{Start: start, End: start + 60 + rng.Intn(400)}
		}
		p.Requests = append(p.Requests, r)
	}
	return p
}

// requireValidResponse checks a response against the input it was solved from, using only
// the input definitions and the Euclidean reference cost.
func requireValidResponse(t *testing.T, in model.Problem, resp model.SolutionResponse) {
	t.Helper()
	vehicles := map[string]model.Vehicle{}
	for _, v := range in.Fleet {
		vehicles[v.Key] = v
	}
	requests := map[string]model.ServiceRequest{}
	for _, r := range in.Requests {
		requests[r.Key] = r
	}

	seen := map[string]int{}
	for _, k := range resp.UnassignedJobs {
		seen[k]++
	}
	dist := func(a, b *model.Location) float64 {
		return math.Hypot(a.Latitude-b.Latitude, a.Longitude-b.Longitude)
	}
	total := 0.0
	for _, route := range resp.Routes {
		require.NotEmpty(t, route.Jobs, "empty route %s emitted", route.Vehicle)
		v, ok := vehicles[route.Vehicle]
		require.True(t, ok, "unknown vehicle %s", route.Vehicle)
		caps := map[string]*int{
			"fryerOil": v.FryerOil, "greaseTrap": v.GreaseTrap,
			"hoodCleaning": v.HoodCleaning, "hydroJetting": v.HydroJetting,
		}
		load := map[string]int{}
		at := v.Location
		legs := 0.0
		prevDeparture := -1
		for i, a := range route.Jobs {
			seen[a.Request]++
			r, ok := requests[a.Request]
			require.True(t, ok, "unknown request %s", a.Request)

			c := caps[r.ServiceType]
			require.NotNil(t, c, "%s cannot serve %s", v.Key, r.ServiceType)
			load[r.ServiceType] += r.MaterialCost
			require.LessOrEqual(t, load[r.ServiceType], *c, "capacity exceeded on %s", v.Key)

			require.Equal(t, a.ArrivalTime+r.TimeCost, a.DepartureTime, "%s", a.Request)
			require.GreaterOrEqual(t, a.ArrivalTime, prevDeparture, "%s out of order", a.Request)
			if r.TimeWindow != nil {
				require.GreaterOrEqual(t, a.ArrivalTime, r.TimeWindow.Start, "%s early", a.Request)
				require.LessOrEqual(t, a.ArrivalTime, r.TimeWindow.End, "%s late", a.Request)
			}
			if i == 0 && v.StartAt != nil {
				require.GreaterOrEqual(t, a.ArrivalTime, *v.StartAt)
			}
			if i == len(route.Jobs)-1 && v.EndBy != nil {
				require.LessOrEqual(t, a.DepartureTime, *v.EndBy)
			}
			prevDeparture = a.DepartureTime

			legs += dist(at, r.Location)
			at = r.Location
		}
		legs += dist(at, v.Location)
		total += legs * v.CostPerDistance
	}
	require.Len(t, seen, len(in.Requests))
	for k, n := range seen {
		require.Equal(t, 1, n, "request %s accounted %d times", k, n)
	}
	require.GreaterOrEqual(t, resp.TotalCost, 0)
	require.Equal(t, int(math.Round(total)), resp.TotalCost)
}

func solveModel(t *testing.T, in model.Problem, o Options) (model.SolutionResponse, Metrics) {
	t.Helper()
	p, err := Build(in, Euclidean{})
	require.NoError(t, err)
	s, m, err := Solve(context.Background(), p, o)
	require.NoError(t, err)
	resp, err := Format(p, s)
	require.NoError(t, err)
	return resp, m
}
