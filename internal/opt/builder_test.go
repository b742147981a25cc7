package opt

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"fleetopt/internal/model"
	"fleetopt/internal/schema"
)

func TestBuildRecords(t *testing.T) {
	in := model.Problem{
		Fleet: []model.Vehicle{{
			Key: "a103", Location: &model.Location{Latitude: 33.9, Longitude: 44.2},
			StartAt: intp(400), EndBy: intp(800), CostPerDistance: 2,
			FryerOil: intp(1000), GreaseTrap: intp(500),
		}, {
			Key: "b7", Location: &schema.DefaultDepot, CostPerDistance: 1, HydroJetting: intp(3),
		}},
		Requests: []model.ServiceRequest{{
			Key: "r1", Location: &model.Location{Latitude: 34, Longitude: -118},
			ServiceType: "greaseTrap", MaterialCost: 45, TimeCost: 20,
			TimeWindow: &model.TimeWindow{Start: 480, End: 600},
		}, {
			Key: "r2", Location: &model.Location{Latitude: 34, Longitude: -118}, ServiceType: "hoodCleaning",
		}},
	}
	p, err := Build(in, nil)
	require.NoError(t, err)
	require.Equal(t, Euclidean{}, p.Cost)

	a := p.Vehicles[0]
	require.Equal(t, "a103__type", a.Type.ID)
	require.Equal(t, Capacity{1000, 500, 0, 0}, a.Type.Capacity)
	require.Equal(t, 2.0, a.Type.CostPerDistance)
	require.Equal(t, []Dimension{FryerOil, GreaseTrap}, a.Skills.List())
	require.Equal(t, Point{Lat: 33.9, Lng: 44.2}, a.Start)
	require.Equal(t, 400.0, a.EarliestStart)
	require.Equal(t, 800.0, a.LatestArrival)

	b := p.Vehicles[1]
	require.Zero(t, b.EarliestStart)
	require.True(t, math.IsInf(b.LatestArrival, 1))
	require.Equal(t, []Dimension{HydroJetting}, b.Skills.List())

	require.Equal(t, Job{
		ID: "r1", Location: Point{Lat: 34, Lng: -118}, Skill: GreaseTrap,
		Demand: 45, ServiceTime: 20, TW: TW{Start: 480, End: 600},
	}, p.Jobs[0])
	require.False(t, p.Jobs[1].TW.Bounded())
	require.Equal(t, HoodCleaning, p.Jobs[1].Skill)

	// the penalty must beat any single route
	require.Greater(t, p.UnassignedPenalty, 2*p.Cost.Distance(a.Start, p.Jobs[0].Location)*2)
}

func TestBuildDuplicateFleetKeys(t *testing.T) {
	loc := &model.Location{Latitude: 1, Longitude: 1}
	in := model.Problem{
		Fleet: []model.Vehicle{
			{Key: "a", Location: loc, CostPerDistance: 1},
			{Key: "b", Location: loc, CostPerDistance: 1},
			{Key: "a", Location: loc, CostPerDistance: 1},
		},
		Requests: []model.ServiceRequest{{Key: "r", Location: loc, ServiceType: "fryerOil"}},
	}
	_, err := Build(in, nil)
	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, map[string]int{"a": 2}, verr.DuplicateFleetKeys)
	require.Empty(t, verr.DuplicateRequestKeys)
	require.Contains(t, err.Error(), `duplicate keys in fleet: {"a":2}`)
}

func TestBuildDuplicateRequestKeys(t *testing.T) {
	loc := &model.Location{Latitude: 1, Longitude: 1}
	in := model.Problem{
		Fleet: []model.Vehicle{{Key: "a", Location: loc, CostPerDistance: 1}},
		Requests: []model.ServiceRequest{
			{Key: "r", Location: loc, ServiceType: "fryerOil"},
			{Key: "r", Location: loc, ServiceType: "greaseTrap"},
			{Key: "s", Location: loc, ServiceType: "greaseTrap"},
			{Key: "r", Location: loc, ServiceType: "hoodCleaning"},
		},
	}
	_, err := Build(in, nil)
	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, map[string]int{"r": 3}, verr.DuplicateRequestKeys)
	require.Contains(t, err.Error(), `duplicate keys in requests: {"r":3}`)
}

func TestBuildReportsBothDuplicateKinds(t *testing.T) {
	loc := &model.Location{Latitude: 1, Longitude: 1}
	in := model.Problem{
		Fleet: []model.Vehicle{{Key: "a", Location: loc, CostPerDistance: 1}, {Key: "a", Location: loc, CostPerDistance: 1}},
		Requests: []model.ServiceRequest{
			{Key: "r", Location: loc, ServiceType: "fryerOil"},
			{Key: "r", Location: loc, ServiceType: "fryerOil"},
		},
	}
	_, err := Build(in, nil)
	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, map[string]int{"a": 2}, verr.DuplicateFleetKeys)
	require.Equal(t, map[string]int{"r": 2}, verr.DuplicateRequestKeys)
}

func TestBuildUnknownServiceTypeIsInvariantViolation(t *testing.T) {
	loc := &model.Location{Latitude: 1, Longitude: 1}
	_, err := Build(model.Problem{
		Fleet:    []model.Vehicle{{Key: "a", Location: loc, CostPerDistance: 1}},
		Requests: []model.ServiceRequest{{Key: "r", Location: loc, ServiceType: "pizza"}},
	}, nil)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestServiceTypesMatchDimensions(t *testing.T) {
	v := schema.New()
	for _, d := range Dimensions() {
		_, err := v.ServiceRequest(map[string]any{
			"key": "r", "location": map[string]any{"latitude": 1.0, "longitude": 2.0}, "serviceType": d.String(),
		})
		require.NoError(t, err, d.String())
		got, ok := ParseDimension(d.String())
		require.True(t, ok)
		require.Equal(t, d, got)
	}
	_, ok := ParseDimension("pizza")
	require.False(t, ok)
	require.False(t, NumDimensions.Valid())
	require.Equal(t, "Dimension(4)", NumDimensions.String())
}
