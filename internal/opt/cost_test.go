package opt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEuclidean(t *testing.T) {
	var c Euclidean
	a, b, d := Point{Lat: 0, Lng: 0}, Point{Lat: 3, Lng: 4}, Point{Lat: 10, Lng: -2}
	require.Equal(t, 5.0, c.Distance(a, b))
	require.Equal(t, c.Distance(a, b), c.Distance(b, a))
	require.Zero(t, c.Distance(d, d))
	require.LessOrEqual(t, c.Distance(a, d), c.Distance(a, b)+c.Distance(b, d))
	require.Equal(t, c.Distance(b, d), c.TravelTime(b, d))
}

func TestHaversine(t *testing.T) {
	h := Haversine{SpeedKph: 36}
	la := Point{Lat: 34.0522, Lng: -118.2437}
	sf := Point{Lat: 37.7749, Lng: -122.4194}
	require.InDelta(t, 559_000, h.Distance(la, sf), 2_000)
	require.InDelta(t, h.Distance(la, sf)/10, h.TravelTime(la, sf), 1e-6)
	require.Equal(t, h.Distance(la, sf), h.Distance(sf, la))
	require.InDelta(t, Haversine{}.Distance(la, sf)/(50/3.6), Haversine{}.TravelTime(la, sf), 1e-6)
}

func TestCostModelFor(t *testing.T) {
	c, err := CostModelFor("", 0)
	require.NoError(t, err)
	require.Equal(t, Euclidean{}, c)

	c, err = CostModelFor(" Haversine ", 40)
	require.NoError(t, err)
	require.Equal(t, Haversine{SpeedKph: 40}, c)

	_, err = CostModelFor("teleport", 0)
	require.Error(t, err)
}
