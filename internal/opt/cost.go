package opt

import (
	"fmt"
	"math"
	"strings"
)

// CostModel prices travel between two points. Implementations must be symmetric,
// non-negative, zero only for identical points and obey the triangle inequality; route
// checks assume a detour never shortens travel.
type CostModel interface {
	Distance(from, to Point) float64
	TravelTime(from, to Point) float64
}

// Euclidean is straight-line distance in degree space, with one time unit per distance unit.
// It ignores the earth's curvature; callers needing metres should use Haversine.
type Euclidean struct{}

func (Euclidean) Distance(a, b Point) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

func (e Euclidean) TravelTime(a, b Point) float64 { return e.Distance(a, b) }

// Haversine is great-circle distance in metres; travel time is in seconds at SpeedKph.
type Haversine struct {
	SpeedKph float64
}

func (Haversine) Distance(a, b Point) float64 {
	return haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

func (h Haversine) TravelTime(a, b Point) float64 {
	speed := h.SpeedKph
	if speed <= 0 {
		speed = 50
	}
	return h.Distance(a, b) / (speed / 3.6)
}

// CostModelFor resolves a configured cost model name.
func CostModelFor(name string, speedKph float64) (CostModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "euclidean":
		return Euclidean{}, nil
	case "haversine":
		return Haversine{SpeedKph: speedKph}, nil
	default:
		return nil, fmt.Errorf("unknown cost model %q (allowed: euclidean, haversine)", name)
	}
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
