package opt

import (
	"fmt"
	"math"

	"fleetopt/internal/model"
	"fleetopt/internal/schema"
)

// TypeSuffix is appended to a vehicle key to name its type record.
const TypeSuffix = "__type"

// Build turns a normalized problem into the routing model. Duplicate keys come back as a
// *schema.ValidationError naming every duplicated key with its count; a nil cost model
// selects Euclidean.
func Build(in model.Problem, cost CostModel) (*Problem, error) {
	fleetKeys := make([]string, len(in.Fleet))
	for i, v := range in.Fleet {
		fleetKeys[i] = v.Key
	}
	requestKeys := make([]string, len(in.Requests))
	for i, r := range in.Requests {
		requestKeys[i] = r.Key
	}
	if err := schema.Duplicates(countDuplicates(fleetKeys), countDuplicates(requestKeys)); err != nil {
		return nil, err
	}
	if cost == nil {
		cost = Euclidean{}
	}

	p := &Problem{
		Vehicles: make([]Vehicle, 0, len(in.Fleet)),
		Jobs:     make([]Job, 0, len(in.Requests)),
		Cost:     cost,
	}
	for _, v := range in.Fleet {
		veh, err := buildVehicle(v)
		if err != nil {
			return nil, err
		}
		p.Vehicles = append(p.Vehicles, veh)
	}
	for _, r := range in.Requests {
		job, err := buildJob(r)
		if err != nil {
			return nil, err
		}
		p.Jobs = append(p.Jobs, job)
	}
	p.UnassignedPenalty = penaltyFor(p)
	if err := p.check(); err != nil {
		return nil, err
	}
	return p, nil
}

func countDuplicates(keys []string) map[string]int {
	counts := make(map[string]int, len(keys))
	for _, k := range keys {
		counts[k]++
	}
	dup := map[string]int{}
	for k, n := range counts {
		if n > 1 {
			dup[k] = n
		}
	}
	return dup
}

func buildVehicle(v model.Vehicle) (Vehicle, error) {
	if v.Location == nil {
		return Vehicle{}, &InvariantError{Where: fmt.Sprintf("vehicle %q", v.Key), Detail: "no start location"}
	}
	typ := VehicleType{ID: v.Key + TypeSuffix, CostPerDistance: v.CostPerDistance}
	var skills SkillSet
	for d, c := range map[Dimension]*int{
		FryerOil:     v.FryerOil,
		GreaseTrap:   v.GreaseTrap,
		HoodCleaning: v.HoodCleaning,
		HydroJetting: v.HydroJetting,
	} {
		if c != nil {
			typ.Capacity[d] = *c
			skills = skills.With(d)
		}
	}
	out := Vehicle{
		ID:            v.Key,
		Type:          typ,
		Start:         Point{Lat: v.Location.Latitude, Lng: v.Location.Longitude},
		LatestArrival: math.Inf(1),
		Skills:        skills,
	}
	if v.StartAt != nil {
		out.EarliestStart = float64(*v.StartAt)
	}
	if v.EndBy != nil {
		out.LatestArrival = float64(*v.EndBy)
	}
	return out, nil
}

func buildJob(r model.ServiceRequest) (Job, error) {
	where := fmt.Sprintf("request %q", r.Key)
	if r.Location == nil {
		return Job{}, &InvariantError{Where: where, Detail: "no location"}
	}
	skill, ok := ParseDimension(r.ServiceType)
	if !ok {
		return Job{}, &InvariantError{Where: where, Detail: fmt.Sprintf("unknown service type %q", r.ServiceType)}
	}
	job := Job{
		ID:          r.Key,
		Location:    Point{Lat: r.Location.Latitude, Lng: r.Location.Longitude},
		Skill:       skill,
		Demand:      r.MaterialCost,
		ServiceTime: float64(r.TimeCost),
		TW:          Unbounded,
	}
	if r.TimeWindow != nil {
		job.TW = TW{Start: float64(r.TimeWindow.Start), End: float64(r.TimeWindow.End)}
	}
	return job, nil
}

// penaltyFor bounds the travel cost of any solution: it never has more than
// jobs+vehicles legs, each no longer than the longest pairwise distance. Charging more
// than that per unassigned job makes fewer unassigned jobs always win.
func penaltyFor(p *Problem) float64 {
	points := make([]Point, 0, len(p.Vehicles)+len(p.Jobs))
	maxCPD := 0.0
	for _, v := range p.Vehicles {
		points = append(points, v.Start)
		maxCPD = math.Max(maxCPD, v.Type.CostPerDistance)
	}
	for _, j := range p.Jobs {
		points = append(points, j.Location)
	}
	longest := 0.0
	for i := range points {
		for k := i + 1; k < len(points); k++ {
			longest = math.Max(longest, p.Cost.Distance(points[i], points[k]))
		}
	}
	legs := float64(len(p.Jobs) + len(p.Vehicles) + 1)
	return legs*longest*maxCPD + 1
}
