package opt

import (
	"fmt"
	"math"

	"fleetopt/internal/model"
)

// Format renders a solution for callers. Routes follow fleet order and empty routes are
// left out; unassigned keys follow request order. Costs and times are rounded. A route
// whose schedule is infeasible is an InvariantError, so its jobs never silently vanish.
func Format(p *Problem, s Solution) (model.SolutionResponse, error) {
	out := model.SolutionResponse{
		TotalCost:      int(math.Round(s.Cost)),
		UnassignedJobs: make([]string, 0, len(s.Unassigned)),
		Routes:         []model.RouteOut{},
	}
	for _, j := range s.Unassigned {
		out.UnassignedJobs = append(out.UnassignedJobs, p.Jobs[j].ID)
	}
	for _, r := range s.Routes {
		if len(r.Jobs) == 0 {
			continue
		}
		stops, ok := p.Schedule(r)
		if !ok {
			return model.SolutionResponse{}, &InvariantError{
				Where:  fmt.Sprintf("route of vehicle %q", p.Vehicles[r.Vehicle].ID),
				Detail: fmt.Sprintf("infeasible schedule for %d jobs", len(r.Jobs)),
			}
		}
		ro := model.RouteOut{Vehicle: p.Vehicles[r.Vehicle].ID, Jobs: make([]model.ActivityOut, 0, len(stops))}
		for _, st := range stops {
			ro.Jobs = append(ro.Jobs, model.ActivityOut{
				Request:       p.Jobs[st.Job].ID,
				ArrivalTime:   int(math.Round(st.Arrival)),
				DepartureTime: int(math.Round(st.Departure)),
			})
		}
		out.Routes = append(out.Routes, ro)
	}
	return out, nil
}
