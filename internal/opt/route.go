package opt

import "math"

// Route is the visit order of one vehicle. Jobs index Problem.Jobs.
type Route struct {
	Vehicle int
	Jobs    []int
}

// Solution holds one route per vehicle (possibly empty) and the jobs left out.
// Cost is the travel cost only; the search objective adds the unassigned penalty.
type Solution struct {
	Routes     []Route
	Unassigned []int
	Cost       float64
}

// Stop is a scheduled visit: service starts at Arrival and ends at Departure.
type Stop struct {
	Job       int
	Arrival   float64
	Departure float64
}

func (s Solution) clone() Solution {
	out := Solution{
		Routes:     make([]Route, len(s.Routes)),
		Unassigned: append([]int(nil), s.Unassigned...),
		Cost:       s.Cost,
	}
	for i, r := range s.Routes {
		out.Routes[i] = Route{Vehicle: r.Vehicle, Jobs: append([]int(nil), r.Jobs...)}
	}
	return out
}

// Assigned counts jobs on routes.
func (s Solution) Assigned() int {
	n := 0
	for _, r := range s.Routes {
		n += len(r.Jobs)
	}
	return n
}

// Objective is the value the search minimises.
func (p *Problem) Objective(s Solution) float64 {
	return s.Cost + p.UnassignedPenalty*float64(len(s.Unassigned))
}

// simulate drives vehicle v through jobs and back to its start. It returns the travelled
// distance and whether every skill, capacity and time constraint holds. Stops are appended
// to out when it is non-nil.
func (p *Problem) simulate(v int, jobs []int, out *[]Stop) (float64, bool) {
	veh := &p.Vehicles[v]
	var load Capacity
	t := veh.EarliestStart
	at := veh.Start
	dist := 0.0
	for _, j := range jobs {
		job := &p.Jobs[j]
		if !veh.Skills.Has(job.Skill) {
			return 0, false
		}
		load[job.Skill] += job.Demand
		if load[job.Skill] > veh.Type.Capacity[job.Skill] {
			return 0, false
		}
		dist += p.Cost.Distance(at, job.Location)
		arrival := math.Max(t+p.Cost.TravelTime(at, job.Location), job.TW.Start)
		if arrival > job.TW.End || arrival > veh.LatestArrival {
			return 0, false
		}
		t = arrival + job.ServiceTime
		if out != nil {
			*out = append(*out, Stop{Job: j, Arrival: arrival, Departure: t})
		}
		at = job.Location
	}
	if len(jobs) > 0 {
		dist += p.Cost.Distance(at, veh.Start)
		if t+p.Cost.TravelTime(at, veh.Start) > veh.LatestArrival {
			return 0, false
		}
	}
	return dist, true
}

// Schedule returns the timed stops of a route. ok is false if the route is infeasible.
func (p *Problem) Schedule(r Route) (stops []Stop, ok bool) {
	stops = make([]Stop, 0, len(r.Jobs))
	_, ok = p.simulate(r.Vehicle, r.Jobs, &stops)
	return stops, ok
}

// RouteCost is the route's distance times its vehicle's cost per distance, ignoring
// feasibility.
func (p *Problem) RouteCost(r Route) float64 {
	if len(r.Jobs) == 0 {
		return 0
	}
	veh := &p.Vehicles[r.Vehicle]
	at := veh.Start
	dist := 0.0
	for _, j := range r.Jobs {
		dist += p.Cost.Distance(at, p.Jobs[j].Location)
		at = p.Jobs[j].Location
	}
	dist += p.Cost.Distance(at, veh.Start)
	return dist * veh.Type.CostPerDistance
}

func (p *Problem) totalCost(s Solution) float64 {
	c := 0.0
	for _, r := range s.Routes {
		c += p.RouteCost(r)
	}
	return c
}

// insertion is a candidate position for one job.
type insertion struct {
	route, pos int
	cost       float64
}

var noInsertion = insertion{route: -1, pos: -1, cost: math.Inf(1)}

// canServe is the cheap pre-check before trying positions on route r.
func (p *Problem) canServe(r Route, j int) bool {
	veh := &p.Vehicles[r.Vehicle]
	job := &p.Jobs[j]
	if !veh.Skills.Has(job.Skill) {
		return false
	}
	load := job.Demand
	for _, k := range r.Jobs {
		if p.Jobs[k].Skill == job.Skill {
			load += p.Jobs[k].Demand
		}
	}
	return load <= veh.Type.Capacity[job.Skill]
}

// insertCost is the added route cost of placing j at pos.
func (p *Problem) insertCost(r Route, j, pos int) float64 {
	veh := &p.Vehicles[r.Vehicle]
	prev, next := veh.Start, veh.Start
	if pos > 0 {
		prev = p.Jobs[r.Jobs[pos-1]].Location
	}
	if pos < len(r.Jobs) {
		next = p.Jobs[r.Jobs[pos]].Location
	}
	loc := p.Jobs[j].Location
	d := p.Cost.Distance(prev, loc) + p.Cost.Distance(loc, next) - p.Cost.Distance(prev, next)
	return d * veh.Type.CostPerDistance
}

// bestInsertions returns the cheapest feasible insertion of j and the cheapest one on a
// different route. Ties keep the first found, scanning routes then positions in order.
func (p *Problem) bestInsertions(s *Solution, j int, buf []int) (best, second insertion, _ []int) {
	best, second = noInsertion, noInsertion
	for ri, r := range s.Routes {
		if !p.canServe(r, j) {
			continue
		}
		routeBest := noInsertion
		for pos := 0; pos <= len(r.Jobs); pos++ {
			c := p.insertCost(r, j, pos)
			if c >= routeBest.cost {
				continue
			}
			buf = append(buf[:0], r.Jobs[:pos]...)
			buf = append(buf, j)
			buf = append(buf, r.Jobs[pos:]...)
			if _, ok := p.simulate(r.Vehicle, buf, nil); ok {
				routeBest = insertion{route: ri, pos: pos, cost: c}
			}
		}
		switch {
		case routeBest.cost < best.cost:
			second = best
			best = routeBest
		case routeBest.cost < second.cost:
			second = routeBest
		}
	}
	return best, second, buf
}

func (s *Solution) insert(at insertion, j int) {
	r := &s.Routes[at.route]
	r.Jobs = append(r.Jobs, 0)
	copy(r.Jobs[at.pos+1:], r.Jobs[at.pos:])
	r.Jobs[at.pos] = j
}
