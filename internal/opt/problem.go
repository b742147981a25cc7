package opt

import (
	"errors"
	"fmt"
	"math"
)

// Point is a location in the cost model's coordinate space.
type Point struct{ Lat, Lng float64 }

// TW is a feasible interval; End is +Inf when unbounded.
type TW struct{ Start, End float64 }

// Unbounded is the window used when none was specified.
var Unbounded = TW{Start: 0, End: math.Inf(1)}

func (tw TW) Bounded() bool { return !math.IsInf(tw.End, 1) }

type VehicleType struct {
	ID              string
	Capacity        Capacity
	CostPerDistance float64
}

type Vehicle struct {
	ID            string
	Type          VehicleType
	Start         Point
	EarliestStart float64
	LatestArrival float64 // +Inf when the vehicle has no endBy
	Skills        SkillSet
}

type Job struct {
	ID          string
	Location    Point
	Skill       Dimension
	Demand      int
	ServiceTime float64
	TW          TW
}

// Problem is the internal routing model consumed by Solve.
type Problem struct {
	Vehicles []Vehicle
	Jobs     []Job
	Cost     CostModel
	// UnassignedPenalty is charged per unassigned job in the search objective and exceeds
	// any single insertion cost, so assigning a job always beats leaving it out.
	UnassignedPenalty float64
}

// ErrInvariantViolation marks a broken precondition of the internal model. It is a defect,
// never an ordinary infeasibility.
var ErrInvariantViolation = errors.New("internal invariant violation")

// InvariantError describes which part of the internal model was inconsistent.
type InvariantError struct {
	Where  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvariantViolation, e.Where, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// check verifies the invariants Build establishes.
func (p *Problem) check() error {
	if p.Cost == nil {
		return &InvariantError{Where: "problem", Detail: "no cost model"}
	}
	for i, j := range p.Jobs {
		if !j.Skill.Valid() {
			return &InvariantError{Where: fmt.Sprintf("job %q", j.ID), Detail: fmt.Sprintf("unknown dimension %d", uint8(j.Skill))}
		}
		if j.Demand < 0 || j.ServiceTime < 0 || j.TW.Start > j.TW.End {
			return &InvariantError{Where: fmt.Sprintf("job %d", i), Detail: "negative demand, service time or inverted window"}
		}
	}
	for _, v := range p.Vehicles {
		if v.Type.CostPerDistance < 0 || v.EarliestStart > v.LatestArrival {
			return &InvariantError{Where: fmt.Sprintf("vehicle %q", v.ID), Detail: "negative cost or inverted operating window"}
		}
	}
	return nil
}
