package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"
)

const (
	DefaultMaxIterations = 256
	DefaultInitialTemp   = 0.1
	// DefaultCooling brings the temperature to about 1% of its start after 256 iterations.
	DefaultCooling = 0.982

	snapshotEvery   = 50
	shawDeterminism = 3
)

// Removal operators.
const (
	RemoveRandom = iota
	RemoveShaw
)

// Insertion operators.
const (
	InsertGreedy = iota
	InsertRegret2
)

// Options configures one search. Zero values select the defaults.
type Options struct {
	MaxIterations int
	// Seed 0 means 1, so unseeded runs are reproducible too.
	Seed             int64
	InitialTemp      float64
	Cooling          float64
	RemovalWeights   [2]float64 // random, shaw
	InsertionWeights [2]float64 // greedy, regret2
	// OnImprove is called synchronously each time a new best solution is found.
	OnImprove func(Progress)
}

// Progress describes a new best solution.
type Progress struct {
	Iteration  int     `json:"iteration"`
	BestCost   float64 `json:"bestCost"`
	Unassigned int     `json:"unassigned"`
}

type Metrics struct {
	RemovalSelects        [2]int           `json:"removalSelects"` // random, shaw
	InsertSelects         [2]int           `json:"insertSelects"`  // greedy, regret2
	Iterations            int              `json:"iterations"`
	Improvements          int              `json:"improvements"`
	AcceptedWorse         int              `json:"acceptedWorse"`
	InitialCost           float64          `json:"initialCost"`
	InitialObjective      float64          `json:"initialObjective"`
	BestCost              float64          `json:"bestCost"`
	BestObjective         float64          `json:"bestObjective"`
	Unassigned            int              `json:"unassigned"`
	FinalRemovalWeights   [2]float64       `json:"finalRemovalWeights"`
	FinalInsertionWeights [2]float64       `json:"finalInsertionWeights"`
	Snapshots             []WeightSnapshot `json:"snapshots,omitempty"`
	Cancelled             bool             `json:"cancelled"`
	Elapsed               time.Duration    `json:"elapsedNs"`
}

type WeightSnapshot struct {
	Iteration int        `json:"iteration"`
	Removal   [2]float64 `json:"removal"`
	Insertion [2]float64 `json:"insertion"`
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	if o.InitialTemp <= 0 {
		o.InitialTemp = DefaultInitialTemp
	}
	if o.Cooling <= 0 || o.Cooling >= 1 {
		o.Cooling = DefaultCooling
	}
	if o.RemovalWeights == ([2]float64{}) {
		o.RemovalWeights = [2]float64{1, 1}
	}
	if o.InsertionWeights == ([2]float64{}) {
		o.InsertionWeights = [2]float64{1, 1}
	}
	return o
}

// Solve runs adaptive ruin-and-recreate with simulated-annealing acceptance and returns the
// best solution seen. Infeasible jobs end up unassigned, never as an error. Cancelling ctx
// stops the search early and returns the best so far with Metrics.Cancelled set. For a
// fixed seed the first n iterations do not depend on MaxIterations, so a larger budget
// never returns a worse objective. The objective orders results by unassigned count first
// and travel cost second: a larger budget may raise Cost when it assigns more jobs.
func Solve(ctx context.Context, p *Problem, o Options) (Solution, Metrics, error) {
	if err := p.check(); err != nil {
		return Solution{}, Metrics{}, err
	}
	o = o.withDefaults()
	started := time.Now()
	e := &engine{p: p, rng: rand.New(rand.NewSource(o.Seed))}

	curr := e.initial()
	best := curr.clone()
	currObj, bestObj := p.Objective(curr), p.Objective(curr)
	remW, insW := o.RemovalWeights, o.InsertionWeights
	temp := o.InitialTemp
	m := Metrics{InitialCost: curr.Cost, InitialObjective: currObj}

	for m.Iterations < o.MaxIterations {
		if ctx.Err() != nil {
			m.Cancelled = true
			break
		}
		m.Iterations++
		op := selectOp(remW[:], e.rng)
		m.RemovalSelects[op]++
		ip := selectOp(insW[:], e.rng)
		m.InsertSelects[ip]++

		cand := curr.clone()
		var removed []int
		switch op {
		case RemoveRandom:
			removed = e.randomRemoval(&cand, e.ruinSize(cand))
		case RemoveShaw:
			removed = e.shawRemoval(&cand, e.ruinSize(cand))
		}
		pool := append(removed, cand.Unassigned...)
		cand.Unassigned = cand.Unassigned[:0]
		switch ip {
		case InsertGreedy:
			e.greedyInsert(&cand, pool)
		case InsertRegret2:
			e.regretInsert(&cand, pool)
		}
		for i := range cand.Routes {
			e.improveRoute(&cand.Routes[i])
		}
		sort.Ints(cand.Unassigned)
		cand.Cost = p.totalCost(cand)
		candObj := p.Objective(cand)

		// relative to travel cost, so a change in unassigned jobs is never accepted
		// as a small deterioration
		delta := candObj - currObj
		accept := delta <= 0
		if !accept && e.rng.Float64() < math.Exp(-delta/math.Max(curr.Cost, 1e-9)/temp) {
			accept = true
			m.AcceptedWorse++
		}
		switch {
		case accept && candObj < bestObj:
			best, bestObj = cand.clone(), candObj
			remW[op] += 0.1
			insW[ip] += 0.1
			m.Improvements++
			if o.OnImprove != nil {
				o.OnImprove(Progress{Iteration: m.Iterations, BestCost: best.Cost, Unassigned: len(best.Unassigned)})
			}
		case accept:
			remW[op] += 0.01
			insW[ip] += 0.01
		default:
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
		}
		if accept {
			curr, currObj = cand, candObj
		}
		temp *= o.Cooling
		if m.Iterations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{Iteration: m.Iterations, Removal: remW, Insertion: insW})
		}
	}
	m.BestCost = best.Cost
	m.BestObjective = bestObj
	m.Unassigned = len(best.Unassigned)
	m.FinalRemovalWeights = remW
	m.FinalInsertionWeights = insW
	m.Elapsed = time.Since(started)
	return best, m, nil
}

type engine struct {
	p   *Problem
	rng *rand.Rand
	buf []int
}

// initial inserts every job in input order at its cheapest feasible position.
func (e *engine) initial() Solution {
	s := Solution{Routes: make([]Route, len(e.p.Vehicles))}
	for i := range s.Routes {
		s.Routes[i].Vehicle = i
	}
	jobs := make([]int, len(e.p.Jobs))
	for i := range jobs {
		jobs[i] = i
	}
	e.insertInOrder(&s, jobs)
	sort.Ints(s.Unassigned)
	s.Cost = e.p.totalCost(s)
	return s
}

// ruinSize draws k in [1, max(2, 30% of assigned)], capped at the assigned count.
func (e *engine) ruinSize(s Solution) int {
	assigned := s.Assigned()
	if assigned == 0 {
		return 0
	}
	hi := assigned * 3 / 10
	if hi < 2 {
		hi = 2
	}
	k := 1 + e.rng.Intn(hi)
	if k > assigned {
		k = assigned
	}
	return k
}

func assignedJobs(s *Solution) []int {
	var out []int
	for _, r := range s.Routes {
		out = append(out, r.Jobs...)
	}
	return out
}

func removeJobs(s *Solution, removed []int) {
	if len(removed) == 0 {
		return
	}
	drop := make(map[int]bool, len(removed))
	for _, j := range removed {
		drop[j] = true
	}
	for i := range s.Routes {
		kept := s.Routes[i].Jobs[:0]
		for _, j := range s.Routes[i].Jobs {
			if !drop[j] {
				kept = append(kept, j)
			}
		}
		s.Routes[i].Jobs = kept
	}
}

func (e *engine) randomRemoval(s *Solution, k int) []int {
	all := assignedJobs(s)
	removed := make([]int, 0, k)
	for i := 0; i < k && len(all) > 0; i++ {
		j := e.rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	removeJobs(s, removed)
	return removed
}

// shawRemoval removes jobs related by distance and time-window start, biased towards the
// most related ones.
func (e *engine) shawRemoval(s *Solution, k int) []int {
	all := assignedJobs(s)
	if len(all) == 0 || k == 0 {
		return nil
	}
	maxDist, maxStart := 1e-9, 1e-9
	for _, a := range all {
		maxStart = math.Max(maxStart, e.p.Jobs[a].TW.Start)
		for _, b := range all {
			maxDist = math.Max(maxDist, e.p.Cost.Distance(e.p.Jobs[a].Location, e.p.Jobs[b].Location))
		}
	}
	related := func(a, b int) float64 {
		ja, jb := &e.p.Jobs[a], &e.p.Jobs[b]
		return e.p.Cost.Distance(ja.Location, jb.Location)/maxDist + math.Abs(ja.TW.Start-jb.TW.Start)/maxStart
	}

	seed := e.rng.Intn(len(all))
	removed := []int{all[seed]}
	rest := append(all[:seed:seed], all[seed+1:]...)
	for len(removed) < k && len(rest) > 0 {
		ref := removed[e.rng.Intn(len(removed))]
		sort.SliceStable(rest, func(i, j int) bool { return related(ref, rest[i]) < related(ref, rest[j]) })
		idx := int(math.Pow(e.rng.Float64(), shawDeterminism) * float64(len(rest)))
		removed = append(removed, rest[idx])
		rest = append(rest[:idx], rest[idx+1:]...)
	}
	removeJobs(s, removed)
	return removed
}

func (e *engine) insertInOrder(s *Solution, jobs []int) {
	for _, j := range jobs {
		var best insertion
		best, _, e.buf = e.p.bestInsertions(s, j, e.buf)
		if best.route < 0 {
			s.Unassigned = append(s.Unassigned, j)
			continue
		}
		s.insert(best, j)
	}
}

// greedyInsert places the pool in random order, each at its cheapest feasible position.
func (e *engine) greedyInsert(s *Solution, pool []int) {
	e.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	e.insertInOrder(s, pool)
}

// regretInsert repeatedly places the job that loses most by not getting its best route.
// Jobs with a single feasible route have unbounded regret; the pool is shuffled so ties
// are broken randomly.
func (e *engine) regretInsert(s *Solution, pool []int) {
	e.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	pending := append([]int(nil), pool...)
	for len(pending) > 0 {
		pick, pickAt, pickRegret := -1, noInsertion, math.Inf(-1)
		kept := pending[:0]
		for _, j := range pending {
			var best, second insertion
			best, second, e.buf = e.p.bestInsertions(s, j, e.buf)
			if best.route < 0 {
				s.Unassigned = append(s.Unassigned, j)
				continue
			}
			kept = append(kept, j)
			regret := second.cost - best.cost
			if regret > pickRegret || (regret == pickRegret && best.cost < pickAt.cost) {
				pick, pickAt, pickRegret = j, best, regret
			}
		}
		pending = kept
		if pick < 0 {
			break
		}
		s.insert(pickAt, pick)
		for i, j := range pending {
			if j == pick {
				pending = append(pending[:i], pending[i+1:]...)
				break
			}
		}
	}
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
