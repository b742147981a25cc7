package opt

const improveEps = 1e-9

// improveRoute runs 2-opt and single-job relocation on one route until neither finds a
// feasible, strictly cheaper order.
func (e *engine) improveRoute(r *Route) {
	if len(r.Jobs) < 2 {
		return
	}
	cost := e.p.RouteCost(*r)
	for {
		improved := false
		if order, c, ok := e.twoOpt(*r, cost); ok {
			r.Jobs, cost, improved = order, c, true
		}
		if order, c, ok := e.relocate(*r, cost); ok {
			r.Jobs, cost, improved = order, c, true
		}
		if !improved {
			return
		}
	}
}

// twoOpt returns the first improving segment reversal.
func (e *engine) twoOpt(r Route, cost float64) ([]int, float64, bool) {
	n := len(r.Jobs)
	for i := 0; i < n-1; i++ {
		for k := i + 1; k < n; k++ {
			cand := Route{Vehicle: r.Vehicle, Jobs: twoOptSwap(r.Jobs, i, k)}
			if c := e.p.RouteCost(cand); c+improveEps < cost {
				if _, ok := e.p.simulate(r.Vehicle, cand.Jobs, nil); ok {
					return cand.Jobs, c, true
				}
			}
		}
	}
	return nil, 0, false
}

// relocate returns the first improving move of one job to another position.
func (e *engine) relocate(r Route, cost float64) ([]int, float64, bool) {
	n := len(r.Jobs)
	for from := 0; from < n; from++ {
		for to := 0; to < n; to++ {
			if to == from {
				continue
			}
			cand := Route{Vehicle: r.Vehicle, Jobs: moveJob(r.Jobs, from, to)}
			if c := e.p.RouteCost(cand); c+improveEps < cost {
				if _, ok := e.p.simulate(r.Vehicle, cand.Jobs, nil); ok {
					return cand.Jobs, c, true
				}
			}
		}
	}
	return nil, 0, false
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

// moveJob returns ord with the element at from moved to index to.
func moveJob(ord []int, from, to int) []int {
	j := ord[from]
	out := make([]int, 0, len(ord))
	out = append(out, ord[:from]...)
	out = append(out, ord[from+1:]...)
	out = append(out[:to], append([]int{j}, out[to:]...)...)
	return out
}
