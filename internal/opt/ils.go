package opt

import (
	"time"

	"pickbatch/internal/model"
)

// Metrics summarises one ILS run.
type Metrics struct {
	Iterations   int `json:"iterations"`
	Improvements int `json:"improvements"`
	// WindowRestarts counts time windows that ended with an improvement.
	WindowRestarts  int           `json:"windowRestarts"`
	AcceptedWorse   bool          `json:"acceptedWorse"`
	StartLength     int           `json:"startLength"`
	InitialLength   int           `json:"initialLength"`
	IncumbentLength int           `json:"incumbentLength"`
	BestLength      int           `json:"bestLength"`
	Batches         int           `json:"batches"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Solve runs the iterated local search. The start solution is local-searched
// into the best-so-far solution (asterisk) and the incumbent. Each iteration
// perturbs the incumbent and local-searches the result; a strictly shorter
// total replaces both. When the time window runs out the window restarts if
// it saw an improvement; otherwise the threshold rule decides whether the
// last candidate becomes the incumbent and the search stops.
//
// A single iteration is not interruptible, so a call can overrun TimeLimit by
// one perturbation plus one local search convergence.
func Solve(start model.Solution, p Params) (model.Solution, Metrics) {
	began := p.now()
	rng := newRand(p.Seed, func() int64 { return began.UnixNano() })
	m := Metrics{StartLength: TotalLength(start, p.Layout)}

	asterisk := LocalSearch(start.Clone(), p)
	incumbent := asterisk.Clone()
	best := TotalLength(asterisk, p.Layout)
	m.InitialLength = best

	windowStart := p.now()
	improved := false
	for {
		if p.MaxIterations > 0 && m.Iterations >= p.MaxIterations {
			break
		}
		m.Iterations++
		s := LocalSearch(Perturb(incumbent, p, rng), p)
		d := TotalLength(s, p.Layout)
		if d < best {
			asterisk = s.Clone()
			incumbent = s
			best = d
			improved = true
			m.Improvements++
		}
		if p.now().Sub(windowStart) <= p.TimeLimit {
			continue
		}
		if improved {
			improved = false
			windowStart = p.now()
			m.WindowRestarts++
			continue
		}
		if best == 0 || float64(d-best) < p.Threshold*float64(best) {
			incumbent = s
			m.AcceptedWorse = d > best
		}
		break
	}
	m.BestLength = best
	m.IncumbentLength = TotalLength(incumbent, p.Layout)
	m.Batches = len(asterisk)
	m.Elapsed = p.now().Sub(began)
	return asterisk, m
}
