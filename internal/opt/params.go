// Package opt builds picking batches and improves them with an iterated
// local search over swap and shift neighbourhoods.
//
// Everything here is single-threaded and synchronous. Callers hand in an
// owned snapshot whose items have been validated with routing.Validate;
// nothing in this package returns an error.
package opt

import (
	"time"

	"pickbatch/internal/model"
	"pickbatch/internal/routing"
)

// Params configures one optimizer run.
type Params struct {
	Layout       model.Layout
	MaxBatchSize int
	// Rearrangement in [0,1] scales the number of perturbation rounds.
	Rearrangement float64
	// Threshold in [0,1] bounds how much worse a candidate may be and still
	// become the incumbent when the search stops.
	Threshold float64
	// TimeLimit is the improvement window. The window restarts whenever it
	// saw an improvement.
	TimeLimit time.Duration
	// MaxIterations caps perturbation iterations; 0 means no cap.
	MaxIterations int
	// Seed for the perturbation source; 0 seeds from the clock.
	Seed int64
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p Params) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// tourLength ignores geometry errors: snapshots are validated before they
// reach the optimizer.
func tourLength(p Params, orders []model.Order) int {
	n, _ := routing.Length(orders, p.Layout)
	return n
}

// TotalLength sums the tour lengths of every batch in the solution.
func TotalLength(sol model.Solution, layout model.Layout) int {
	p := Params{Layout: layout}
	total := 0
	for _, b := range sol {
		total += tourLength(p, b.Orders)
	}
	return total
}

func sizeOf(orders []model.Order) int {
	n := 0
	for _, o := range orders {
		n += o.Size()
	}
	return n
}
