package opt

import (
	"math/rand"

	"pickbatch/internal/model"
)

// Perturb exchanges order blocks between random batch pairs. Each of the
// floor(n*Rearrangement)+1 rounds takes the first q orders of two distinct
// batches and hands each block to the other batch when it fits as a whole.
// Blocks that do not fit are packed into new batches. The input is not
// modified; the result has no empty batches.
func Perturb(sol model.Solution, p Params, rng *rand.Rand) model.Solution {
	out := sol.Clone()
	if len(out) < 2 {
		return out
	}
	rounds := int(float64(len(out))*p.Rearrangement) + 1
	for r := 0; r < rounds; r++ {
		n := len(out)
		k := rng.Intn(n)
		l := rng.Intn(n - 1)
		if l >= k {
			l++
		}
		m := min(len(out[k].Orders), len(out[l].Orders))
		if m == 0 {
			continue
		}
		q := 1 + rng.Intn(m)

		takeK := append([]model.Order(nil), out[k].Orders[:q]...)
		takeL := append([]model.Order(nil), out[l].Orders[:q]...)
		restK := append([]model.Order(nil), out[k].Orders[q:]...)
		restL := append([]model.Order(nil), out[l].Orders[q:]...)

		var overflow []model.Order
		if sizeOf(restL)+sizeOf(takeK) <= p.MaxBatchSize {
			restL = append(restL, takeK...)
		} else {
			overflow = append(overflow, takeK...)
		}
		if sizeOf(restK)+sizeOf(takeL) <= p.MaxBatchSize {
			restK = append(restK, takeL...)
		} else {
			overflow = append(overflow, takeL...)
		}
		out[k].Orders = restK
		out[l].Orders = restL
		if len(overflow) > 0 {
			out = append(out, BuildInitialBatches(overflow, p.MaxBatchSize)...)
		}
	}
	return out.Compact()
}

func newRand(seed int64, now func() int64) *rand.Rand {
	if seed == 0 {
		seed = now()
	}
	return rand.New(rand.NewSource(seed))
}
