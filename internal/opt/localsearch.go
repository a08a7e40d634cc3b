package opt

import "pickbatch/internal/model"

// search keeps per-batch tour lengths and sizes next to the solution so a
// tentative move only re-routes the two batches it touches.
type search struct {
	p     Params
	sol   model.Solution
	lens  []int
	sizes []int
}

func newSearch(sol model.Solution, p Params) *search {
	s := &search{p: p, sol: sol, lens: make([]int, len(sol)), sizes: make([]int, len(sol))}
	for i, b := range sol {
		s.lens[i] = tourLength(p, b.Orders)
		s.sizes[i] = b.Size()
	}
	return s
}

func (s *search) total() int {
	t := 0
	for _, l := range s.lens {
		t += l
	}
	return t
}

func (s *search) set(i int, orders []model.Order, length int) {
	s.sol[i].Orders = orders
	s.lens[i] = length
	s.sizes[i] = sizeOf(orders)
}

// LocalSearch alternates the swap and shift neighbourhoods until a full
// swap+shift cycle no longer lowers the total tour length. The solution is
// modified in place and returned without empty batches.
func LocalSearch(sol model.Solution, p Params) model.Solution {
	s := newSearch(sol, p)
	total := s.total()
	for {
		s.swap()
		s.shift()
		next := s.total()
		if next >= total {
			break
		}
		total = next
	}
	return s.sol
}

// Swap applies first-improvement order exchanges until none improves.
func Swap(sol model.Solution, p Params) model.Solution {
	s := newSearch(sol, p)
	s.swap()
	return s.sol
}

// Shift applies first-improvement order moves until none improves, then
// drops emptied batches.
func Shift(sol model.Solution, p Params) model.Solution {
	s := newSearch(sol, p)
	s.shift()
	return s.sol
}

func (s *search) swap() {
	for s.swapOnce() {
	}
}

func (s *search) shift() {
	for s.shiftOnce() {
	}
	s.compact()
}

// swapOnce exchanges one order of batch i with one order of batch j when the
// pair's combined tour strictly shrinks and both stay within capacity.
func (s *search) swapOnce() bool {
	max := s.p.MaxBatchSize
	for i := range s.sol {
		for j := range s.sol {
			if i == j {
				continue
			}
			bi, bj := s.sol[i].Orders, s.sol[j].Orders
			for a, oa := range bi {
				for b, ob := range bj {
					if s.sizes[i]-oa.Size()+ob.Size() > max || s.sizes[j]-ob.Size()+oa.Size() > max {
						continue
					}
					ni := append(without(bi, a), ob)
					nj := append(without(bj, b), oa)
					li, lj := tourLength(s.p, ni), tourLength(s.p, nj)
					if li+lj < s.lens[i]+s.lens[j] {
						s.set(i, ni, li)
						s.set(j, nj, lj)
						return true
					}
				}
			}
		}
	}
	return false
}

// shiftOnce moves one order from batch i to batch j under the same rule.
func (s *search) shiftOnce() bool {
	max := s.p.MaxBatchSize
	for i := range s.sol {
		for j := range s.sol {
			if i == j {
				continue
			}
			bi, bj := s.sol[i].Orders, s.sol[j].Orders
			for a, oa := range bi {
				if s.sizes[i]-oa.Size() > max || s.sizes[j]+oa.Size() > max {
					continue
				}
				ni := without(bi, a)
				nj := append(append(make([]model.Order, 0, len(bj)+1), bj...), oa)
				li, lj := tourLength(s.p, ni), tourLength(s.p, nj)
				if li+lj < s.lens[i]+s.lens[j] {
					s.set(i, ni, li)
					s.set(j, nj, lj)
					return true
				}
			}
		}
	}
	return false
}

func (s *search) compact() {
	n := 0
	for i, b := range s.sol {
		if len(b.Orders) == 0 {
			continue
		}
		s.sol[n], s.lens[n], s.sizes[n] = b, s.lens[i], s.sizes[i]
		n++
	}
	s.sol, s.lens, s.sizes = s.sol[:n], s.lens[:n], s.sizes[:n]
}

// without returns a fresh slice holding orders minus index idx, with room
// for one more element.
func without(orders []model.Order, idx int) []model.Order {
	out := make([]model.Order, 0, len(orders))
	out = append(out, orders[:idx]...)
	return append(out, orders[idx+1:]...)
}
