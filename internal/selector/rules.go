package selector

import (
	"fmt"
	"sort"
	"strings"

	"pickbatch/internal/model"
	"pickbatch/internal/routing"
)

// Rule orders a list of batches for sequential release.
type Rule string

const (
	// First keeps the batches in first-come-first-served order.
	First Rule = "FIRST"
	// Short releases the shortest tour first.
	Short Rule = "SHORT"
	// Long releases the longest tour first.
	Long Rule = "LONG"
	// Savings releases the batch with the largest consolidation benefit first.
	Savings Rule = "SAV"
)

// ParseRule accepts a rule name in any case.
func ParseRule(s string) (Rule, error) {
	switch r := Rule(strings.ToUpper(strings.TrimSpace(s))); r {
	case First, Short, Long, Savings:
		return r, nil
	}
	return "", fmt.Errorf("unknown selection rule %q (want FIRST, SHORT, LONG or SAV)", s)
}

// Sort returns the batches ordered by rule. Ties keep their input order and
// the input slice is left untouched.
func Sort(batches []model.Batch, rule Rule, layout model.Layout) ([]model.Batch, error) {
	out := append([]model.Batch(nil), batches...)
	if rule == First || len(out) < 2 {
		return out, nil
	}
	keys := make(map[string]int, len(out))
	for _, b := range out {
		k, err := key(b, rule, layout)
		if err != nil {
			return nil, err
		}
		keys[b.ID] = k
	}
	switch rule {
	case Short:
		sort.SliceStable(out, func(i, j int) bool { return keys[out[i].ID] < keys[out[j].ID] })
	case Long, Savings:
		sort.SliceStable(out, func(i, j int) bool { return keys[out[i].ID] > keys[out[j].ID] })
	default:
		return nil, fmt.Errorf("unknown selection rule %q", rule)
	}
	return out, nil
}

func key(b model.Batch, rule Rule, layout model.Layout) (int, error) {
	if rule == Savings {
		return Saving(b, layout)
	}
	t, err := routing.BatchTour(b, layout)
	return t.Length, err
}

// Saving is the sum of the stand-alone tour lengths of the batch's orders
// minus the batch's own tour length.
func Saving(b model.Batch, layout model.Layout) (int, error) {
	t, err := routing.BatchTour(b, layout)
	if err != nil {
		return 0, err
	}
	alone := 0
	for _, o := range b.Orders {
		ot, err := routing.OrderTour(o, layout)
		if err != nil {
			return 0, err
		}
		alone += ot.Length
	}
	return alone - t.Length, nil
}
