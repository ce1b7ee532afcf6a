// Package ordering implements fractional order values for sibling lists.
//
// Items in a sibling scope (tasks within an epic, epics within a project)
// carry a float64 order. Inserting between two neighbors assigns the midpoint
// instead of renumbering every sibling; after many midpoint insertions the
// gaps degenerate and callers rebalance the whole scope back to clean
// integers.
package ordering

import "math"

const (
	// precision is the number of decimal digits midpoints are rounded to.
	// Rounding bounds floating-point drift so persisted orders stay short.
	precision = 4

	// MinGap is the smallest usable gap between two neighbors. An insert
	// into a gap below this threshold falls back to prev+MinGap; repeated
	// hits are the signal to rebalance.
	MinGap = 0.0001
)

// round truncates v to the configured decimal precision.
func round(v float64) float64 {
	shift := math.Pow10(precision)
	return math.Round(v*shift) / shift
}

// Between returns an order value placing an item between prev and next.
// Nil stands for "no neighbor on that side":
//
//	Between(nil, nil)  → 1 (empty list)
//	Between(nil, &n)   → head insert: n-1 if positive, else n/2
//	Between(&p, nil)   → tail insert: p+1
//	Between(&p, &n)    → rounded midpoint, or p+MinGap when the gap is
//	                     too small for a midpoint to stay clear of p
func Between(prev, next *float64) float64 {
	switch {
	case prev == nil && next == nil:
		return 1
	case prev == nil:
		if *next-1 > 0 {
			return round(*next - 1)
		}
		return round(*next / 2)
	case next == nil:
		return round(*prev + 1)
	}

	if *next-*prev < MinGap*2 {
		return round(*prev + MinGap)
	}
	return round((*prev + *next) / 2)
}

// Rebalance reassigns clean integer orders (1, 2, 3, …) to the given order
// values, preserving their relative order. The result maps each input
// position to its new order value; ties keep their input position order, so
// the relabeling is stable. Callers decide when degeneration warrants a
// rebalance, typically after an insert falls back to the MinGap path.
func Rebalance(orders []float64) []float64 {
	type entry struct {
		pos   int
		order float64
	}
	sorted := make([]entry, len(orders))
	for i, o := range orders {
		sorted[i] = entry{pos: i, order: o}
	}
	// Insertion sort keeps equal orders in input order without pulling in
	// sort.SliceStable for a list that is rarely longer than a board column.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].order < sorted[j-1].order; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	result := make([]float64, len(orders))
	for rank, e := range sorted {
		result[e.pos] = float64(rank + 1)
	}
	return result
}
