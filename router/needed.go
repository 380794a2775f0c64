package router

import (
	"slices"

	"github.com/notargets/gridrouter/grid"
)

// neededCells returns, sorted and without duplicates, every cell referenced
// by the stencil of an owned cell that is not itself owned
func neededCells(owned []int64, d grid.Dims, s grid.Stencil) []int64 {
	mine := make(map[int64]struct{}, len(owned))
	for _, gid := range owned {
		mine[gid] = struct{}{}
	}

	var footprint, needed []int64
	for _, gid := range owned {
		footprint = s.Footprint(d, gid, footprint[:0])
		for _, nbr := range footprint {
			if _, ok := mine[nbr]; !ok {
				needed = append(needed, nbr)
			}
		}
	}

	slices.Sort(needed)
	return slices.Compact(needed)
}
