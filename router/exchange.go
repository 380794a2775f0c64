package router

import (
	"context"
	"fmt"

	"github.com/notargets/gridrouter/comm"
	"github.com/notargets/gridrouter/grid"
)

// requestLists holds one list of cell IDs per candidate, concatenated.
// List i is ids[offsets[i]:offsets[i+1]].
type requestLists struct {
	ids     []int64
	offsets []int
}

func (rl requestLists) list(i int) []int64 {
	return rl.ids[rl.offsets[i]:rl.offsets[i+1]]
}

func (rl requestLists) total() int {
	return rl.offsets[len(rl.offsets)-1]
}

// selectRequests picks, for each candidate, the needed cells that fall
// inside the candidate's bounding sphere grown by eps
func selectRequests(needed []int64, d grid.Dims, candidates []Candidate, eps float64) requestLists {
	rl := requestLists{
		ids:     make([]int64, 0, len(needed)),
		offsets: make([]int, 1, len(candidates)+1),
	}
	for _, c := range candidates {
		for _, gid := range needed {
			if c.Summary.Contains(d.Coordinate(gid), eps) {
				rl.ids = append(rl.ids, gid)
			}
		}
		rl.offsets = append(rl.offsets, len(rl.ids))
	}
	return rl
}

// exchangeRequests sends each candidate the list of cells this rank wants
// from it and returns the lists every candidate sent back. The first round
// negotiates list lengths so the second round can size its receive buffer.
// Both rounds complete on this rank before the function returns.
func exchangeRequests(ctx context.Context, g comm.Group, candidates []Candidate, outgoing requestLists) (requestLists, error) {
	n := len(candidates)

	// Round 1: sizes
	incomingSizes := make([]int64, n)
	outgoingSizes := make([]int64, n)
	reqs := make([]comm.Request, 0, 2*n)
	for i, c := range candidates {
		reqs = append(reqs, g.Irecv(ctx, c.Rank, TagSizes, incomingSizes[i:i+1]))
	}
	for i, c := range candidates {
		outgoingSizes[i] = int64(outgoing.offsets[i+1] - outgoing.offsets[i])
		reqs = append(reqs, g.Isend(ctx, c.Rank, TagSizes, outgoingSizes[i:i+1]))
	}
	if err := comm.WaitAll(reqs); err != nil {
		return requestLists{}, fmt.Errorf("request size exchange: %w", err)
	}

	incoming := requestLists{offsets: make([]int, n+1)}
	for i, size := range incomingSizes {
		if size < 0 {
			return requestLists{}, fmt.Errorf("rank %d announced negative request size %d",
				candidates[i].Rank, size)
		}
		incoming.offsets[i+1] = incoming.offsets[i] + int(size)
	}

	// Round 2: cell IDs. One spare slot keeps the last receive window in
	// range when trailing candidates send nothing.
	incoming.ids = make([]int64, incoming.total()+1)
	reqs = reqs[:0]
	for i, c := range candidates {
		reqs = append(reqs, g.Irecv(ctx, c.Rank, TagRequests, incoming.list(i)))
	}
	for i, c := range candidates {
		reqs = append(reqs, g.Isend(ctx, c.Rank, TagRequests, outgoing.list(i)))
	}
	if err := comm.WaitAll(reqs); err != nil {
		return requestLists{}, fmt.Errorf("request exchange: %w", err)
	}
	incoming.ids = incoming.ids[:incoming.total()]
	return incoming, nil
}
