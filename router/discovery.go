package router

import (
	"context"
	"fmt"

	"github.com/notargets/gridrouter/comm"
	"github.com/notargets/gridrouter/domain"
)

// Candidate is a rank that may own cells this rank needs
type Candidate struct {
	Rank    int
	Summary domain.Summary
}

// gatherSummaries distributes every rank's bounding sphere to all ranks
func gatherSummaries(ctx context.Context, g comm.Group, mine domain.Summary) ([]domain.Summary, error) {
	all, err := g.AllGather(ctx, mine.Record())
	if err != nil {
		return nil, fmt.Errorf("gather domain summaries: %w", err)
	}
	summaries, err := domain.Unpack(all)
	if err != nil {
		return nil, err
	}
	if len(summaries) != g.Size() {
		return nil, fmt.Errorf("gathered %d summaries for %d ranks", len(summaries), g.Size())
	}
	return summaries, nil
}

// findCandidates returns, in rank order, the non-empty ranks whose sphere
// lies within margin of this rank's sphere. A rank owning nothing has no
// candidates.
func findCandidates(rank int, summaries []domain.Summary, margin float64) []Candidate {
	mine := summaries[rank]
	if mine.Empty() {
		return nil
	}
	var candidates []Candidate
	for other, s := range summaries {
		if other == rank || s.Empty() {
			continue
		}
		if mine.Near(s, margin) {
			candidates = append(candidates, Candidate{Rank: other, Summary: s})
		}
	}
	return candidates
}
