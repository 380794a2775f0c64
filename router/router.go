// Package router discovers which ranks of a partitioned 3D grid must
// exchange halo cells and builds the routing table each rank consults every
// iteration. Discovery uses only bounding-sphere summaries of every rank's
// cells; the exact cell lists are then settled by a two-round request
// exchange between candidate neighbors.
package router

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/notargets/gridrouter/comm"
	"github.com/notargets/gridrouter/domain"
	"github.com/notargets/gridrouter/grid"
	"github.com/notargets/gridrouter/metrics"
	"github.com/notargets/gridrouter/routing"
)

// Result is a routing table together with the intermediate products of
// its construction
type Result struct {
	Table      *routing.Table
	Summary    domain.Summary
	Candidates []Candidate
	Needed     []int64    // Sorted halo cells of this rank
	Requested  int        // Cell IDs candidates asked this rank for
	Mismatches []Mismatch // Consistency findings on this rank
}

// BuildRoutingTable builds this rank's routing table. Every rank of g must
// call it with its own owned cells; the call is collective. Any transport
// failure is returned and no table is produced.
func BuildRoutingTable(ctx context.Context, owned []int64, dims grid.Dims, g comm.Group, cfg Config) (*routing.Table, error) {
	res, err := Build(ctx, owned, dims, g, cfg)
	if err != nil {
		return nil, err
	}
	return res.Table, nil
}

// Build is BuildRoutingTable returning the full Result
func Build(ctx context.Context, owned []int64, dims grid.Dims, g comm.Group, cfg Config) (*Result, error) {
	start := time.Now()
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := validateOwned(owned, dims); err != nil {
		return nil, fmt.Errorf("rank %d: %w", g.Rank(), err)
	}
	rank := g.Rank()
	if rank == 0 && cfg.Margin < cfg.Stencil.Reach() {
		cfg.Logger.Printf("router: margin %g is below %s stencil reach %g, neighbors may be missed",
			cfg.Margin, cfg.Stencil.Name(), cfg.Stencil.Reach())
	}

	res := &Result{Summary: domain.NewSummary(owned, dims)}
	if cfg.Verbose {
		c := res.Summary.Center
		cfg.Logger.Printf("%5d: c= %f %f %f, r= %f", rank, c.X, c.Y, c.Z, res.Summary.Radius)
	}

	summaries, err := gatherSummaries(ctx, g, res.Summary)
	if err != nil {
		return nil, err
	}
	res.Candidates = findCandidates(rank, summaries, cfg.Margin)

	res.Needed = neededCells(owned, dims, cfg.Stencil)
	if cfg.Verbose {
		cfg.Logger.Printf("%5d: nNbrs = %d, neededCells = %d", rank, len(res.Candidates), len(res.Needed))
	}

	outgoing := selectRequests(res.Needed, dims, res.Candidates, cfg.Epsilon)
	incoming, err := exchangeRequests(ctx, g, res.Candidates, outgoing)
	if err != nil {
		return nil, err
	}
	res.Requested = incoming.total()

	res.Table, err = buildTable(owned, res.Candidates, incoming)
	if err != nil {
		return nil, fmt.Errorf("rank %d: %w", rank, err)
	}
	if cfg.Verbose {
		cfg.Logger.Printf("%5d: nSend = %d, destinations = %v", rank, res.Table.NumDestinations(), res.Table.Destinations())
	}

	res.Mismatches, err = checkConsistency(ctx, g, res.Table.Destinations())
	if err != nil {
		return nil, err
	}
	for _, m := range res.Mismatches {
		cfg.Sink.Asymmetric(m)
	}

	cfg.Metrics.ObserveMismatches(rank, len(res.Mismatches))
	cfg.Metrics.ObserveBuild(rank, metrics.BuildStats{
		Candidates:     len(res.Candidates),
		Destinations:   res.Table.NumDestinations(),
		NeededCells:    len(res.Needed),
		RequestedCells: res.Requested,
		SendIndices:    res.Table.TotalSends(),
		Duration:       time.Since(start),
	})

	if len(res.Mismatches) > 0 && cfg.Consistency == SeverityFatal {
		return nil, &AsymmetryError{Mismatches: res.Mismatches}
	}
	return res, nil
}

// buildTable matches, for each candidate, its sorted request list against
// the owned cells in owned order. Candidates requesting nothing this rank
// owns are dropped.
func buildTable(owned []int64, candidates []Candidate, incoming requestLists) (*routing.Table, error) {
	b := routing.NewBuilder()
	var plan []int
	for i, c := range candidates {
		requested := incoming.list(i)
		slices.Sort(requested)

		plan = plan[:0]
		for idx, gid := range owned {
			if _, found := slices.BinarySearch(requested, gid); found {
				plan = append(plan, idx)
			}
		}
		b.Add(c.Rank, plan)
	}
	return b.Table()
}

// validateOwned rejects cells outside the grid and duplicates
func validateOwned(owned []int64, d grid.Dims) error {
	if err := d.Validate(); err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(owned))
	for i, gid := range owned {
		if !d.Contains(gid) {
			return fmt.Errorf("owned cell %d at position %d is outside the %s grid", gid, i, d)
		}
		if _, dup := seen[gid]; dup {
			return fmt.Errorf("owned cell %d listed more than once", gid)
		}
		seen[gid] = struct{}{}
	}
	return nil
}
