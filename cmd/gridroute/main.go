// Command gridroute partitions a regular grid across in-process ranks,
// builds every rank's halo routing table and reports the resulting
// communication graph
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/notargets/gridrouter/comm"
	"github.com/notargets/gridrouter/halo"
	"github.com/notargets/gridrouter/metrics"
	"github.com/notargets/gridrouter/router"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "YAML run description")
	ranks := flag.Int("ranks", 0, "override the number of ranks")
	strategy := flag.String("strategy", "", "override the partition strategy (block, slab, roundrobin, random)")
	stencil := flag.String("stencil", "", "override the stencil (face6, edge18, corner26)")
	outDir := flag.String("out", "", "override the routing table output directory")
	flag.Parse()

	rc, err := LoadRunConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *ranks > 0 {
		rc.Ranks = *ranks
	}
	if *strategy != "" {
		rc.Partition.Strategy = *strategy
	}
	if *stencil != "" {
		rc.Stencil = *stencil
	}
	if *outDir != "" {
		rc.OutputDir = *outDir
	}

	if err := run(context.Background(), rc); err != nil {
		log.Fatalf("Routing failed: %v", err)
	}
}

// rankReport is what one rank contributes to the summary
type rankReport struct {
	owned      int
	candidates int
	needed     int
	sends      int
	dests      []int
	digest     uint64
}

func run(ctx context.Context, rc RunConfig) error {
	pb, err := rc.Builder()
	if err != nil {
		return err
	}
	cfg, err := rc.RouterConfig()
	if err != nil {
		return err
	}

	fmt.Printf("=== Grid Router ===\n")
	fmt.Printf("Grid: %s, ranks: %d, partition: %s, stencil: %s, margin: %.3f\n",
		rc.Grid, rc.Ranks, pb.Strategy, cfg.Stencil.Name(), cfg.Margin)

	layout, err := pb.BuildPartitions()
	if err != nil {
		return err
	}
	stats := layout.PartitionStatistics()
	fmt.Printf("Cells per rank: min %d, max %d, avg %.1f (imbalance %.3f, %d empty)\n",
		stats.MinCells, stats.MaxCells, stats.AvgCells, stats.Imbalance, stats.NumEmpty)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}
	cfg.Metrics = m

	if rc.OutputDir != "" {
		if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
			return err
		}
	}

	reports := make([]rankReport, rc.Ranks)
	err = comm.Run(ctx, rc.Ranks, func(ctx context.Context, g comm.Group) error {
		owned := layout.Owned(g.Rank())
		res, err := router.Build(ctx, owned, layout.Dims, g, cfg)
		if err != nil {
			return err
		}

		if rc.OutputDir != "" {
			if err := writeTable(rc.OutputDir, g.Rank(), res); err != nil {
				return err
			}
		}

		if rc.HaloIterations > 0 && len(res.Mismatches) > 0 {
			return fmt.Errorf("halo iterations need a symmetric routing graph, %d mismatches", len(res.Mismatches))
		}
		if rc.HaloIterations > 0 {
			ex, err := halo.NewExchanger(ctx, g, owned, res.Table, m)
			if err != nil {
				return err
			}
			values := make([]float64, len(owned))
			for i, gid := range owned {
				values[i] = float64(gid)
			}
			ghosts := make([]float64, ex.NumGhosts())
			for it := 0; it < rc.HaloIterations; it++ {
				if err := ex.Exchange(ctx, values, ghosts); err != nil {
					return err
				}
			}
			for slot, gid := range ex.GhostIDs() {
				if ghosts[slot] != float64(gid) {
					return fmt.Errorf("ghost %d holds %v", gid, ghosts[slot])
				}
			}
		}

		reports[g.Rank()] = rankReport{
			owned:      len(owned),
			candidates: len(res.Candidates),
			needed:     len(res.Needed),
			sends:      res.Table.TotalSends(),
			dests:      res.Table.Destinations(),
			digest:     res.Table.Digest(),
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n%5s %8s %6s %8s %8s  %-16s %s\n", "rank", "owned", "cand", "needed", "sends", "digest", "destinations")
	for rank, r := range reports {
		fmt.Printf("%5d %8d %6d %8d %8d  %016x %v\n", rank, r.owned, r.candidates, r.needed, r.sends, r.digest, r.dests)
	}

	families, err := reg.Gather()
	if err != nil {
		return err
	}
	fmt.Printf("\nMetrics:\n")
	for _, mf := range families {
		total := 0.0
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				total += metric.GetHistogram().GetSampleSum()
			}
		}
		fmt.Printf("  %-45s %g\n", mf.GetName(), total)
	}
	return nil
}

func writeTable(dir string, rank int, res *router.Result) error {
	data, err := res.Table.MarshalJSON()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("routing.%05d.json", rank))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write routing table: %w", err)
	}
	return nil
}
