package halo_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"testing"
	"time"

	"github.com/notargets/gridrouter/comm"
	"github.com/notargets/gridrouter/grid"
	"github.com/notargets/gridrouter/halo"
	"github.com/notargets/gridrouter/metrics"
	"github.com/notargets/gridrouter/partitions"
	"github.com/notargets/gridrouter/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellValue(gid int64, iteration int) float64 {
	return float64(gid)*1.5 + float64(iteration)
}

func TestExchanger_GhostsMatchOwners(t *testing.T) {
	for _, stencil := range []grid.Stencil{grid.Face6, grid.Corner26} {
		t.Run(stencil.Name(), func(t *testing.T) {
			pb := partitions.PartitionBuilder{
				Dims:          grid.Dims{Nx: 6, Ny: 6, Nz: 4},
				NumPartitions: 4,
				Strategy:      partitions.RandomPartition,
				Seed:          21,
				ShuffleOwned:  true,
			}
			layout, err := pb.BuildPartitions()
			require.NoError(t, err)

			cfg := router.DefaultConfig()
			cfg.Stencil = stencil
			cfg.Logger = log.New(io.Discard, "", 0)

			reg := prometheus.NewRegistry()
			m, err := metrics.New(reg)
			require.NoError(t, err)
			cfg.Metrics = m

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			err = comm.Run(ctx, layout.NumPartitions, func(ctx context.Context, g comm.Group) error {
				owned := layout.Owned(g.Rank())
				res, err := router.Build(ctx, owned, layout.Dims, g, cfg)
				if err != nil {
					return err
				}
				ex, err := halo.NewExchanger(ctx, g, owned, res.Table, m)
				if err != nil {
					return err
				}

				ghostIDs := slices.Clone(ex.GhostIDs())
				slices.Sort(ghostIDs)
				if !slices.Equal(ghostIDs, res.Needed) {
					return fmt.Errorf("rank %d: ghosts %v != needed %v", g.Rank(), ghostIDs, res.Needed)
				}

				values := make([]float64, len(owned))
				ghosts := make([]float64, ex.NumGhosts())
				for iteration := 0; iteration < 3; iteration++ {
					for i, gid := range owned {
						values[i] = cellValue(gid, iteration)
					}
					if err := ex.Exchange(ctx, values, ghosts); err != nil {
						return err
					}
					for _, gid := range res.Needed {
						slot, ok := ex.GhostIndex(gid)
						if !ok {
							return fmt.Errorf("rank %d: no ghost slot for %d", g.Rank(), gid)
						}
						if ghosts[slot] != cellValue(gid, iteration) {
							return fmt.Errorf("rank %d iteration %d: ghost %d = %v", g.Rank(), iteration, gid, ghosts[slot])
						}
					}
				}
				return nil
			})
			require.NoError(t, err)

			families, err := reg.Gather()
			require.NoError(t, err)
			names := make([]string, 0, len(families))
			for _, mf := range families {
				names = append(names, mf.GetName())
			}
			assert.Contains(t, names, "gridrouter_halo_values_sent_total")
			assert.Contains(t, names, "gridrouter_destinations")
		})
	}
}

func TestExchanger_RejectsBadBuffers(t *testing.T) {
	d := grid.Dims{Nx: 4, Ny: 1, Nz: 1}
	owned := [][]int64{{0, 1}, {2, 3}}
	cfg := router.DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)

	err := comm.Run(context.Background(), 2, func(ctx context.Context, g comm.Group) error {
		tbl, err := router.BuildRoutingTable(ctx, owned[g.Rank()], d, g, cfg)
		if err != nil {
			return err
		}
		ex, err := halo.NewExchanger(ctx, g, owned[g.Rank()], tbl, nil)
		if err != nil {
			return err
		}
		if ex.NumGhosts() != 1 {
			return fmt.Errorf("rank %d: %d ghosts", g.Rank(), ex.NumGhosts())
		}
		if err := ex.Exchange(ctx, make([]float64, 1), make([]float64, 1)); err == nil {
			return fmt.Errorf("short values accepted")
		}
		if err := ex.Exchange(ctx, make([]float64, 2), nil); err == nil {
			return fmt.Errorf("short ghosts accepted")
		}
		return ex.Verify()
	})
	require.NoError(t, err)
}

func TestNewExchanger_RejectsForeignTable(t *testing.T) {
	d := grid.Dims{Nx: 4, Ny: 1, Nz: 1}
	cfg := router.DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)

	err := comm.Run(context.Background(), 2, func(ctx context.Context, g comm.Group) error {
		owned := []int64{int64(2 * g.Rank()), int64(2*g.Rank() + 1)}
		tbl, err := router.BuildRoutingTable(ctx, owned, d, g, cfg)
		if err != nil {
			return err
		}
		if g.Rank() == 0 {
			// rank 0 sends index 1; an owned set of one cell cannot serve it
			if _, err := halo.NewExchanger(ctx, g, owned[:1], tbl, nil); err == nil {
				return fmt.Errorf("table with out-of-range index accepted")
			}
		}
		return nil
	})
	require.NoError(t, err)
}
