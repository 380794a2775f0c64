package partitions

import (
	"fmt"
	"math"

	"github.com/notargets/gridrouter/grid"
)

// Partition is the set of grid cells owned by one rank
type Partition struct {
	// Unique identifier for this partition, equal to the owning rank
	ID int

	// Cell membership
	Cells    []int64 // Global cell IDs in owned order
	NumCells int     // len(Cells)
}

// PartitionLayout manages the complete grid decomposition
type PartitionLayout struct {
	// All partitions in the grid, indexed by rank
	Partitions []Partition

	// Global sizing information
	Dims          grid.Dims
	MaxCells      int   // max(NumCells) across all partitions
	TotalCells    int64 // Sum of all cells across partitions
	NumPartitions int

	// Cell to partition mapping
	CToP []int // Length TotalCells: cell gid belongs to partition CToP[gid]
}

// PartitionStats summarizes load balance
type PartitionStats struct {
	NumPartitions int
	NumEmpty      int
	MinCells      int
	MaxCells      int
	AvgCells      float64
	Imbalance     float64 // MaxCells / AvgCells
}

// Owned returns the cells owned by rank, or nil for an unknown rank
func (pl *PartitionLayout) Owned(rank int) []int64 {
	if rank < 0 || rank >= len(pl.Partitions) {
		return nil
	}
	return pl.Partitions[rank].Cells
}

// GetPartition returns the partition owning cell gid, or -1
func (pl *PartitionLayout) GetPartition(gid int64) int {
	if gid < 0 || gid >= int64(len(pl.CToP)) {
		return -1
	}
	return pl.CToP[gid]
}

// ValidateLayout checks that every cell is owned exactly once and that the
// cached sizes agree with the partitions
func (pl *PartitionLayout) ValidateLayout() error {
	if int64(len(pl.CToP)) != pl.Dims.NumCells() {
		return fmt.Errorf("CToP length %d != %d cells", len(pl.CToP), pl.Dims.NumCells())
	}
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions stored, NumPartitions %d", len(pl.Partitions), pl.NumPartitions)
	}

	seen := make([]bool, len(pl.CToP))
	actualMax := 0
	var total int64
	for rank, p := range pl.Partitions {
		if p.ID != rank {
			return fmt.Errorf("partition at %d has ID %d", rank, p.ID)
		}
		if p.NumCells != len(p.Cells) {
			return fmt.Errorf("partition %d: NumCells %d != %d cells", p.ID, p.NumCells, len(p.Cells))
		}
		for _, gid := range p.Cells {
			if gid < 0 || gid >= int64(len(seen)) {
				return fmt.Errorf("partition %d: cell %d outside grid", p.ID, gid)
			}
			if seen[gid] {
				return fmt.Errorf("partition %d: cell %d owned more than once", p.ID, gid)
			}
			seen[gid] = true
			if pl.CToP[gid] != p.ID {
				return fmt.Errorf("cell %d in partition %d but CToP says %d", gid, p.ID, pl.CToP[gid])
			}
		}
		if p.NumCells > actualMax {
			actualMax = p.NumCells
		}
		total += int64(p.NumCells)
	}
	if actualMax != pl.MaxCells {
		return fmt.Errorf("computed MaxCells %d != stored MaxCells %d", actualMax, pl.MaxCells)
	}
	if total != pl.TotalCells || total != pl.Dims.NumCells() {
		return fmt.Errorf("partitions own %d cells, expected %d", total, pl.Dims.NumCells())
	}
	return nil
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinCells:      math.MaxInt,
		AvgCells:      float64(pl.TotalCells) / float64(pl.NumPartitions),
	}

	for _, p := range pl.Partitions {
		if p.NumCells == 0 {
			stats.NumEmpty++
		}
		if p.NumCells < stats.MinCells {
			stats.MinCells = p.NumCells
		}
		if p.NumCells > stats.MaxCells {
			stats.MaxCells = p.NumCells
		}
	}

	if stats.AvgCells > 0 {
		stats.Imbalance = float64(stats.MaxCells) / stats.AvgCells
	}
	return stats
}
