package partitions

import (
	"fmt"
	"math/rand/v2"

	"github.com/notargets/gridrouter/grid"
)

// PartitionStrategy defines how cells are grouped
type PartitionStrategy int

const (
	// Contiguous strategies
	BlockPartition PartitionStrategy = iota // Consecutive cell IDs
	SlabPartition                           // Whole z planes

	// Scattered strategies
	RoundRobin      // Distribute cyclically
	RandomPartition // Seeded uniform assignment
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case SlabPartition:
		return "slab"
	case RoundRobin:
		return "roundrobin"
	case RandomPartition:
		return "random"
	default:
		return fmt.Sprintf("PartitionStrategy(%d)", int(s))
	}
}

// ParseStrategy converts a strategy name to a PartitionStrategy
func ParseStrategy(name string) (PartitionStrategy, error) {
	switch name {
	case "block", "":
		return BlockPartition, nil
	case "slab":
		return SlabPartition, nil
	case "roundrobin", "round-robin":
		return RoundRobin, nil
	case "random":
		return RandomPartition, nil
	default:
		return 0, fmt.Errorf("unknown partition strategy %q", name)
	}
}

// PartitionBuilder assigns the cells of a grid to ranks. It stands in for
// the external partitioner in tests and the command line driver.
type PartitionBuilder struct {
	Dims          grid.Dims
	NumPartitions int
	Strategy      PartitionStrategy

	// Seed drives RandomPartition and ShuffleOwned
	Seed uint64

	// ShuffleOwned permutes each partition's owned order so it is not sorted
	ShuffleOwned bool
}

// BuildPartitions creates a partition layout for the grid
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if err := pb.Dims.Validate(); err != nil {
		return nil, err
	}
	if pb.NumPartitions < 1 {
		return nil, fmt.Errorf("invalid partition count %d", pb.NumPartitions)
	}

	rng := rand.New(rand.NewPCG(pb.Seed, pb.Seed^0x9e3779b97f4a7c15))

	// Partition the cells
	cToP, err := pb.partitionCells(rng)
	if err != nil {
		return nil, err
	}

	// Create partition structures
	partitions := pb.createPartitions(cToP)
	if pb.ShuffleOwned {
		for i := range partitions {
			cells := partitions[i].Cells
			rng.Shuffle(len(cells), func(a, b int) { cells[a], cells[b] = cells[b], cells[a] })
		}
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		Dims:          pb.Dims,
		MaxCells:      calculateMaxCells(partitions),
		TotalCells:    pb.Dims.NumCells(),
		NumPartitions: pb.NumPartitions,
		CToP:          cToP,
	}

	// Validate the layout
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// partitionCells assigns cells to partitions
func (pb *PartitionBuilder) partitionCells(rng *rand.Rand) ([]int, error) {
	n := pb.Dims.NumCells()
	np := int64(pb.NumPartitions)
	cToP := make([]int, n)

	switch pb.Strategy {
	case BlockPartition:
		cellsPerPartition := ceilDiv(n, np)
		for gid := int64(0); gid < n; gid++ {
			cToP[gid] = int(min(gid/cellsPerPartition, np-1))
		}

	case SlabPartition:
		planesPerPartition := ceilDiv(int64(pb.Dims.Nz), np)
		for gid := int64(0); gid < n; gid++ {
			_, _, k := pb.Dims.Index(gid)
			cToP[gid] = int(min(int64(k)/planesPerPartition, np-1))
		}

	case RoundRobin:
		for gid := int64(0); gid < n; gid++ {
			cToP[gid] = int(gid % np)
		}

	case RandomPartition:
		for gid := range cToP {
			cToP[gid] = rng.IntN(pb.NumPartitions)
		}

	default:
		return nil, fmt.Errorf("unsupported partition strategy %v", pb.Strategy)
	}
	return cToP, nil
}

// createPartitions builds partition structures from cell assignments
func (pb *PartitionBuilder) createPartitions(cToP []int) []Partition {
	partitions := make([]Partition, pb.NumPartitions)
	for i := range partitions {
		partitions[i] = Partition{ID: i}
	}

	for gid, part := range cToP {
		partitions[part].Cells = append(partitions[part].Cells, int64(gid))
		partitions[part].NumCells++
	}
	return partitions
}

// calculateMaxCells finds maximum cells across all partitions
func calculateMaxCells(partitions []Partition) int {
	maxCells := 0
	for _, p := range partitions {
		if p.NumCells > maxCells {
			maxCells = p.NumCells
		}
	}
	return maxCells
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
