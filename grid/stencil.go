package grid

import (
	"fmt"
	"math"
)

// Stencil enumerates the cells referenced when updating one cell
type Stencil interface {
	// Footprint appends the in-grid neighbors of gid to dst and returns it.
	// The cell itself is not included.
	Footprint(d Dims, gid int64, dst []int64) []int64

	// Reach is the largest center-to-center distance between a cell and
	// any cell of its footprint
	Reach() float64

	Name() string
}

// offsetStencil is a stencil described by a fixed list of (di, dj, dk) offsets
type offsetStencil struct {
	name    string
	offsets [][3]int
	reach   float64
}

var (
	// Face6 references the 6 face-adjacent cells
	Face6 Stencil = newOffsetStencil("face6", 1)
	// Edge18 adds the 12 edge-adjacent cells
	Edge18 Stencil = newOffsetStencil("edge18", 2)
	// Corner26 references the full 3x3x3 neighborhood
	Corner26 Stencil = newOffsetStencil("corner26", 3)
)

// newOffsetStencil builds the 3x3x3 neighborhood restricted to offsets with
// at most maxNonZero nonzero components
func newOffsetStencil(name string, maxNonZero int) *offsetStencil {
	s := &offsetStencil{name: name}
	for dk := -1; dk <= 1; dk++ {
		for dj := -1; dj <= 1; dj++ {
			for di := -1; di <= 1; di++ {
				nz := abs(di) + abs(dj) + abs(dk)
				if nz == 0 || nz > maxNonZero {
					continue
				}
				s.offsets = append(s.offsets, [3]int{di, dj, dk})
			}
		}
	}
	s.reach = math.Sqrt(float64(maxNonZero))
	return s
}

func (s *offsetStencil) Footprint(d Dims, gid int64, dst []int64) []int64 {
	i, j, k := d.Index(gid)
	for _, o := range s.offsets {
		ni, nj, nk := i+o[0], j+o[1], k+o[2]
		if !d.InBounds(ni, nj, nk) {
			continue
		}
		dst = append(dst, d.GID(ni, nj, nk))
	}
	return dst
}

func (s *offsetStencil) Reach() float64 { return s.reach }

func (s *offsetStencil) Name() string { return s.name }

// StencilByName looks up one of the built-in stencils
func StencilByName(name string) (Stencil, error) {
	switch name {
	case "face6", "face", "":
		return Face6, nil
	case "edge18", "edge":
		return Edge18, nil
	case "corner26", "corner":
		return Corner26, nil
	default:
		return nil, fmt.Errorf("unknown stencil %q", name)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
