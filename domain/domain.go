// Package domain computes the geometric digest each process publishes about
// the cells it owns: a bounding sphere that is cheap to all-gather and cheap
// to test for proximity.
package domain

import (
	"fmt"
	"math"

	"github.com/notargets/gridrouter/grid"
	"gonum.org/v1/gonum/spatial/r3"
)

// RecordLen is the number of int64 words in an encoded Summary
const RecordLen = 5

// SentinelCenter is the center reported for a process that owns no cells
var SentinelCenter = r3.Vec{X: -1, Y: -1, Z: -1}

// Summary is the bounding sphere of one process's owned cells
type Summary struct {
	Center r3.Vec
	Radius float64
	NCells int64
}

// NewSummary centers the sphere on the mean cell coordinate and sizes it to
// the farthest owned cell. An empty owned set yields radius 0 at SentinelCenter.
func NewSummary(owned []int64, d grid.Dims) Summary {
	if len(owned) == 0 {
		return Summary{Center: SentinelCenter}
	}

	var sum r3.Vec
	for _, gid := range owned {
		sum = r3.Add(sum, d.Coordinate(gid))
	}
	center := r3.Scale(1/float64(len(owned)), sum)

	r2Max := 0.0
	for _, gid := range owned {
		if r2 := r3.Norm2(r3.Sub(d.Coordinate(gid), center)); r2 > r2Max {
			r2Max = r2
		}
	}

	return Summary{
		Center: center,
		Radius: math.Sqrt(r2Max),
		NCells: int64(len(owned)),
	}
}

// Empty reports whether the summarized process owns no cells
func (s Summary) Empty() bool {
	return s.NCells <= 0
}

// Distance between two sphere centers
func (s Summary) Distance(o Summary) float64 {
	return r3.Norm(r3.Sub(o.Center, s.Center))
}

// Near reports whether two spheres are within margin of touching
func (s Summary) Near(o Summary, margin float64) bool {
	return s.Distance(o) <= s.Radius+o.Radius+margin
}

// Contains reports whether p lies inside the sphere grown by eps
func (s Summary) Contains(p r3.Vec, eps float64) bool {
	rMax := s.Radius + eps
	return r3.Norm2(r3.Sub(s.Center, p)) <= rMax*rMax
}

// Record encodes the summary as a fixed-size record for all-gather
func (s Summary) Record() []int64 {
	return []int64{
		int64(math.Float64bits(s.Center.X)),
		int64(math.Float64bits(s.Center.Y)),
		int64(math.Float64bits(s.Center.Z)),
		int64(math.Float64bits(s.Radius)),
		s.NCells,
	}
}

// FromRecord decodes a record produced by Record
func FromRecord(rec []int64) (Summary, error) {
	if len(rec) != RecordLen {
		return Summary{}, fmt.Errorf("summary record has %d words, expected %d", len(rec), RecordLen)
	}
	s := Summary{
		Center: r3.Vec{
			X: math.Float64frombits(uint64(rec[0])),
			Y: math.Float64frombits(uint64(rec[1])),
			Z: math.Float64frombits(uint64(rec[2])),
		},
		Radius: math.Float64frombits(uint64(rec[3])),
		NCells: rec[4],
	}
	if s.Radius < 0 || math.IsNaN(s.Radius) {
		return Summary{}, fmt.Errorf("summary record has invalid radius %v", s.Radius)
	}
	return s, nil
}

// Unpack splits the result of an all-gather into one Summary per rank
func Unpack(all []int64) ([]Summary, error) {
	if len(all)%RecordLen != 0 {
		return nil, fmt.Errorf("gathered summaries length %d is not a multiple of %d", len(all), RecordLen)
	}
	out := make([]Summary, len(all)/RecordLen)
	for rank := range out {
		s, err := FromRecord(all[rank*RecordLen : (rank+1)*RecordLen])
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", rank, err)
		}
		out[rank] = s
	}
	return out, nil
}
