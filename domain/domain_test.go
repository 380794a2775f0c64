package domain

import (
	"math"
	"testing"

	"github.com/notargets/gridrouter/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewSummary_Empty(t *testing.T) {
	s := NewSummary(nil, grid.Dims{Nx: 4, Ny: 4, Nz: 4})
	assert.True(t, s.Empty())
	assert.Equal(t, 0.0, s.Radius)
	assert.Equal(t, SentinelCenter, s.Center)
	assert.False(t, math.IsNaN(s.Center.X))
}

func TestNewSummary_SingleCell(t *testing.T) {
	d := grid.Dims{Nx: 4, Ny: 4, Nz: 4}
	s := NewSummary([]int64{d.GID(1, 2, 3)}, d)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, s.Center)
	assert.Equal(t, 0.0, s.Radius)
	assert.Equal(t, int64(1), s.NCells)
}

func TestNewSummary_HalfSpace(t *testing.T) {
	d := grid.Dims{Nx: 4, Ny: 4, Nz: 4}
	owned := make([]int64, 0, 32)
	for gid := int64(0); gid < 32; gid++ {
		owned = append(owned, gid)
	}
	s := NewSummary(owned, d)

	assert.InDelta(t, 1.5, s.Center.X, 1e-12)
	assert.InDelta(t, 1.5, s.Center.Y, 1e-12)
	assert.InDelta(t, 0.5, s.Center.Z, 1e-12)
	// Farthest cell is a corner: (1.5, 1.5, 0.5) away from the center
	assert.InDelta(t, math.Sqrt(1.5*1.5+1.5*1.5+0.5*0.5), s.Radius, 1e-12)

	for _, gid := range owned {
		assert.True(t, s.Contains(d.Coordinate(gid), 1e-5), "cell %d outside its own sphere", gid)
	}
}

func TestSummary_NearIsSymmetric(t *testing.T) {
	a := Summary{Center: r3.Vec{X: 0.1, Y: 0.7, Z: 3.3}, Radius: 1.25, NCells: 3}
	b := Summary{Center: r3.Vec{X: 4.9, Y: 0.2, Z: 1.1}, Radius: 0.5, NCells: 7}
	for _, margin := range []float64{0, 1, 2, 3.5} {
		assert.Equal(t, a.Near(b, margin), b.Near(a, margin))
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	s := Summary{Center: r3.Vec{X: 1.5, Y: -0.25, Z: 7}, Radius: 2.75, NCells: 42}
	got, err := FromRecord(s.Record())
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = FromRecord([]int64{1, 2})
	assert.Error(t, err)
}

func TestUnpack(t *testing.T) {
	a := Summary{Center: r3.Vec{X: 1}, Radius: 1, NCells: 1}
	b := NewSummary(nil, grid.Dims{Nx: 1, Ny: 1, Nz: 1})
	all := append(a.Record(), b.Record()...)

	got, err := Unpack(all)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0])
	assert.True(t, got[1].Empty())

	_, err = Unpack(all[:7])
	assert.Error(t, err)
}
