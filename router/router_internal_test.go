package router

import (
	"testing"

	"github.com/notargets/gridrouter/domain"
	"github.com/notargets/gridrouter/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNeededCells_SortedAndDisjoint(t *testing.T) {
	d := grid.Dims{Nx: 4, Ny: 4, Nz: 4}
	owned := []int64{d.GID(1, 1, 1), d.GID(2, 1, 1)}

	needed := neededCells(owned, d, grid.Face6)

	// 2 cells x 6 faces, minus the 2 shared faces
	assert.Len(t, needed, 10)
	assert.IsIncreasing(t, needed)
	assert.NotContains(t, needed, owned[0])
	assert.NotContains(t, needed, owned[1])
}

func TestNeededCells_WholeGridNeedsNothing(t *testing.T) {
	d := grid.Dims{Nx: 3, Ny: 3, Nz: 3}
	owned := make([]int64, d.NumCells())
	for i := range owned {
		owned[i] = int64(i)
	}
	assert.Empty(t, neededCells(owned, d, grid.Corner26))
	assert.Empty(t, neededCells(nil, d, grid.Corner26))
}

func TestFindCandidates(t *testing.T) {
	summaries := []domain.Summary{
		{Center: r3.Vec{X: 0}, Radius: 1, NCells: 5},
		{Center: r3.Vec{X: 3.5}, Radius: 0.5, NCells: 2}, // 3.5 <= 1+0.5+2
		{Center: r3.Vec{X: 10}, Radius: 1, NCells: 5},    // too far
		{Center: domain.SentinelCenter, Radius: 0},       // empty
		{Center: r3.Vec{X: 0}, Radius: 0, NCells: 1},     // coincident center
	}

	got := findCandidates(0, summaries, 2.0)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, 4, got[1].Rank)

	assert.Len(t, findCandidates(1, summaries, 2.0), 1)
	assert.Empty(t, findCandidates(3, summaries, 2.0), "empty rank searches nothing")
	assert.Empty(t, findCandidates(0, summaries[:3], 1.0))
}

func TestSelectRequests(t *testing.T) {
	d := grid.Dims{Nx: 8, Ny: 1, Nz: 1}
	needed := []int64{0, 3, 4, 7}
	candidates := []Candidate{
		{Rank: 1, Summary: domain.Summary{Center: r3.Vec{X: 0.5}, Radius: 0.5, NCells: 2}},
		{Rank: 2, Summary: domain.Summary{Center: r3.Vec{X: 5}, Radius: 2, NCells: 5}},
		{Rank: 3, Summary: domain.Summary{Center: r3.Vec{X: 100}, Radius: 1, NCells: 1}},
	}

	rl := selectRequests(needed, d, candidates, DefaultEpsilon)
	require.Len(t, rl.offsets, 4)
	assert.Equal(t, []int64{0}, rl.list(0))
	assert.Equal(t, []int64{3, 4, 7}, rl.list(1))
	assert.Empty(t, rl.list(2))
	assert.Equal(t, 4, rl.total())
}

func TestBuildTable_OwnedOrderAndDrop(t *testing.T) {
	owned := []int64{9, 2, 7, 4}
	candidates := []Candidate{{Rank: 1}, {Rank: 3}, {Rank: 5}}
	incoming := requestLists{
		ids:     []int64{7, 9, 100, 55, 4, 2},
		offsets: []int{0, 3, 4, 6},
	}

	tbl, err := buildTable(owned, candidates, incoming)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 5}, tbl.Destinations())
	assert.Equal(t, []int{0, 2}, tbl.SendIndices(1))
	assert.Equal(t, []int{1, 3}, tbl.SendIndices(5))
	_, _, ok := tbl.RangeFor(3)
	assert.False(t, ok)
}

func TestValidateOwned(t *testing.T) {
	d := grid.Dims{Nx: 2, Ny: 2, Nz: 2}
	assert.NoError(t, validateOwned([]int64{0, 7, 3}, d))
	assert.NoError(t, validateOwned(nil, d))
	assert.Error(t, validateOwned([]int64{0, 8}, d))
	assert.Error(t, validateOwned([]int64{-1}, d))
	assert.Error(t, validateOwned([]int64{1, 1}, d))
	assert.Error(t, validateOwned(nil, grid.Dims{}))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg, err := Config{}.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, grid.Face6, cfg.Stencil)
	assert.Equal(t, DefaultEpsilon, cfg.Epsilon)
	assert.Equal(t, 0.0, cfg.Margin)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Sink)

	_, err = Config{Margin: -1}.withDefaults()
	assert.Error(t, err)
	_, err = Config{Epsilon: -1}.withDefaults()
	assert.Error(t, err)
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity("warn")
	require.NoError(t, err)
	assert.Equal(t, SeverityWarn, s)
	s, err = ParseSeverity("")
	require.NoError(t, err)
	assert.Equal(t, SeverityFatal, s)
	_, err = ParseSeverity("panic")
	assert.Error(t, err)
}
