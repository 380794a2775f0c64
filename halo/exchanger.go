// Package halo moves owned cell values to the ranks that reference them,
// following a routing table built once per partition
package halo

import (
	"context"
	"fmt"
	"math"

	"github.com/notargets/gridrouter/comm"
	"github.com/notargets/gridrouter/metrics"
	"github.com/notargets/gridrouter/routing"
)

const (
	TagLayoutSizes = 78541
	TagLayoutIDs   = 78542
	TagValues      = 78543
)

// PickBuffer contains the owned-set positions gathered for one destination
type PickBuffer struct {
	Indices    []int
	TargetRank int
}

// PlaceBuffer is the ghost slot range filled from one source
type PlaceBuffer struct {
	Offset     int
	Count      int
	SourceRank int
}

// Exchanger ships owned values along a routing table and receives the
// matching ghost values. Sources are the table's destinations: a consistent
// routing graph is symmetric.
type Exchanger struct {
	group    comm.Group
	numOwned int

	picks  []PickBuffer
	places []PlaceBuffer

	ghostIDs   []int64
	ghostIndex map[int64]int

	sendBuf []int64
	metrics *metrics.Router
}

// NewExchanger learns the ghost layout from every source. It is collective
// over the ranks of the routing graph.
func NewExchanger(ctx context.Context, g comm.Group, owned []int64, tbl *routing.Table, m *metrics.Router) (*Exchanger, error) {
	if err := tbl.CheckOwned(len(owned)); err != nil {
		return nil, err
	}
	ex := &Exchanger{
		group:    g,
		numOwned: len(owned),
		metrics:  m,
	}

	routes := tbl.Routes()
	for _, r := range routes {
		ex.picks = append(ex.picks, PickBuffer{
			Indices:    tbl.SendIndices(r.Rank),
			TargetRank: r.Rank,
		})
	}
	ex.sendBuf = make([]int64, tbl.TotalSends())

	// Tell each destination which cells it will receive, in send order
	n := len(routes)
	incomingSizes := make([]int64, n)
	outgoingSizes := make([]int64, n)
	reqs := make([]comm.Request, 0, 2*n)
	for i, r := range routes {
		reqs = append(reqs, g.Irecv(ctx, r.Rank, TagLayoutSizes, incomingSizes[i:i+1]))
	}
	for i, r := range routes {
		outgoingSizes[i] = int64(r.Count)
		reqs = append(reqs, g.Isend(ctx, r.Rank, TagLayoutSizes, outgoingSizes[i:i+1]))
	}
	if err := comm.WaitAll(reqs); err != nil {
		return nil, fmt.Errorf("halo layout sizes: %w", err)
	}

	offset := 0
	for i, r := range routes {
		ex.places = append(ex.places, PlaceBuffer{
			Offset:     offset,
			Count:      int(incomingSizes[i]),
			SourceRank: r.Rank,
		})
		offset += int(incomingSizes[i])
	}
	ex.ghostIDs = make([]int64, offset+1)

	reqs = reqs[:0]
	for _, p := range ex.places {
		reqs = append(reqs, g.Irecv(ctx, p.SourceRank, TagLayoutIDs, ex.ghostIDs[p.Offset:p.Offset+p.Count]))
	}
	pos := 0
	for _, pick := range ex.picks {
		for _, idx := range pick.Indices {
			ex.sendBuf[pos] = owned[idx]
			pos++
		}
	}
	ex.forEachPick(func(pick PickBuffer, buf []int64) {
		reqs = append(reqs, g.Isend(ctx, pick.TargetRank, TagLayoutIDs, buf))
	})
	if err := comm.WaitAll(reqs); err != nil {
		return nil, fmt.Errorf("halo layout ids: %w", err)
	}
	ex.ghostIDs = ex.ghostIDs[:offset]

	ex.ghostIndex = make(map[int64]int, len(ex.ghostIDs))
	for slot, gid := range ex.ghostIDs {
		ex.ghostIndex[gid] = slot
	}
	if err := ex.Verify(); err != nil {
		return nil, err
	}
	return ex, nil
}

// forEachPick hands each destination its window of sendBuf
func (ex *Exchanger) forEachPick(fn func(pick PickBuffer, buf []int64)) {
	pos := 0
	for _, pick := range ex.picks {
		n := len(pick.Indices)
		fn(pick, ex.sendBuf[pos:pos+n])
		pos += n
	}
}

// NumGhosts is the number of halo values received per exchange
func (ex *Exchanger) NumGhosts() int {
	return len(ex.ghostIDs)
}

// GhostIDs lists the cell held in each ghost slot
func (ex *Exchanger) GhostIDs() []int64 {
	return ex.ghostIDs
}

// GhostIndex returns the ghost slot of a halo cell
func (ex *Exchanger) GhostIndex(gid int64) (int, bool) {
	slot, ok := ex.ghostIndex[gid]
	return slot, ok
}

// Exchange sends the owned values each destination needs and fills ghosts
// with the values received. values is indexed like the owned set; ghosts
// must hold NumGhosts values.
func (ex *Exchanger) Exchange(ctx context.Context, values, ghosts []float64) error {
	if len(values) != ex.numOwned {
		return fmt.Errorf("got %d values for %d owned cells", len(values), ex.numOwned)
	}
	if len(ghosts) != len(ex.ghostIDs) {
		return fmt.Errorf("ghost buffer holds %d values, need %d", len(ghosts), len(ex.ghostIDs))
	}

	// Phase 1: Pick - gather owned values into the send buffer
	pos := 0
	for _, pick := range ex.picks {
		for _, idx := range pick.Indices {
			ex.sendBuf[pos] = int64(math.Float64bits(values[idx]))
			pos++
		}
	}

	// Phase 2: Exchange
	recvBuf := make([]int64, len(ghosts)+1)
	reqs := make([]comm.Request, 0, len(ex.places)+len(ex.picks))
	for _, p := range ex.places {
		reqs = append(reqs, ex.group.Irecv(ctx, p.SourceRank, TagValues, recvBuf[p.Offset:p.Offset+p.Count]))
	}
	ex.forEachPick(func(pick PickBuffer, buf []int64) {
		reqs = append(reqs, ex.group.Isend(ctx, pick.TargetRank, TagValues, buf))
	})
	if err := comm.WaitAll(reqs); err != nil {
		return fmt.Errorf("halo exchange: %w", err)
	}

	// Phase 3: Place
	for i := range ghosts {
		ghosts[i] = math.Float64frombits(uint64(recvBuf[i]))
	}
	ex.metrics.ObserveHaloExchange(ex.group.Rank(), len(ex.sendBuf))
	return nil
}

// Verify checks index validity and that place ranges tile the ghost buffer
func (ex *Exchanger) Verify() error {
	// Verify 1: Local validity - all pick indices are within bounds
	picks := 0
	for _, pick := range ex.picks {
		for _, idx := range pick.Indices {
			if idx < 0 || idx >= ex.numOwned {
				return fmt.Errorf("invalid pick index %d for rank %d (max %d)",
					idx, pick.TargetRank, ex.numOwned-1)
			}
		}
		picks += len(pick.Indices)
	}
	if picks != len(ex.sendBuf) {
		return fmt.Errorf("pick count %d != send buffer %d", picks, len(ex.sendBuf))
	}

	// Verify 2: Correspondence - place ranges are contiguous and cover the ghosts
	next := 0
	for _, p := range ex.places {
		if p.Offset != next || p.Count < 0 {
			return fmt.Errorf("place range from rank %d at %d+%d, expected offset %d",
				p.SourceRank, p.Offset, p.Count, next)
		}
		next += p.Count
	}
	if next != len(ex.ghostIDs) {
		return fmt.Errorf("place ranges cover %d ghosts, have %d", next, len(ex.ghostIDs))
	}

	// Verify 3: Uniqueness - each halo cell arrives from exactly one owner
	if len(ex.ghostIndex) != len(ex.ghostIDs) {
		return fmt.Errorf("%d ghost slots hold only %d distinct cells", len(ex.ghostIDs), len(ex.ghostIndex))
	}
	return nil
}
