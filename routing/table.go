// Package routing holds the communication schedule produced by the router:
// for every destination rank, the range of a shared index buffer listing the
// owned cells (by position in the owned set) that destination needs.
package routing

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Route is one destination's slice of the index buffer
type Route struct {
	Rank   int // Destination rank
	Offset int // Starting position in the index buffer
	Count  int // Number of owned cells sent to Rank
}

// Table is immutable once built and may be read concurrently. Slices it
// returns alias its storage and must not be modified.
type Table struct {
	destinations []int // ascending, unique
	offsets      []int // len(destinations)+1 prefix sums into indices
	indices      []int // owned-set positions, concatenated per destination
}

// Builder assembles a Table one destination at a time, in ascending rank order
type Builder struct {
	destinations []int
	offsets      []int
	indices      []int
	err          error
}

// NewBuilder returns a Builder for an empty table
func NewBuilder() *Builder {
	return &Builder{offsets: []int{0}}
}

// Add appends a destination. Destinations with no indices are skipped.
func (b *Builder) Add(rank int, ownedIndices []int) {
	if b.err != nil || len(ownedIndices) == 0 {
		return
	}
	if n := len(b.destinations); n > 0 && b.destinations[n-1] >= rank {
		b.err = fmt.Errorf("destination %d added after %d", rank, b.destinations[n-1])
		return
	}
	b.destinations = append(b.destinations, rank)
	b.indices = append(b.indices, ownedIndices...)
	b.offsets = append(b.offsets, len(b.indices))
}

// Table returns the built table
func (b *Builder) Table() (*Table, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Table{
		destinations: b.destinations,
		offsets:      b.offsets,
		indices:      b.indices,
	}, nil
}

// New builds a Table from its raw parts after checking the invariants
func New(destinations, offsets, indices []int) (*Table, error) {
	t := &Table{
		destinations: append([]int(nil), destinations...),
		offsets:      append([]int(nil), offsets...),
		indices:      append([]int(nil), indices...),
	}
	if len(t.offsets) == 0 {
		t.offsets = []int{0}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) validate() error {
	if len(t.offsets) != len(t.destinations)+1 {
		return fmt.Errorf("offsets length %d != destinations %d + 1", len(t.offsets), len(t.destinations))
	}
	if t.offsets[0] != 0 {
		return fmt.Errorf("offsets must start at 0, got %d", t.offsets[0])
	}
	for i, rank := range t.destinations {
		if rank < 0 {
			return fmt.Errorf("negative destination rank %d", rank)
		}
		if i > 0 && t.destinations[i-1] >= rank {
			return fmt.Errorf("destinations not strictly ascending at %d", i)
		}
		if t.offsets[i+1] <= t.offsets[i] {
			return fmt.Errorf("destination %d has an empty or negative range", rank)
		}
	}
	if last := t.offsets[len(t.offsets)-1]; last > len(t.indices) {
		return fmt.Errorf("offsets end at %d beyond index buffer length %d", last, len(t.indices))
	}
	for _, idx := range t.indices {
		if idx < 0 {
			return fmt.Errorf("negative owned index %d", idx)
		}
	}
	return nil
}

// Destinations returns the destination ranks in ascending order
func (t *Table) Destinations() []int {
	return t.destinations
}

// NumDestinations returns the number of ranks this process sends to
func (t *Table) NumDestinations() int {
	return len(t.destinations)
}

// RangeFor returns the [start, end) range of the index buffer sent to rank
func (t *Table) RangeFor(rank int) (start, end int, ok bool) {
	i := sort.SearchInts(t.destinations, rank)
	if i == len(t.destinations) || t.destinations[i] != rank {
		return 0, 0, false
	}
	return t.offsets[i], t.offsets[i+1], true
}

// IndexBuffer returns the concatenated owned-set positions of all destinations
func (t *Table) IndexBuffer() []int {
	return t.indices[:t.offsets[len(t.offsets)-1]]
}

// Offsets returns the prefix sums delimiting each destination's range
func (t *Table) Offsets() []int {
	return t.offsets
}

// SendIndices returns the owned-set positions sent to rank, or nil
func (t *Table) SendIndices(rank int) []int {
	start, end, ok := t.RangeFor(rank)
	if !ok {
		return nil
	}
	return t.indices[start:end:end]
}

// Routes lists every destination with its range
func (t *Table) Routes() []Route {
	routes := make([]Route, len(t.destinations))
	for i, rank := range t.destinations {
		routes[i] = Route{
			Rank:   rank,
			Offset: t.offsets[i],
			Count:  t.offsets[i+1] - t.offsets[i],
		}
	}
	return routes
}

// TotalSends is the number of owned values shipped per exchange
func (t *Table) TotalSends() int {
	return t.offsets[len(t.offsets)-1]
}

// MaxSendCount is the largest single destination range
func (t *Table) MaxSendCount() int {
	maxCount := 0
	for i := range t.destinations {
		if c := t.offsets[i+1] - t.offsets[i]; c > maxCount {
			maxCount = c
		}
	}
	return maxCount
}

// CheckOwned verifies every index addresses one of numOwned owned cells
func (t *Table) CheckOwned(numOwned int) error {
	for i, idx := range t.IndexBuffer() {
		if idx >= numOwned {
			return fmt.Errorf("index buffer[%d] = %d out of range for %d owned cells", i, idx, numOwned)
		}
	}
	return nil
}

// Equal reports whether two tables route identically
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	return equalInts(t.destinations, o.destinations) &&
		equalInts(t.offsets, o.offsets) &&
		equalInts(t.IndexBuffer(), o.IndexBuffer())
}

// Digest hashes destinations, offsets and indices. Equal tables have equal digests.
func (t *Table) Digest() uint64 {
	h := xxhash.New()
	var word [8]byte
	write := func(vals []int) {
		binary.LittleEndian.PutUint64(word[:], uint64(len(vals)))
		_, _ = h.Write(word[:])
		for _, v := range vals {
			binary.LittleEndian.PutUint64(word[:], uint64(v))
			_, _ = h.Write(word[:])
		}
	}
	write(t.destinations)
	write(t.offsets)
	write(t.IndexBuffer())
	return h.Sum64()
}

func (t *Table) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Table{%d destinations, %d sends", len(t.destinations), t.TotalSends())
	for _, r := range t.Routes() {
		fmt.Fprintf(&sb, " %d:[%d+%d]", r.Rank, r.Offset, r.Count)
	}
	sb.WriteString("}")
	return sb.String()
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
