package grid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Dims describes a regular Nx × Ny × Nz grid of unit cells.
// Cell (i, j, k) has global ID i + Nx*(j + Ny*k) and sits at coordinate (i, j, k).
type Dims struct {
	Nx int `yaml:"nx"`
	Ny int `yaml:"ny"`
	Nz int `yaml:"nz"`
}

// NumCells returns Nx*Ny*Nz
func (d Dims) NumCells() int64 {
	return int64(d.Nx) * int64(d.Ny) * int64(d.Nz)
}

// Validate rejects empty or negative extents
func (d Dims) Validate() error {
	if d.Nx <= 0 || d.Ny <= 0 || d.Nz <= 0 {
		return fmt.Errorf("invalid grid dimensions: nx=%d, ny=%d, nz=%d", d.Nx, d.Ny, d.Nz)
	}
	return nil
}

// Contains reports whether gid addresses a cell of the grid
func (d Dims) Contains(gid int64) bool {
	return gid >= 0 && gid < d.NumCells()
}

// Index converts a global ID to its (i, j, k) cell index
func (d Dims) Index(gid int64) (i, j, k int) {
	nx, ny := int64(d.Nx), int64(d.Ny)
	i = int(gid % nx)
	j = int((gid / nx) % ny)
	k = int(gid / (nx * ny))
	return i, j, k
}

// GID converts a cell index to its global ID. The index is not range checked.
func (d Dims) GID(i, j, k int) int64 {
	return int64(i) + int64(d.Nx)*(int64(j)+int64(d.Ny)*int64(k))
}

// InBounds reports whether (i, j, k) lies inside the grid
func (d Dims) InBounds(i, j, k int) bool {
	return i >= 0 && i < d.Nx && j >= 0 && j < d.Ny && k >= 0 && k < d.Nz
}

// Coordinate returns the physical location of a cell center
func (d Dims) Coordinate(gid int64) r3.Vec {
	i, j, k := d.Index(gid)
	return r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)}
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.Nx, d.Ny, d.Nz)
}
