// Package raster holds the in-memory single-band grid model shared by the
// mosaic, slope, classification and vectorization stages.
package raster

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/terrain-cli/internal/crs"
)

var (
	// ErrNoTilesFound is returned when there is nothing to mosaic.
	ErrNoTilesFound = eris.New("raster: no tiles found")
	// ErrEmptyRaster is returned when every cell is nodata or non-finite.
	ErrEmptyRaster = eris.New("raster: no valid cells")
	// ErrNotCoRegistered is returned when tiles differ in CRS or cell size.
	ErrNotCoRegistered = eris.New("raster: tiles are not co-registered")
	// ErrUnsupportedRaster covers rotated and multi-band inputs.
	ErrUnsupportedRaster = eris.New("raster: unsupported raster layout")
)

// GeoTransform is the affine mapping from cell indices to world coordinates,
// in GDAL order.
type GeoTransform struct {
	OriginX   float64
	CellWidth float64
	RotationX float64
	OriginY   float64
	RotationY float64
	// CellHeight is negative for north-up rasters.
	CellHeight float64
}

// Apply maps a (col, row) position in cell units to world coordinates.
func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	x = gt.OriginX + col*gt.CellWidth + row*gt.RotationX
	y = gt.OriginY + col*gt.RotationY + row*gt.CellHeight
	return x, y
}

// IsRotated reports whether the transform has rotation or shear terms.
func (gt GeoTransform) IsRotated() bool {
	return gt.RotationX != 0 || gt.RotationY != 0
}

// Grid is a single-band raster of float32 cells in row-major order.
type Grid struct {
	Width     int
	Height    int
	Data      []float32
	Transform GeoTransform
	CRS       crs.CRS
	NoData    float64
	HasNoData bool
}

// NewGrid allocates a zero-filled grid.
func NewGrid(width, height int, gt GeoTransform, c crs.CRS) *Grid {
	return &Grid{
		Width:     width,
		Height:    height,
		Data:      make([]float32, width*height),
		Transform: gt,
		CRS:       c,
	}
}

// At returns the value at (col, row).
func (g *Grid) At(col, row int) float32 { return g.Data[row*g.Width+col] }

// Set stores v at (col, row).
func (g *Grid) Set(col, row int, v float32) { g.Data[row*g.Width+col] = v }

// Fill sets every cell to v.
func (g *Grid) Fill(v float32) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// SetNoData records the nodata sentinel.
func (g *Grid) SetNoData(v float64) {
	g.NoData = v
	g.HasNoData = true
}

// Valid reports whether v is a real measurement: finite and not the nodata
// sentinel. The sentinel is compared at cell precision.
func (g *Grid) Valid(v float32) bool {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	if g.HasNoData && v == float32(g.NoData) {
		return false
	}
	return true
}

// Extent returns the world-coordinate bounds of the grid.
func (g *Grid) Extent() (minX, minY, maxX, maxY float64) {
	return extent(g.Width, g.Height, g.Transform)
}

func extent(w, h int, gt GeoTransform) (minX, minY, maxX, maxY float64) {
	x0, y0 := gt.Apply(0, 0)
	x1, y1 := gt.Apply(float64(w), float64(h))
	return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)
}

// ClassGrid is a raster of small class IDs sharing its source's shape,
// transform and CRS. Class 0 means "excluded".
type ClassGrid struct {
	Width     int
	Height    int
	Classes   []uint8
	Transform GeoTransform
	CRS       crs.CRS
}

// NewClassGrid allocates an all-zero class grid shaped like src.
func NewClassGrid(src *Grid) *ClassGrid {
	return &ClassGrid{
		Width:     src.Width,
		Height:    src.Height,
		Classes:   make([]uint8, src.Width*src.Height),
		Transform: src.Transform,
		CRS:       src.CRS,
	}
}

// At returns the class at (col, row).
func (c *ClassGrid) At(col, row int) uint8 { return c.Classes[row*c.Width+col] }

// Counts tallies cells per non-zero class.
func (c *ClassGrid) Counts() map[uint8]int {
	out := make(map[uint8]int)
	for _, v := range c.Classes {
		if v != 0 {
			out[v]++
		}
	}
	return out
}
