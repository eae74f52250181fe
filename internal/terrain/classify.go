// Package terrain derives slope and classified band rasters from elevation
// grids.
package terrain

import (
	"slices"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/terrain-cli/internal/raster"
)

// MaxEdges is the largest edge set whose classes still fit in a uint8.
const MaxEdges = 254

// ErrTooManyEdges is returned when the edge set would overflow class IDs.
var ErrTooManyEdges = eris.New("terrain: too many band edges")

// Classify assigns every cell of g a band class. Invalid cells get 0. A
// valid value v gets 1 + the number of edges <= v, so a value sitting
// exactly on an edge belongs to the band above it.
func Classify(g *raster.Grid, edges []float64) (*raster.ClassGrid, error) {
	sorted := normalizeEdges(edges)
	if len(sorted) > MaxEdges {
		return nil, eris.Wrapf(ErrTooManyEdges, "%d edges (max %d)", len(sorted), MaxEdges)
	}

	out := raster.NewClassGrid(g)
	for i, v := range g.Data {
		if !g.Valid(v) {
			continue
		}
		f := float64(v)
		n := sort.Search(len(sorted), func(k int) bool { return sorted[k] > f })
		out.Classes[i] = uint8(n + 1)
	}
	return out, nil
}

// Select keeps the listed classes as 1 and sets every other cell to 0.
func Select(cg *raster.ClassGrid, keep ...uint8) *raster.ClassGrid {
	out := &raster.ClassGrid{
		Width:     cg.Width,
		Height:    cg.Height,
		Classes:   make([]uint8, len(cg.Classes)),
		Transform: cg.Transform,
		CRS:       cg.CRS,
	}
	for i, c := range cg.Classes {
		if c != 0 && slices.Contains(keep, c) {
			out.Classes[i] = 1
		}
	}
	return out
}

func normalizeEdges(edges []float64) []float64 {
	out := slices.Clone(edges)
	slices.Sort(out)
	return slices.Compact(out)
}
