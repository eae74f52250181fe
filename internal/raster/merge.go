package raster

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/crs"
)

const cellSizeTolerance = 1e-9

// Merge mosaics co-registered tiles into one grid covering the union of
// their extents. Earlier tiles win where tiles overlap, and a nodata cell
// never overwrites. CRS, resolution and nodata come from the first tile.
func Merge(tiles []*Grid) (*Grid, error) {
	if len(tiles) == 0 {
		return nil, ErrNoTilesFound
	}

	first := tiles[0]
	if err := checkLayout(first); err != nil {
		return nil, err
	}
	gt := first.Transform

	minX, minY, maxX, maxY := first.Extent()
	for i, t := range tiles[1:] {
		if err := checkLayout(t); err != nil {
			return nil, eris.Wrapf(err, "raster: tile %d", i+1)
		}
		if err := checkCoRegistered(first, t); err != nil {
			return nil, eris.Wrapf(err, "raster: tile %d", i+1)
		}
		x0, y0, x1, y1 := t.Extent()
		minX, minY = math.Min(minX, x0), math.Min(minY, y0)
		maxX, maxY = math.Max(maxX, x1), math.Max(maxY, y1)
	}

	out := &Grid{
		Width:  int(math.Round((maxX - minX) / gt.CellWidth)),
		Height: int(math.Round((maxY - minY) / math.Abs(gt.CellHeight))),
		Transform: GeoTransform{
			OriginX:    minX,
			CellWidth:  gt.CellWidth,
			OriginY:    maxY,
			CellHeight: gt.CellHeight,
		},
		CRS:       first.CRS,
		NoData:    first.NoData,
		HasNoData: first.HasNoData,
	}
	if gt.CellHeight > 0 {
		out.Transform.OriginY = minY
	}
	out.Data = make([]float32, out.Width*out.Height)

	fill := float32(math.NaN())
	if out.HasNoData {
		fill = float32(out.NoData)
	}
	out.Fill(fill)

	filled := make([]bool, len(out.Data))
	for i, t := range tiles {
		colOff := int(math.Round((t.Transform.OriginX - out.Transform.OriginX) / gt.CellWidth))
		rowOff := int(math.Round((t.Transform.OriginY - out.Transform.OriginY) / gt.CellHeight))

		for r := 0; r < t.Height; r++ {
			dr := r + rowOff
			if dr < 0 || dr >= out.Height {
				continue
			}
			for c := 0; c < t.Width; c++ {
				dc := c + colOff
				if dc < 0 || dc >= out.Width {
					continue
				}
				idx := dr*out.Width + dc
				if filled[idx] {
					continue
				}
				v := t.Data[r*t.Width+c]
				valid := t.Valid(v)
				// The first tile is copied verbatim so a single-tile mosaic
				// reproduces its input exactly.
				if i == 0 {
					out.Data[idx] = v
					filled[idx] = valid
					continue
				}
				if valid {
					out.Data[idx] = v
					filled[idx] = true
				}
			}
		}
	}

	zap.L().Debug("raster: merged tiles",
		zap.Int("tiles", len(tiles)),
		zap.Int("width", out.Width),
		zap.Int("height", out.Height),
	)
	return out, nil
}

func checkLayout(g *Grid) error {
	if g.Transform.IsRotated() {
		return eris.Wrap(ErrUnsupportedRaster, "rotated geotransform")
	}
	if g.Transform.CellWidth <= 0 || g.Transform.CellHeight == 0 {
		return eris.Wrap(ErrUnsupportedRaster, "degenerate cell size")
	}
	if len(g.Data) != g.Width*g.Height {
		return eris.Wrapf(ErrUnsupportedRaster, "data length %d does not match %dx%d", len(g.Data), g.Width, g.Height)
	}
	return nil
}

func checkCoRegistered(a, b *Grid) error {
	if a.CRS != b.CRS && !crs.Compatible(a.CRS, b.CRS) {
		return eris.Wrapf(ErrNotCoRegistered, "crs %q vs %q", a.CRS, b.CRS)
	}
	if !sameSize(a.Transform.CellWidth, b.Transform.CellWidth) ||
		!sameSize(a.Transform.CellHeight, b.Transform.CellHeight) {
		return eris.Wrapf(ErrNotCoRegistered, "cell size %gx%g vs %gx%g",
			a.Transform.CellWidth, a.Transform.CellHeight, b.Transform.CellWidth, b.Transform.CellHeight)
	}
	return nil
}

func sameSize(a, b float64) bool {
	return math.Abs(a-b) <= cellSizeTolerance*math.Abs(a)
}
