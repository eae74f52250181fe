package terrain

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/raster"
)

// MetersPerDegreeLat approximates the length of one degree of latitude.
const MetersPerDegreeLat = 111132.0

// IsAngular reports whether gt looks like a geographic (degree) grid. The
// test is a cell-width heuristic, kept separate so it can later be replaced
// with a CRS-aware check.
func IsAngular(gt raster.GeoTransform) bool {
	return gt.CellWidth < 1.0
}

// Slope computes the slope in degrees of every cell. Gradients use central
// differences in the interior and one-sided differences on the borders.
// Differences are taken over the raw cell values, so a valid cell next to
// nodata sees the sentinel in its gradient. Only cells invalid in the
// source come out as NaN.
func Slope(dem *raster.Grid) *raster.Grid {
	w, h := dem.Width, dem.Height
	xres, yres := resolution(dem)

	z := make([]float64, len(dem.Data))
	for i, v := range dem.Data {
		z[i] = float64(v)
	}

	out := raster.NewGrid(w, h, dem.Transform, dem.CRS)
	nan := float32(math.NaN())
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			i := r*w + c
			if !dem.Valid(dem.Data[i]) {
				out.Data[i] = nan
				continue
			}
			dx := gradient(z, i, c, w, 1, xres)
			dy := gradient(z, i, r, h, w, yres)
			out.Data[i] = float32(math.Atan(math.Sqrt(dx*dx+dy*dy)) * 180 / math.Pi)
		}
	}

	zap.L().Debug("terrain: slope computed",
		zap.Float64("xres_m", xres),
		zap.Float64("yres_m", yres),
		zap.Bool("angular", IsAngular(dem.Transform)),
	)
	return out
}

// resolution returns the cell size in meters along x and y.
func resolution(g *raster.Grid) (xres, yres float64) {
	gt := g.Transform
	if !IsAngular(gt) {
		return gt.CellWidth, math.Abs(gt.CellHeight)
	}
	_, lat := gt.Apply(float64(g.Width)/2, float64(g.Height)/2)
	perLon := MetersPerDegreeLat * math.Cos(lat*math.Pi/180)
	return gt.CellWidth * perLon, math.Abs(gt.CellHeight) * MetersPerDegreeLat
}

// gradient differentiates z at flat index i along one axis, where pos is the
// position on that axis, n its length and stride the index step.
func gradient(z []float64, i, pos, n, stride int, spacing float64) float64 {
	switch {
	case n < 2:
		return 0
	case pos == 0:
		return (z[i+stride] - z[i]) / spacing
	case pos == n-1:
		return (z[i] - z[i-stride]) / spacing
	default:
		return (z[i+stride] - z[i-stride]) / (2 * spacing)
	}
}
