package terrain

import (
	"fmt"
	"math"

	"github.com/sells-group/terrain-cli/internal/raster"
)

// FeetToMeters converts international feet to meters.
const FeetToMeters = 0.3048

// Labeler returns the extra attributes attached to polygons of a class.
// A nil result adds nothing.
type Labeler func(class uint8) map[string]any

// ElevationEdges returns band edges every interval meters spanning
// [min, max], aligned to multiples of the interval.
func ElevationEdges(minV, maxV, interval float64) []float64 {
	start := math.Floor(minV/interval) * interval
	end := math.Ceil(maxV/interval) * interval
	if end <= start {
		end = start + interval
	}
	n := int(math.Round((end - start) / interval))
	edges := make([]float64, 0, n+1)
	for k := 0; k <= n; k++ {
		edges = append(edges, start+float64(k)*interval)
	}
	return edges
}

// ElevationLabeler labels classes produced by Classify with edges in meters.
// Class c covers [edges[c-2], edges[c-1]); the lowest and highest classes
// are open-ended.
func ElevationLabeler(edges []float64) Labeler {
	sorted := normalizeEdges(edges)
	return func(class uint8) map[string]any {
		if class == 0 || len(sorted) == 0 {
			return nil
		}
		lo, hi := int(class)-2, int(class)-1
		switch {
		case lo < 0:
			return map[string]any{
				"label": fmt.Sprintf("<%d ft", feet(sorted[0])),
				"max_m": sorted[0],
			}
		case hi >= len(sorted):
			if lo >= len(sorted) {
				return nil
			}
			return map[string]any{
				"label": fmt.Sprintf("%d+ ft", feet(sorted[lo])),
				"min_m": sorted[lo],
			}
		default:
			return map[string]any{
				"label": fmt.Sprintf("%d-%d ft", feet(sorted[lo]), feet(sorted[hi])),
				"min_m": sorted[lo],
				"max_m": sorted[hi],
			}
		}
	}
}

// SlopeLabeler labels the steep-slope mask.
func SlopeLabeler(thresholdDeg float64) Labeler {
	return func(class uint8) map[string]any {
		if class == 0 {
			return nil
		}
		return map[string]any{
			"label":   fmt.Sprintf("> %s degrees", formatDeg(thresholdDeg)),
			"min_deg": thresholdDeg,
		}
	}
}

// SlopeMask keeps cells strictly steeper than thresholdDeg as class 1.
// A cell exactly at the threshold is excluded.
func SlopeMask(slope *raster.Grid, thresholdDeg float64) (*raster.ClassGrid, error) {
	// Classify puts an edge value in the band above, so the edge sits just
	// past the threshold.
	edge := math.Nextafter(thresholdDeg, math.Inf(1))
	cg, err := Classify(slope, []float64{edge})
	if err != nil {
		return nil, err
	}
	return Select(cg, 2), nil
}

func feet(m float64) int {
	return int(math.Round(m / FeetToMeters))
}

func formatDeg(d float64) string {
	if d == math.Trunc(d) {
		return fmt.Sprintf("%d", int(d))
	}
	return fmt.Sprintf("%g", d)
}
