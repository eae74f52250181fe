// Package vector holds the polygon side of the pipeline: areas of interest,
// raster vectorization, clipping, buffering and feature I/O.
package vector

import (
	"maps"
	"math"
	"strconv"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/terrain-cli/internal/crs"
)

// BBox is an axis-aligned bounding box.
type BBox struct {
	West, South, East, North float64
}

// BoundsOf returns the bounding box of g.
func BoundsOf(g geom.T) BBox {
	b := g.Bounds()
	if b.IsEmpty() {
		return BBox{West: math.Inf(1), South: math.Inf(1), East: math.Inf(-1), North: math.Inf(-1)}
	}
	return BBox{West: b.Min(0), South: b.Min(1), East: b.Max(0), North: b.Max(1)}
}

// String renders "west,south,east,north", the catalog's bbox format.
func (b BBox) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(b.West) + "," + f(b.South) + "," + f(b.East) + "," + f(b.North)
}

// IsEmpty reports whether the box encloses nothing.
func (b BBox) IsEmpty() bool { return b.West > b.East || b.South > b.North }

// Intersects reports whether b and o share any point.
func (b BBox) Intersects(o BBox) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.West <= o.East && o.West <= b.East && b.South <= o.North && o.South <= b.North
}

// Contains reports whether o lies entirely inside b.
func (b BBox) Contains(o BBox) bool {
	return !o.IsEmpty() && b.West <= o.West && o.East <= b.East && b.South <= o.South && o.North <= b.North
}

// Feature is one polygonal geometry with its attributes.
type Feature struct {
	Geometry   geom.T
	Properties map[string]any
}

// FeatureSet is an ordered collection of features in one CRS.
type FeatureSet struct {
	CRS      crs.CRS
	Features []Feature
}

// NewFeatureSet returns an empty set in c.
func NewFeatureSet(c crs.CRS) *FeatureSet {
	return &FeatureSet{CRS: c, Features: []Feature{}}
}

// Len returns the number of features.
func (fs *FeatureSet) Len() int { return len(fs.Features) }

// Add appends a feature.
func (fs *FeatureSet) Add(g geom.T, props map[string]any) {
	fs.Features = append(fs.Features, Feature{Geometry: g, Properties: props})
}

func cloneProps(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return maps.Clone(p)
}
