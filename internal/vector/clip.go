package vector

import (
	cgeom "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/crs"
)

// ErrCRSMismatch is returned when features and clip geometry are in
// different, incompatible coordinate systems.
var ErrCRSMismatch = eris.New("vector: CRS mismatch")

// Clip restricts fs to the area of mask. Features outside the mask are
// dropped, features entirely inside are returned unchanged, and the rest
// are replaced by their intersection with the mask.
func Clip(fs *FeatureSet, mask *AOI) (*FeatureSet, error) {
	if fs.CRS != mask.CRS && !crs.Compatible(fs.CRS, mask.CRS) {
		return nil, eris.Wrapf(ErrCRSMismatch, "features %s, clip %s", fs.CRS, mask.CRS)
	}

	out := NewFeatureSet(fs.CRS)
	if fs.Len() == 0 || mask.Geometry == nil || mask.Geometry.NumPolygons() == 0 {
		return out, nil
	}

	c := newClipper(mask.Geometry)
	var kept, cut int
	for _, f := range fs.Features {
		fb := BoundsOf(f.Geometry)
		if !c.bounds.Intersects(fb) {
			continue
		}
		if c.contains(f.Geometry, fb) {
			out.Features = append(out.Features, f)
			kept++
			continue
		}
		g := c.intersect(f.Geometry)
		if g == nil {
			continue
		}
		out.Add(g, cloneProps(f.Properties))
		cut++
	}

	zap.L().Debug("vector: clipped features",
		zap.Int("in", fs.Len()),
		zap.Int("unchanged", kept),
		zap.Int("intersected", cut),
	)
	return out, nil
}

type segment struct {
	a, b cgeom.Point
	box  BBox
}

type clipper struct {
	parts    []cgeom.Polygon
	polygon  cgeom.Polygon
	bounds   BBox
	segments []segment
}

func newClipper(mask *geom.MultiPolygon) *clipper {
	c := &clipper{
		parts:   toCPolygons(mask),
		polygon: toCPolygonal(mask),
		bounds:  BoundsOf(mask),
	}
	for _, path := range c.polygon {
		c.segments = appendSegments(c.segments, path)
	}
	return c
}

func appendSegments(dst []segment, path cgeom.Path) []segment {
	for i := range path {
		a, b := path[i], path[(i+1)%len(path)]
		dst = append(dst, segment{a: a, b: b, box: BBox{
			West: min(a.X, b.X), South: min(a.Y, b.Y),
			East: max(a.X, b.X), North: max(a.Y, b.Y),
		}})
	}
	return dst
}

// contains reports whether every vertex of g is inside the mask and no edge
// of g properly crosses a mask edge.
func (c *clipper) contains(g geom.T, gb BBox) bool {
	if !c.bounds.Contains(gb) {
		return false
	}
	for _, poly := range toCPolygons(g) {
		for _, path := range poly {
			for _, p := range path {
				if !pointInPolygons(p.X, p.Y, c.parts) {
					return false
				}
			}
			for _, s := range appendSegments(nil, path) {
				for _, m := range c.segments {
					if s.box.Intersects(m.box) && properCrossing(s.a, s.b, m.a, m.b) {
						return false
					}
				}
			}
		}
	}
	return true
}

// intersect returns the part of g inside the mask, or nil when empty.
func (c *clipper) intersect(g geom.T) geom.T {
	src := toCPolygonal(g)
	if len(src) == 0 {
		return nil
	}
	res := src.Intersection(c.polygon)
	if res == nil {
		return nil
	}
	mp := fromCPolygonal(res)
	if mp.NumPolygons() == 0 {
		return nil
	}
	return simplest(mp)
}
