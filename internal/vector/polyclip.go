package vector

import (
	"math"
	"sort"

	cgeom "github.com/ctessum/geom"
	"github.com/twpayne/go-geom"
)

// Conversions between go-geom (the feature model) and ctessum/geom (the
// polygon boolean engine). ctessum rings are implicitly closed, go-geom
// rings repeat their first vertex.

func toCPolygon(p *geom.Polygon) cgeom.Polygon {
	out := make(cgeom.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		if n := len(coords); n > 1 && coords[0].Equal(geom.XY, coords[n-1]) {
			coords = coords[:n-1]
		}
		if len(coords) < 3 {
			continue
		}
		path := make(cgeom.Path, len(coords))
		for j, c := range coords {
			path[j] = cgeom.Point{X: c.X(), Y: c.Y()}
		}
		out = append(out, path)
	}
	return out
}

// toCPolygons flattens a polygonal go-geom geometry into one ctessum
// polygon per part.
func toCPolygons(g geom.T) []cgeom.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		return []cgeom.Polygon{toCPolygon(t)}
	case *geom.MultiPolygon:
		out := make([]cgeom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, toCPolygon(t.Polygon(i)))
		}
		return out
	default:
		return nil
	}
}

// toCPolygonal merges the rings of every part into a single ctessum
// polygon. Parts are disjoint, so the even-odd ring set is equivalent.
func toCPolygonal(g geom.T) cgeom.Polygon {
	var out cgeom.Polygon
	for _, p := range toCPolygons(g) {
		out = append(out, p...)
	}
	return out
}

type ring struct {
	pts   cgeom.Path
	area  float64
	depth int
}

// fromCPolygonal rebuilds go-geom polygons from the rings of a ctessum
// result. Ring roles come from nesting depth: even depth is a shell, odd
// depth a hole of the smallest enclosing shell. Shells are oriented
// counter-clockwise and holes clockwise.
func fromCPolygonal(pg cgeom.Polygonal) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	if pg == nil {
		return mp
	}

	var rings []*ring
	for _, poly := range pg.Polygons() {
		for _, path := range poly {
			path = trimClosed(path)
			if len(path) < 3 {
				continue
			}
			a := signedArea(path)
			if math.Abs(a) <= areaEpsilon(path) {
				continue
			}
			rings = append(rings, &ring{pts: path, area: a})
		}
	}
	if len(rings) == 0 {
		return mp
	}

	for i, r := range rings {
		px, py := probe(r.pts)
		for j, o := range rings {
			if i != j && math.Abs(o.area) > math.Abs(r.area) && pointInPath(px, py, o.pts) {
				r.depth++
			}
		}
	}

	// Largest first, so shells precede the holes they enclose.
	sort.SliceStable(rings, func(i, j int) bool { return math.Abs(rings[i].area) > math.Abs(rings[j].area) })

	type shell struct {
		r     *ring
		holes []*ring
	}
	var shells []*shell
	for _, r := range rings {
		if r.depth%2 == 0 {
			shells = append(shells, &shell{r: r})
			continue
		}
		px, py := probe(r.pts)
		var parent *shell
		for _, s := range shells {
			if s.r.depth == r.depth-1 && pointInPath(px, py, s.r.pts) {
				if parent == nil || math.Abs(s.r.area) < math.Abs(parent.r.area) {
					parent = s
				}
			}
		}
		if parent != nil {
			parent.holes = append(parent.holes, r)
		}
	}

	for _, s := range shells {
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(linearRing(s.r.pts, true)); err != nil {
			continue
		}
		for _, h := range s.holes {
			_ = poly.Push(linearRing(h.pts, false))
		}
		_ = mp.Push(poly)
	}
	return mp
}

// simplest returns a single polygon when mp has exactly one part.
func simplest(mp *geom.MultiPolygon) geom.T {
	if mp.NumPolygons() == 1 {
		return mp.Polygon(0)
	}
	return mp
}

func linearRing(path cgeom.Path, ccw bool) *geom.LinearRing {
	flat := make([]float64, 0, 2*(len(path)+1))
	if (signedArea(path) > 0) == ccw {
		for _, p := range path {
			flat = append(flat, p.X, p.Y)
		}
	} else {
		for i := len(path) - 1; i >= 0; i-- {
			flat = append(flat, path[i].X, path[i].Y)
		}
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewLinearRingFlat(geom.XY, flat)
}

func trimClosed(p cgeom.Path) cgeom.Path {
	if n := len(p); n > 1 && p[0] == p[n-1] {
		return p[:n-1]
	}
	return p
}

// signedArea is positive for counter-clockwise rings.
func signedArea(p cgeom.Path) float64 {
	var a float64
	for i := range p {
		j := (i + 1) % len(p)
		a += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return a / 2
}

// areaEpsilon scales a degeneracy threshold to the ring's extent.
func areaEpsilon(p cgeom.Path) float64 {
	b := cgeom.Polygon{p}.Bounds()
	w, h := b.Max.X-b.Min.X, b.Max.Y-b.Min.Y
	return 1e-12 * math.Max(w*h, 1e-300)
}

// probe returns a point on the ring's first edge, used to test nesting.
func probe(p cgeom.Path) (float64, float64) {
	return (p[0].X + p[1].X) / 2, (p[0].Y + p[1].Y) / 2
}

// pointInPath is the even-odd ray casting test.
func pointInPath(x, y float64, p cgeom.Path) bool {
	in := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		a, b := p[i], p[j]
		if (a.Y > y) != (b.Y > y) && x < (b.X-a.X)*(y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

// pointInPolygons reports whether (x, y) is inside any part, honoring holes.
func pointInPolygons(x, y float64, polys []cgeom.Polygon) bool {
	for _, poly := range polys {
		in := false
		for _, path := range poly {
			if pointInPath(x, y, path) {
				in = !in
			}
		}
		if in {
			return true
		}
	}
	return false
}

// properCrossing reports whether segments ab and cd cross at a single
// interior point of both.
func properCrossing(a, b, c, d cgeom.Point) bool {
	d1 := orient(c, d, a)
	d2 := orient(c, d, b)
	d3 := orient(a, b, c)
	d4 := orient(a, b, d)
	return d1*d2 < 0 && d3*d4 < 0
}

func orient(a, b, c cgeom.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// unionAll merges polygons by pairwise rounds so each union stays small.
func unionAll(polys []cgeom.Polygonal) cgeom.Polygonal {
	if len(polys) == 0 {
		return nil
	}
	for len(polys) > 1 {
		next := make([]cgeom.Polygonal, 0, (len(polys)+1)/2)
		for i := 0; i < len(polys); i += 2 {
			if i+1 == len(polys) {
				next = append(next, polys[i])
				continue
			}
			next = append(next, union(polys[i], polys[i+1]))
		}
		polys = next
	}
	return polys[0]
}

func union(a, b cgeom.Polygonal) cgeom.Polygonal {
	u := a.Union(b)
	if u == nil {
		return cgeom.Polygon{}
	}
	return u
}
