package vector

import (
	"math"

	cgeom "github.com/ctessum/geom"
	"github.com/twpayne/go-geom"
)

// BufferSegments is the number of vertices used to approximate the round
// joins around each corner.
const BufferSegments = 32

// MilesPerDegree is the flat-earth conversion used for geographic buffers.
const MilesPerDegree = 69.0

// MetersPerMile converts statute miles to meters.
const MetersPerMile = 1609.344

// Buffer grows mp outward by distance (in its coordinate units) with round
// joins. It unions the polygons with a rectangle along every edge and a
// disc at every vertex. A non-positive distance returns a copy of mp.
func Buffer(mp *geom.MultiPolygon, distance float64) *geom.MultiPolygon {
	if distance <= 0 || mp.NumPolygons() == 0 {
		return mp.Clone()
	}

	var pieces []cgeom.Polygonal
	for _, poly := range toCPolygons(mp) {
		if len(poly) == 0 {
			continue
		}
		pieces = append(pieces, poly)
		for _, path := range poly {
			for i := range path {
				a, b := path[i], path[(i+1)%len(path)]
				if r := edgeRect(a, b, distance); r != nil {
					pieces = append(pieces, r)
				}
				pieces = append(pieces, disc(a, distance, BufferSegments))
			}
		}
	}

	out := fromCPolygonal(unionAll(pieces))
	out.SetSRID(mp.SRID())
	return out
}

func edgeRect(a, b cgeom.Point, d float64) cgeom.Polygon {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return nil
	}
	nx, ny := -dy/l*d, dx/l*d
	return cgeom.Polygon{{
		{X: a.X + nx, Y: a.Y + ny},
		{X: a.X - nx, Y: a.Y - ny},
		{X: b.X - nx, Y: b.Y - ny},
		{X: b.X + nx, Y: b.Y + ny},
	}}
}

func disc(c cgeom.Point, r float64, n int) cgeom.Polygon {
	path := make(cgeom.Path, n)
	for i := range path {
		t := 2 * math.Pi * float64(i) / float64(n)
		path[i] = cgeom.Point{X: c.X + r*math.Cos(t), Y: c.Y + r*math.Sin(t)}
	}
	return cgeom.Polygon{path}
}
