package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/terrain-cli/internal/crs"
)

func square(x0, y0, x1, y1 float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x0, y0, x1, y0, x1, y1, x0, y1, x0, y0,
	}, []int{10})
}

func multi(polys ...*geom.Polygon) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range polys {
		if err := mp.Push(p); err != nil {
			panic(err)
		}
	}
	return mp
}

func aoi(c crs.CRS, polys ...*geom.Polygon) *AOI {
	return &AOI{Name: "test", CRS: c, Geometry: multi(polys...)}
}

func features(c crs.CRS, polys ...*geom.Polygon) *FeatureSet {
	fs := NewFeatureSet(c)
	for i, p := range polys {
		fs.Add(p, map[string]any{"band_id": i + 1})
	}
	return fs
}

func TestClip_ContainedFeatureUnchanged(t *testing.T) {
	in := features(crs.WGS84, square(1, 1, 2, 2))
	out, err := Clip(in, aoi(crs.WGS84, square(0, 0, 10, 10)))
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, in.Features[0], out.Features[0])
}

func TestClip_DisjointDropped(t *testing.T) {
	in := features(crs.WGS84, square(20, 20, 21, 21))
	out, err := Clip(in, aoi(crs.WGS84, square(0, 0, 10, 10)))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, crs.WGS84, out.CRS)
}

func TestClip_BoundsOverlapButOutsideConcaveMask(t *testing.T) {
	// Mask is an L; the feature sits in the notch.
	mask := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 10, 0, 10, 2, 2, 2, 2, 10, 0, 10, 0, 0,
	}, []int{14})
	in := features(crs.WGS84, square(5, 5, 6, 6))
	out, err := Clip(in, aoi(crs.WGS84, mask))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestClip_PartialOverlapIntersected(t *testing.T) {
	in := features(crs.WGS84, square(0, 0, 2, 2))
	out, err := Clip(in, aoi(crs.WGS84, square(1, 1, 3, 3)))
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	f := out.Features[0]
	assert.Equal(t, map[string]any{"band_id": 1}, f.Properties)
	b := BoundsOf(f.Geometry)
	assert.InDelta(t, 1, b.West, 1e-9)
	assert.InDelta(t, 1, b.South, 1e-9)
	assert.InDelta(t, 2, b.East, 1e-9)
	assert.InDelta(t, 2, b.North, 1e-9)

	poly, ok := f.Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.InDelta(t, 1.0, poly.Area(), 1e-9)
	assert.Greater(t, ringArea(poly.LinearRing(0)), 0.0)
}

func TestClip_StraddlingEdgeNotContained(t *testing.T) {
	// All vertices are inside the mask but an edge crosses its notch.
	mask := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 10, 0, 10, 10, 6, 10, 6, 4, 4, 4, 4, 10, 0, 10, 0, 0,
	}, []int{18})
	in := features(crs.WGS84, square(1, 6, 9, 8))
	out, err := Clip(in, aoi(crs.WGS84, mask))
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.InDelta(t, 12.0, out.Features[0].Geometry.(*geom.MultiPolygon).Area(), 1e-9)
}

func TestClip_CRSMismatch(t *testing.T) {
	in := features(crs.CRS{EPSG: 26912}, square(1, 1, 2, 2))
	_, err := Clip(in, aoi(crs.WGS84, square(0, 0, 10, 10)))
	assert.ErrorIs(t, err, ErrCRSMismatch)
}

func TestClip_CompatibleDatums(t *testing.T) {
	in := features(crs.NAD83, square(1, 1, 2, 2))
	out, err := Clip(in, aoi(crs.WGS84, square(0, 0, 10, 10)))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, crs.NAD83, out.CRS)
}

func TestClip_EmptyInput(t *testing.T) {
	out, err := Clip(NewFeatureSet(crs.WGS84), aoi(crs.WGS84, square(0, 0, 1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestBuffer(t *testing.T) {
	out := Buffer(multi(square(0, 0, 1, 1)), 0.5)
	require.Equal(t, 1, out.NumPolygons())

	b := BoundsOf(out)
	assert.InDelta(t, -0.5, b.West, 1e-9)
	assert.InDelta(t, -0.5, b.South, 1e-9)
	assert.InDelta(t, 1.5, b.East, 1e-9)
	assert.InDelta(t, 1.5, b.North, 1e-9)
	// Square, four edge strips and a 32-gon's worth of rounded corners.
	assert.InDelta(t, 3.78, out.Area(), 0.01)
}

func TestBuffer_NonPositiveDistance(t *testing.T) {
	in := multi(square(0, 0, 1, 1))
	out := Buffer(in, 0)
	assert.Equal(t, in.FlatCoords(), out.FlatCoords())
}

func TestDissolve(t *testing.T) {
	fs := features(crs.WGS84, square(0, 0, 2, 2), square(1, 1, 3, 3), square(10, 10, 11, 11))
	mp := Dissolve(fs)
	assert.Equal(t, 2, mp.NumPolygons())
	assert.InDelta(t, 8.0, mp.Area(), 1e-9)
}

func TestBBox(t *testing.T) {
	b := BBox{West: -110.5, South: 45, East: -110, North: 45.5}
	assert.Equal(t, "-110.5,45,-110,45.5", b.String())
	assert.True(t, b.Intersects(BBox{West: -110.2, South: 44, East: -109, North: 45.1}))
	assert.False(t, b.Intersects(BBox{West: -100, South: 44, East: -99, North: 45.1}))
	assert.True(t, b.Contains(BBox{West: -110.4, South: 45.1, East: -110.1, North: 45.4}))
	assert.False(t, b.IsEmpty())
	assert.True(t, BBox{West: 1, East: 0}.IsEmpty())
}
