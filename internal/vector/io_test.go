package vector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/terrain-cli/internal/crs"
)

const districtGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"NAME": "HD 360"},
     "geometry": {"type": "Polygon", "coordinates": [[[-110.4,45.1],[-110.1,45.1],[-110.1,45.4],[-110.4,45.4],[-110.4,45.1]]]}}
  ]
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestGeoJSON_RoundTrip(t *testing.T) {
	fs := NewFeatureSet(crs.NAD83)
	fs.Add(square(0, 0, 1, 1), map[string]any{"band_id": 2, "label": "6000-7000 ft"})

	path := filepath.Join(t.TempDir(), "elevation_bands.geojson")
	require.NoError(t, WriteGeoJSON(path, fs))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"elevation_bands"`)
	assert.Contains(t, string(raw), `urn:ogc:def:crs:EPSG::4269`)

	back, err := ReadGeoJSON(path)
	require.NoError(t, err)
	assert.Equal(t, crs.NAD83, back.CRS)
	require.Equal(t, 1, back.Len())
	assert.Equal(t, "6000-7000 ft", back.Features[0].Properties["label"])
	// Numbers come back as float64 from JSON.
	assert.Equal(t, 2.0, back.Features[0].Properties["band_id"])
	assert.Equal(t, square(0, 0, 1, 1).FlatCoords(), back.Features[0].Geometry.FlatCoords())
}

func TestGeoJSON_EmptyCollection(t *testing.T) {
	data, err := EncodeGeoJSON(NewFeatureSet(crs.WGS84), "slope_mask")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"features":[]`)
}

func TestDecodeGeoJSON_Variants(t *testing.T) {
	fs, err := DecodeGeoJSON([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`))
	require.NoError(t, err)
	assert.Equal(t, crs.WGS84, fs.CRS)
	require.Equal(t, 1, fs.Len())
	_, ok := fs.Features[0].Geometry.(*geom.Polygon)
	assert.True(t, ok)

	fs, err = DecodeGeoJSON([]byte(`{"type":"Feature","properties":{"a":"b"},"geometry":{"type":"Point","coordinates":[1,2]}}`))
	require.NoError(t, err)
	assert.Equal(t, "b", fs.Features[0].Properties["a"])

	fs, err = DecodeGeoJSON([]byte(`{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:OGC:1.3:CRS84"}},"features":[]}`))
	require.NoError(t, err)
	assert.Equal(t, crs.WGS84, fs.CRS)
	assert.Equal(t, 0, fs.Len())

	_, err = DecodeGeoJSON([]byte(`{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"bogus"}},"features":[]}`))
	assert.Error(t, err)

	_, err = DecodeGeoJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadAOI_GeoJSON(t *testing.T) {
	path := writeFile(t, "hunting_district.geojson", districtGeoJSON)
	a, err := LoadAOI(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "hunting_district", a.Name)
	assert.Equal(t, crs.WGS84, a.CRS)
	assert.Equal(t, 1, a.Geometry.NumPolygons())

	b := a.Bounds()
	assert.InDelta(t, -110.4, b.West, 1e-12)
	assert.InDelta(t, 45.4, b.North, 1e-12)
	assert.True(t, pointInPolygons(-110.25, 45.25, toCPolygons(a.Geometry)))
	assert.False(t, pointInPolygons(-110.5, 45.25, toCPolygons(a.Geometry)))
}

func TestLoadAOI_Missing(t *testing.T) {
	_, err := LoadAOI("", nil)
	assert.ErrorIs(t, err, ErrMissingBoundaryInput)

	_, err = LoadAOI(filepath.Join(t.TempDir(), "nope.geojson"), nil)
	assert.ErrorIs(t, err, ErrMissingBoundaryInput)

	empty := writeFile(t, "empty.geojson", "")
	_, err = LoadAOI(empty, nil)
	assert.ErrorIs(t, err, ErrMissingBoundaryInput)

	noPolys := writeFile(t, "points.geojson", `{"type":"FeatureCollection","features":[]}`)
	_, err = LoadAOI(noPolys, nil)
	assert.ErrorIs(t, err, ErrMissingBoundaryInput)
}

func TestLoadAOI_ShapefileWithoutPrj(t *testing.T) {
	path := filepath.Join(t.TempDir(), "district.shp")
	fs := features(crs.CRS{}, square(0, 0, 1, 1))
	require.NoError(t, WriteShapefile(path, fs))

	_, err := LoadAOI(path, nil)
	assert.ErrorIs(t, err, ErrMissingBoundaryInput)
}

func TestLoadAOI_ReprojectsProjectedBoundary(t *testing.T) {
	body := `{"type":"Feature","crs":{"type":"name","properties":{"name":"EPSG:3857"}},"properties":{},
	  "geometry":{"type":"Polygon","coordinates":[[[0,0],[111319.49079327357,0],[111319.49079327357,111325.14286638486],[0,111325.14286638486],[0,0]]]}}`
	path := writeFile(t, "district.geojson", body)

	reg, err := crs.NewRegistry("")
	require.NoError(t, err)
	a, err := LoadAOI(path, reg)
	require.NoError(t, err)
	assert.Equal(t, crs.WGS84, a.CRS)
	b := a.Bounds()
	assert.InDelta(t, 0, b.West, 1e-6)
	assert.InDelta(t, 0, b.South, 1e-6)
	assert.InDelta(t, 1, b.East, 1e-6)
	assert.InDelta(t, 1, b.North, 1e-6)

	_, err = LoadAOI(path, nil)
	assert.Error(t, err)
}

func TestAOIBuffer(t *testing.T) {
	a := aoi(crs.WGS84, square(-110.4, 45.1, -110.1, 45.4))
	buf := a.Buffer(69, nil)
	b := buf.Bounds()
	assert.InDelta(t, -111.4, b.West, 1e-9)
	assert.InDelta(t, 46.4, b.North, 1e-9)
	assert.Equal(t, crs.WGS84, buf.CRS)
	// The source AOI is not modified.
	assert.InDelta(t, -110.4, a.Bounds().West, 1e-12)

	p := aoi(crs.CRS{EPSG: 26912}, square(0, 0, 1000, 1000)).Buffer(1, nil)
	assert.InDelta(t, -MetersPerMile, p.Bounds().West, 1e-6)
}

func TestAOIBuffer_RegistryDecidesUnits(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, crs.EPSGFile),
		[]byte("<4490> +proj=longlat +ellps=GRS80 +no_defs <>\n"), 0o644))
	reg, err := crs.NewRegistry(dir)
	require.NoError(t, err)

	cgcs := crs.CRS{EPSG: 4490}
	a := aoi(cgcs, square(100, 30, 101, 31))

	// Without the registry the code is unknown and treated as meters.
	assert.InDelta(t, 100-MetersPerMile, a.Buffer(1, nil).Bounds().West, 1e-6)
	// The registry knows it is lon/lat, so the buffer is in degrees.
	assert.InDelta(t, 99, a.Buffer(69, reg).Bounds().West, 1e-9)
}

func TestShapefile_RoundTrip(t *testing.T) {
	fs := NewFeatureSet(crs.WGS84)
	poly := square(0, 0, 3, 3)
	require.NoError(t, poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{1, 1, 1, 2, 2, 2, 2, 1, 1, 1})))
	fs.Add(poly, map[string]any{"slope_class": 1, "label": "> 45 degrees", "min_deg": 45.0})

	path := filepath.Join(t.TempDir(), "slope_mask.shp")
	require.NoError(t, WriteShapefile(path, fs))
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "slope_mask.prj"))

	back, err := ReadShapefile(path)
	require.NoError(t, err)
	assert.Equal(t, crs.WGS84, back.CRS)
	require.Equal(t, 1, back.Len())

	got := back.Features[0]
	assert.Equal(t, "> 45 degrees", got.Properties["label"])
	assert.Equal(t, "1", got.Properties["slope_clas"])

	gp, ok := got.Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 2, gp.NumLinearRings())
	assert.InDelta(t, 8.0, gp.Area(), 1e-9)
}

func TestParsePRJ(t *testing.T) {
	c, err := ParsePRJ(`PROJCS["NAD83 / UTM zone 12N",GEOGCS["NAD83",AUTHORITY["EPSG","4269"]],UNIT["metre",1],AUTHORITY["EPSG","26912"]]`)
	require.NoError(t, err)
	assert.Equal(t, crs.CRS{EPSG: 26912}, c)

	c, err = ParsePRJ(prjWKT[4269])
	require.NoError(t, err)
	assert.Equal(t, crs.NAD83, c)

	_, err = ParsePRJ(`PROJCS["Custom_Local",UNIT["Meter",1.0]]`)
	assert.Error(t, err)
	_, err = ParsePRJ("garbage")
	assert.Error(t, err)
}
