package vector

import (
	"os"
	"path/filepath"
	"strings"

	cgeom "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/crs"
)

// ErrMissingBoundaryInput is returned when the AOI file is absent, holds no
// polygons, or carries no coordinate system.
var ErrMissingBoundaryInput = eris.New("vector: missing boundary input")

// AOI is the area of interest for a run: the dissolved boundary polygons
// and their CRS.
type AOI struct {
	Name     string
	Geometry *geom.MultiPolygon
	CRS      crs.CRS
}

// LoadAOI reads a GeoJSON or Shapefile boundary, dissolves its polygons
// into one geometry and reprojects it to EPSG:4326 when it is in another,
// non-compatible system. reg may be nil when the input is known to be
// geographic.
func LoadAOI(path string, reg *crs.Registry) (*AOI, error) {
	log := zap.L().With(zap.String("component", "aoi"))

	if path == "" {
		return nil, eris.Wrap(ErrMissingBoundaryInput, "no boundary file configured")
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		return nil, eris.Wrapf(ErrMissingBoundaryInput, "boundary file %s not found or empty", path)
	}

	var (
		fs  *FeatureSet
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		fs, err = ReadShapefile(path)
	case ".geojson", ".json":
		fs, err = ReadGeoJSON(path)
	default:
		return nil, eris.Errorf("vector: unsupported boundary format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if fs.CRS.IsZero() {
		return nil, eris.Wrapf(ErrMissingBoundaryInput, "boundary file %s has no CRS", path)
	}

	aoi := &AOI{Name: layerName(path), CRS: fs.CRS, Geometry: Dissolve(fs)}
	if aoi.Geometry.NumPolygons() == 0 {
		return nil, eris.Wrapf(ErrMissingBoundaryInput, "boundary file %s has no polygons", path)
	}

	if !crs.Compatible(aoi.CRS, crs.WGS84) {
		if reg == nil {
			return nil, eris.Errorf("vector: boundary is in %s and no projection registry is available", aoi.CRS)
		}
		reprojected, err := aoi.Reproject(reg, crs.WGS84)
		if err != nil {
			return nil, err
		}
		aoi = reprojected
	}

	log.Info("loaded area of interest",
		zap.String("name", aoi.Name),
		zap.String("crs", aoi.CRS.String()),
		zap.Int("polygons", aoi.Geometry.NumPolygons()),
		zap.Stringer("bounds", aoi.Bounds()),
	)
	return aoi, nil
}

// Dissolve unions every polygonal geometry of fs into one multipolygon.
// Non-polygonal features are ignored.
func Dissolve(fs *FeatureSet) *geom.MultiPolygon {
	var parts []cgeom.Polygonal
	for _, f := range fs.Features {
		for _, p := range toCPolygons(f.Geometry) {
			if len(p) > 0 {
				parts = append(parts, p)
			}
		}
	}
	switch len(parts) {
	case 0:
		return geom.NewMultiPolygon(geom.XY)
	case 1:
		return fromCPolygonal(parts[0])
	default:
		return fromCPolygonal(unionAll(parts))
	}
}

// Bounds returns the bounding box of the AOI geometry.
func (a *AOI) Bounds() BBox { return BoundsOf(a.Geometry) }

// Buffer returns a copy of the AOI grown by miles. Geographic boundaries
// use the flat 69 miles-per-degree approximation; projected ones are
// assumed to be in meters. reg decides the units of codes outside the
// built-in geographic set and may be nil.
func (a *AOI) Buffer(miles float64, reg *crs.Registry) *AOI {
	geographic := a.CRS.IsGeographic()
	if reg != nil {
		geographic = reg.IsGeographic(a.CRS)
	}
	d := miles * MetersPerMile
	if geographic {
		d = miles / MilesPerDegree
	}
	return &AOI{Name: a.Name, CRS: a.CRS, Geometry: Buffer(a.Geometry, d)}
}

// Reproject transforms the AOI vertices into dst.
func (a *AOI) Reproject(reg *crs.Registry, dst crs.CRS) (*AOI, error) {
	t, err := reg.Transformer(a.CRS, dst)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: reproject boundary %s -> %s", a.CRS, dst)
	}
	out := a.Geometry.Clone()
	flat := out.FlatCoords()
	for i := 0; i+1 < len(flat); i += 2 {
		x, y, err := t(flat[i], flat[i+1])
		if err != nil {
			return nil, eris.Wrapf(err, "vector: reproject vertex %d", i/2)
		}
		flat[i], flat[i+1] = x, y
	}
	return &AOI{Name: a.Name, CRS: dst, Geometry: out}, nil
}
