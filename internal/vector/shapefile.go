package vector

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	cgeom "github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/crs"
)

// maxFieldName is the dBase limit on attribute names.
const maxFieldName = 10

var prjWKT = map[int]string{
	4326: `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`,
	4269: `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`,
}

// prjNames maps ESRI geographic system names to EPSG codes for .prj files
// that carry no AUTHORITY clause.
var prjNames = map[string]int{
	"GCS_WGS_1984":            4326,
	"GCS_North_American_1983": 4269,
	"GCS_ETRS_1989":           4258,
	"WGS 84":                  4326,
	"NAD83":                   4269,
}

var (
	prjAuthority = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]\]\s*$`)
	prjName      = regexp.MustCompile(`^\s*(?:GEOGCS|PROJCS)\["([^"]+)"`)
)

// ParsePRJ extracts the CRS from the WKT in a .prj file.
func ParsePRJ(wkt string) (crs.CRS, error) {
	if m := prjAuthority.FindStringSubmatch(strings.TrimSpace(wkt)); m != nil {
		code, _ := strconv.Atoi(m[1])
		return crs.CRS{EPSG: code}, nil
	}
	if m := prjName.FindStringSubmatch(wkt); m != nil {
		if code, ok := prjNames[m[1]]; ok {
			return crs.CRS{EPSG: code}, nil
		}
		return crs.CRS{}, eris.Errorf("vector: unrecognized coordinate system %q", m[1])
	}
	return crs.CRS{}, eris.New("vector: unparseable .prj")
}

// ReadShapefile reads the polygons of a shapefile and its .prj. Records
// that are not polygons are skipped.
func ReadShapefile(path string) (*FeatureSet, error) {
	prj, err := os.ReadFile(strings.TrimSuffix(path, filepath.Ext(path)) + ".prj")
	if err != nil {
		return nil, eris.Wrapf(ErrMissingBoundaryInput, "no .prj next to %s", path)
	}
	c, err := ParsePRJ(string(prj))
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fs := NewFeatureSet(c)
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		p, ok := shape.(*shp.Polygon)
		if !ok || p.NumParts == 0 {
			skipped++
			continue
		}
		mp := shpPolygon(p)
		if mp.NumPolygons() == 0 {
			skipped++
			continue
		}
		props := make(map[string]any, len(fields))
		for i, f := range fields {
			name := strings.TrimRight(f.String(), "\x00")
			props[name] = strings.TrimSpace(strings.TrimRight(reader.ReadAttribute(n, i), "\x00"))
		}
		fs.Add(simplest(mp), props)
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return fs, nil
}

// shpPolygon rebuilds polygons from shapefile parts. Rings are assigned by
// nesting rather than by winding, so files with inconsistent winding still
// load.
func shpPolygon(p *shp.Polygon) *geom.MultiPolygon {
	var rings cgeom.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		path := make(cgeom.Path, 0, end-start)
		for _, pt := range p.Points[start:end] {
			path = append(path, cgeom.Point{X: pt.X, Y: pt.Y})
		}
		rings = append(rings, path)
	}
	return fromCPolygonal(rings)
}

// WriteShapefile writes fs as a polygon shapefile with a .prj when the CRS
// has a known WKT. Attribute names are truncated to ten characters.
func WriteShapefile(path string, fs *FeatureSet) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "vector: create shapefile %s", path)
	}
	defer w.Close()

	keys, fields := attributeFields(fs)
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "vector: set shapefile fields")
	}

	for _, f := range fs.Features {
		row := w.Write(toShpPolygon(f.Geometry))
		for i, k := range keys {
			v, ok := f.Properties[k]
			if !ok {
				continue
			}
			if err := w.WriteAttribute(int(row), i, v); err != nil {
				return eris.Wrapf(err, "vector: write attribute %s", k)
			}
		}
	}

	if wkt, ok := prjWKT[fs.CRS.EPSG]; ok {
		prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
		if err := os.WriteFile(prj, []byte(wkt), 0o644); err != nil {
			return eris.Wrapf(err, "vector: write %s", prj)
		}
	}
	return nil
}

// attributeFields derives dBase fields from the union of property keys,
// sorted by name. Integers become numeric fields, floats decimal fields and
// anything else text.
func attributeFields(fs *FeatureSet) ([]string, []shp.Field) {
	kinds := map[string]string{}
	for _, f := range fs.Features {
		for k, v := range f.Properties {
			kind := "C"
			switch v.(type) {
			case int, int32, int64, uint8:
				kind = "N"
			case float32, float64:
				kind = "F"
			}
			if prev, ok := kinds[k]; ok && prev != kind {
				kind = "C"
			}
			kinds[k] = kind
		}
	}

	keys := make([]string, 0, len(kinds))
	for k := range kinds {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make([]shp.Field, 0, len(keys))
	for _, k := range keys {
		name := k
		if len(name) > maxFieldName {
			name = name[:maxFieldName]
		}
		switch kinds[k] {
		case "N":
			fields = append(fields, shp.NumberField(name, 10))
		case "F":
			fields = append(fields, shp.FloatField(name, 19, 6))
		default:
			fields = append(fields, shp.StringField(name, 254))
		}
	}
	return keys, fields
}

// toShpPolygon converts to shapefile winding: shells clockwise, holes
// counter-clockwise.
func toShpPolygon(g geom.T) *shp.Polygon {
	var parts [][]shp.Point
	for _, poly := range toCPolygons(g) {
		for i, path := range poly {
			ccw := signedArea(path) > 0
			reverse := ccw == (i == 0)
			pts := make([]shp.Point, 0, len(path)+1)
			for j := range path {
				k := j
				if reverse {
					k = len(path) - 1 - j
				}
				pts = append(pts, shp.Point{X: path[k].X, Y: path[k].Y})
			}
			pts = append(pts, pts[0])
			parts = append(parts, pts)
		}
	}
	p := shp.Polygon(*shp.NewPolyLine(parts))
	return &p
}

func layerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
