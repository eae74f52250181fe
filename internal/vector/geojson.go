package vector

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/terrain-cli/internal/crs"
)

// crsMember is the pre-RFC 7946 "crs" object, still written by GDAL and
// read by most web map clients.
type crsMember struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

func newCRSMember(c crs.CRS) *crsMember {
	if c.IsZero() {
		return nil
	}
	m := &crsMember{Type: "name"}
	m.Properties.Name = "urn:ogc:def:crs:EPSG::" + strconv.Itoa(c.EPSG)
	return m
}

type featureCollection struct {
	Type     string             `json:"type"`
	Name     string             `json:"name,omitempty"`
	CRS      *crsMember         `json:"crs,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

type document struct {
	Type string     `json:"type"`
	CRS  *crsMember `json:"crs"`
}

// ReadGeoJSON reads a FeatureCollection, a single Feature or a bare
// geometry. Without a "crs" member the data is taken to be EPSG:4326.
func ReadGeoJSON(path string) (*FeatureSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: read %s", path)
	}
	return DecodeGeoJSON(data)
}

// DecodeGeoJSON parses GeoJSON bytes. See ReadGeoJSON.
func DecodeGeoJSON(data []byte) (*FeatureSet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "vector: decode geojson")
	}

	c := crs.WGS84
	if doc.CRS != nil && doc.CRS.Properties.Name != "" {
		parsed, err := crs.Parse(doc.CRS.Properties.Name)
		if err != nil {
			return nil, eris.Wrap(err, "vector: geojson crs member")
		}
		c = parsed
	}
	fs := NewFeatureSet(c)

	switch doc.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "vector: decode feature collection")
		}
		for _, f := range fc.Features {
			if f.Geometry != nil {
				fs.Add(f.Geometry, cloneProps(f.Properties))
			}
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "vector: decode feature")
		}
		if f.Geometry != nil {
			fs.Add(f.Geometry, cloneProps(f.Properties))
		}
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "vector: decode geometry")
		}
		fs.Add(g, map[string]any{})
	}
	return fs, nil
}

// EncodeGeoJSON renders fs as a FeatureCollection named name, carrying a
// legacy "crs" member.
func EncodeGeoJSON(fs *FeatureSet, name string) ([]byte, error) {
	fc := featureCollection{
		Type:     "FeatureCollection",
		Name:     name,
		CRS:      newCRSMember(fs.CRS),
		Features: make([]*geojson.Feature, 0, fs.Len()),
	}
	for _, f := range fs.Features {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   f.Geometry,
			Properties: f.Properties,
		})
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrap(err, "vector: encode geojson")
	}
	return data, nil
}

// WriteGeoJSON writes fs to path. The collection is named after the file.
func WriteGeoJSON(path string, fs *FeatureSet) error {
	data, err := EncodeGeoJSON(fs, layerName(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "vector: write %s", path)
	}
	return nil
}
