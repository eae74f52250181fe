package publish

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/terrain-cli/internal/pipeline"
	"github.com/sells-group/terrain-cli/internal/vector"
)

// ManifestFile is the manifest's file name in the map directory.
const ManifestFile = "manifest.yaml"

// Manifest describes one published terrain run.
type Manifest struct {
	AOI         string    `yaml:"aoi"`
	Outcome     string    `yaml:"outcome"`
	GeneratedAt time.Time `yaml:"generated_at"`
	BBox        []float64 `yaml:"bbox,flow"`
	Tiles       int       `yaml:"tiles"`
	Elevation   *Range    `yaml:"elevation_m,omitempty"`
	Layers      []Layer   `yaml:"layers"`
}

// Range is a closed numeric interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Layer is one published vector file.
type Layer struct {
	Name     string `yaml:"name"`
	File     string `yaml:"file"`
	Field    string `yaml:"field"`
	Features int    `yaml:"features"`
	CRS      string `yaml:"crs"`
}

// NewManifest summarizes a pipeline result.
func NewManifest(res *pipeline.Result, at time.Time) Manifest {
	m := Manifest{
		AOI:         res.AOI,
		Outcome:     string(res.Outcome),
		GeneratedAt: at.UTC(),
		BBox:        []float64{res.BBox.West, res.BBox.South, res.BBox.East, res.BBox.North},
		Tiles:       len(res.Tiles),
		Layers:      []Layer{},
	}
	if res.Outcome != pipeline.OutcomeOK {
		return m
	}
	m.Elevation = &Range{Min: res.Stats.Min, Max: res.Stats.Max}

	layers := map[string]struct {
		field string
		fs    *vector.FeatureSet
	}{
		pipeline.ElevationLayer: {pipeline.ElevationField, res.Elevation},
		pipeline.SlopeLayer:     {pipeline.SlopeField, res.Slope},
	}
	for _, path := range res.Outputs {
		name := layerName(path)
		l, ok := layers[name]
		if !ok || l.fs == nil {
			continue
		}
		fs := l.fs
		m.Layers = append(m.Layers, Layer{
			Name:     name,
			File:     filepath.Base(path),
			Field:    l.field,
			Features: fs.Len(),
			CRS:      fs.CRS.String(),
		})
	}
	return m
}

// WriteManifest writes m as YAML to dir/manifest.yaml.
func WriteManifest(dir string, m Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", eris.Wrap(err, "publish: marshal manifest")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "publish: create manifest dir")
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "publish: write manifest")
	}
	return path, nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, eris.Wrap(err, "publish: read manifest")
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, eris.Wrap(err, "publish: parse manifest")
	}
	return m, nil
}

func layerName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
