// Package publish hands finished terrain layers to their consumers: the
// web map's data directory, a YAML run manifest and an optional PostGIS
// schema.
package publish

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LayerGlob matches the layer files the map serves.
const LayerGlob = "*.geojson"

// ToMapDir replaces the GeoJSON layers in mapDir with those found in the
// source directories. Stale layers are removed first; sources are copied
// in order so a later directory overwrites an earlier one. Missing source
// directories are skipped. It returns the published file names, sorted.
func ToMapDir(mapDir string, sources ...string) ([]string, error) {
	log := zap.L().With(zap.String("component", "publish"), zap.String("map_dir", mapDir))

	if err := os.MkdirAll(mapDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "publish: create map dir")
	}

	stale, err := filepath.Glob(filepath.Join(mapDir, LayerGlob))
	if err != nil {
		return nil, eris.Wrap(err, "publish: list stale layers")
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return nil, eris.Wrapf(err, "publish: remove %s", filepath.Base(path))
		}
	}
	if len(stale) > 0 {
		log.Info("cleared stale layers", zap.Int("count", len(stale)))
	}

	published := make(map[string]struct{})
	for _, dir := range sources {
		if _, err := os.Stat(dir); err != nil {
			log.Debug("source dir missing, skipping", zap.String("dir", dir))
			continue
		}
		files, err := filepath.Glob(filepath.Join(dir, LayerGlob))
		if err != nil {
			return nil, eris.Wrapf(err, "publish: list %s", dir)
		}
		for _, src := range files {
			name := filepath.Base(src)
			if err := copyFile(src, filepath.Join(mapDir, name)); err != nil {
				return nil, eris.Wrapf(err, "publish: copy %s", name)
			}
			published[name] = struct{}{}
			log.Debug("published layer", zap.String("file", name), zap.String("from", dir))
		}
	}

	names := make([]string, 0, len(published))
	for name := range published {
		names = append(names, name)
	}
	sort.Strings(names)
	log.Info("pushed layers to map", zap.Int("count", len(names)))
	return names, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
