package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/db"
	"github.com/sells-group/terrain-cli/internal/publish"
	"github.com/sells-group/terrain-cli/internal/vector"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish derived layers to the map data directory",
	Long:  "Replaces the GeoJSON layers in the map data directory with those in the raw and processed directories, and optionally loads them into PostGIS.",
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().Bool("postgis", false, "also load the processed layers into PostGIS (requires store.database_url)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	toPostGIS, _ := cmd.Flags().GetBool("postgis")
	if toPostGIS && cfg.Store.DatabaseURL == "" {
		return eris.New("publish: --postgis requires store.database_url")
	}

	if err := publishToMapDir(); err != nil {
		return err
	}
	if toPostGIS {
		if err := loadProcessed(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published to %s\n", cfg.Environment.MapDataDir)
	return nil
}

// publishToMapDir copies layers to the map directory, carrying the run
// manifest along when one exists.
func publishToMapDir() error {
	names, err := publish.ToMapDir(cfg.Environment.MapDataDir,
		cfg.Environment.RawDataDir, cfg.Environment.ProcessedDataDir)
	if err != nil {
		return err
	}

	m, err := publish.ReadManifest(filepath.Join(cfg.Environment.ProcessedDataDir, publish.ManifestFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		zap.L().Debug("publish: no manifest to copy")
	case err != nil:
		return err
	default:
		if _, err := publish.WriteManifest(cfg.Environment.MapDataDir, m); err != nil {
			return err
		}
	}

	zap.L().Info("publish: map data updated",
		zap.String("map_dir", cfg.Environment.MapDataDir),
		zap.Strings("layers", names),
	)
	return nil
}

// loadProcessed loads the layers listed in the processed manifest.
func loadProcessed(ctx context.Context) error {
	m, err := publish.ReadManifest(filepath.Join(cfg.Environment.ProcessedDataDir, publish.ManifestFile))
	if err != nil {
		return err
	}
	if len(m.Layers) == 0 {
		zap.L().Warn("publish: manifest lists no layers", zap.String("outcome", m.Outcome))
		return nil
	}

	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	for _, l := range m.Layers {
		if filepath.Ext(l.File) != ".geojson" {
			zap.L().Warn("publish: skipping non-GeoJSON layer", zap.String("file", l.File))
			continue
		}
		layer, err := vector.ReadGeoJSON(filepath.Join(cfg.Environment.ProcessedDataDir, l.File))
		if err != nil {
			return err
		}
		if err := publish.EnsureLayerTable(ctx, pool, cfg.Store.Schema, l.Name, publish.SRID(layer)); err != nil {
			return err
		}
		n, err := publish.LoadFeatures(ctx, pool, cfg.Store.Schema, l.Name, m.AOI, l.Field, layer)
		if err != nil {
			return err
		}
		zap.L().Info("publish: loaded layer", zap.String("layer", l.Name), zap.Int64("rows", n))
	}
	return nil
}
