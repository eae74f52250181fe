package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/terrain-cli/internal/catalog"
	"github.com/sells-group/terrain-cli/internal/config"
	"github.com/sells-group/terrain-cli/internal/crs"
	"github.com/sells-group/terrain-cli/internal/fetcher"
	"github.com/sells-group/terrain-cli/internal/pipeline"
)

// addUnitFlags registers the AOI flags shared by derive and tiles.
func addUnitFlags(cmd *cobra.Command) {
	cmd.Flags().String("boundary", "", "AOI boundary file (GeoJSON or Shapefile); overrides unit.boundary_file")
	cmd.Flags().String("name", "", "AOI name; overrides unit.name")
	cmd.Flags().Float64("buffer-miles", -1, "buffer around the AOI in miles; negative uses unit.buffer_distance_miles")
}

// applyUnitFlags copies explicitly set AOI flags onto c.
func applyUnitFlags(cmd *cobra.Command, c *config.Config) {
	if v, _ := cmd.Flags().GetString("boundary"); v != "" {
		c.Unit.BoundaryFile = v
	}
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		c.Unit.Name = v
	}
	if v, _ := cmd.Flags().GetFloat64("buffer-miles"); v >= 0 {
		c.Unit.BufferDistanceMiles = v
	}
}

func newCatalog(c *config.Config) *catalog.Client {
	return catalog.NewClient(
		catalog.WithBaseURL(c.Catalog.BaseURL),
		catalog.WithDataset(c.Catalog.Dataset),
		catalog.WithFormat(c.Catalog.Format),
		catalog.WithPageSize(c.Catalog.PageSize),
		catalog.WithTimeout(time.Duration(c.Catalog.TimeoutSecs)*time.Second),
		catalog.WithRateLimit(c.Catalog.RateLimit),
	)
}

func newTileFetcher(c *config.Config) *fetcher.TileFetcher {
	hf := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.Download.UserAgent,
		Timeout:    time.Duration(c.Download.TimeoutSecs) * time.Second,
		MaxRetries: c.Download.MaxRetries,
		RateLimit:  c.Download.RateLimit,
	})
	return fetcher.NewTileFetcher(hf, c.Environment.TileDir(), c.Download.Concurrency)
}

func pipelineOptions(c *config.Config, reg *crs.Registry) pipeline.Options {
	return pipeline.Options{
		BoundaryFile:        c.BoundaryPath(),
		Name:                c.Unit.Name,
		BufferMiles:         c.Unit.BufferDistanceMiles,
		RawDir:              c.Environment.RawDataDir,
		OutputDir:           c.Environment.ProcessedDataDir,
		ElevationIntervalFt: c.Terrain.ElevationIntervalFt,
		SlopeThresholdDeg:   c.Terrain.SlopeThresholdDeg,
		Format:              pipeline.OutputFormat(c.Terrain.OutputFormat),
		Registry:            reg,
	}
}
