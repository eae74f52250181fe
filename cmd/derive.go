package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/crs"
	"github.com/sells-group/terrain-cli/internal/db"
	"github.com/sells-group/terrain-cli/internal/pipeline"
	"github.com/sells-group/terrain-cli/internal/publish"
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive elevation bands and a slope mask for the AOI",
	Long: "Searches the elevation catalog for tiles covering the buffered AOI, downloads and merges them, " +
		"then writes clipped elevation-band and steep-slope layers plus a run manifest to the processed directory.",
	RunE: runDerive,
}

func init() {
	addUnitFlags(deriveCmd)
	deriveCmd.Flags().Float64("interval-ft", 0, "elevation band interval in feet; 0 uses terrain.elevation_interval_ft")
	deriveCmd.Flags().Float64("slope-deg", 0, "steep-slope threshold in degrees; 0 uses terrain.slope_threshold_deg")
	deriveCmd.Flags().String("format", "", "output format (geojson or shapefile); empty uses terrain.output_format")
	deriveCmd.Flags().Bool("publish", false, "copy the finished layers to the map data directory")
	deriveCmd.Flags().Bool("postgis", false, "load the finished layers into PostGIS (requires store.database_url)")
	rootCmd.AddCommand(deriveCmd)
}

func runDerive(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyUnitFlags(cmd, cfg)
	if v, _ := cmd.Flags().GetFloat64("interval-ft"); v > 0 {
		cfg.Terrain.ElevationIntervalFt = v
	}
	if v, _ := cmd.Flags().GetFloat64("slope-deg"); v > 0 {
		cfg.Terrain.SlopeThresholdDeg = v
	}
	if v, _ := cmd.Flags().GetString("format"); v != "" {
		cfg.Terrain.OutputFormat = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	toPostGIS, _ := cmd.Flags().GetBool("postgis")
	if toPostGIS && cfg.Store.DatabaseURL == "" {
		return eris.New("derive: --postgis requires store.database_url")
	}

	reg, err := crs.NewRegistry(cfg.Environment.ProjDir)
	if err != nil {
		return eris.Wrap(err, "derive: projection registry")
	}

	p := pipeline.New(pipelineOptions(cfg, reg), newCatalog(cfg), newTileFetcher(cfg))
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	manifestPath, err := publish.WriteManifest(cfg.Environment.ProcessedDataDir, publish.NewManifest(res, time.Now()))
	if err != nil {
		return err
	}
	zap.L().Info("derive: wrote manifest", zap.String("path", manifestPath))

	if res.Outcome != pipeline.OutcomeOK {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, no layers written\n", res.AOI, res.Outcome)
		return nil
	}

	if publishFlag, _ := cmd.Flags().GetBool("publish"); publishFlag {
		if err := publishToMapDir(); err != nil {
			return err
		}
	}
	if toPostGIS {
		if err := loadResult(ctx, res); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d elevation bands, %d steep-slope areas\n",
		res.AOI, res.Elevation.Len(), res.Slope.Len())
	for _, out := range res.Outputs {
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}

func loadResult(ctx context.Context, res *pipeline.Result) error {
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := publish.ToPostGIS(ctx, pool, cfg.Store.Schema, res)
	if err != nil {
		return err
	}
	zap.L().Info("derive: loaded layers into postgis",
		zap.String("schema", cfg.Store.Schema),
		zap.Int64("rows", n),
	)
	return nil
}
