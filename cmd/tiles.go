package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/crs"
	"github.com/sells-group/terrain-cli/internal/fetcher"
	"github.com/sells-group/terrain-cli/internal/vector"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Search for and download the AOI's elevation tiles",
	Long:  "Loads and buffers the AOI, lists the catalog tiles covering it and fills the local tile cache without deriving any layers.",
	RunE:  runTiles,
}

func init() {
	addUnitFlags(tilesCmd)
	tilesCmd.Flags().Bool("dry-run", false, "list tile URLs without downloading")
	rootCmd.AddCommand(tilesCmd)
}

func runTiles(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyUnitFlags(cmd, cfg)
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	reg, err := crs.NewRegistry(cfg.Environment.ProjDir)
	if err != nil {
		return eris.Wrap(err, "tiles: projection registry")
	}
	aoi, err := vector.LoadAOI(cfg.BoundaryPath(), reg)
	if err != nil {
		return err
	}
	bbox := aoi.Buffer(cfg.Unit.BufferDistanceMiles, reg).Bounds()

	urls, err := newCatalog(cfg).Search(ctx, bbox)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no tiles intersect %s\n", bbox)
		return nil
	}
	refs, err := fetcher.References(urls)
	if err != nil {
		return err
	}

	if dryRun {
		for _, ref := range refs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ref.Name, ref.URL)
		}
		return nil
	}

	paths, err := newTileFetcher(cfg).FetchAll(ctx, refs)
	if err != nil {
		return err
	}
	zap.L().Info("tiles: cache ready",
		zap.String("dir", cfg.Environment.TileDir()),
		zap.Int("tiles", len(paths)),
	)
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
