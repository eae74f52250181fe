// Package pipeline runs the terrain derivative flow for one area of
// interest: locate and fetch elevation tiles, mosaic them, derive elevation
// bands and a steep-slope mask, and write both as clipped vector layers.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/crs"
	"github.com/sells-group/terrain-cli/internal/fetcher"
	"github.com/sells-group/terrain-cli/internal/geotiff"
	"github.com/sells-group/terrain-cli/internal/raster"
	"github.com/sells-group/terrain-cli/internal/terrain"
	"github.com/sells-group/terrain-cli/internal/vector"
)

// Layer and file names written by a run.
const (
	ElevationLayer = "elevation_bands"
	SlopeLayer     = "slope_mask"
	MergedDEMFile  = "dem_merged.tif"

	ElevationField = "band_id"
	SlopeField     = "slope_class"
)

// OutputFormat selects the vector file format.
type OutputFormat string

// Supported output formats.
const (
	FormatGeoJSON   OutputFormat = "geojson"
	FormatShapefile OutputFormat = "shapefile"
)

// Ext returns the file extension for the format.
func (f OutputFormat) Ext() string {
	if f == FormatShapefile {
		return ".shp"
	}
	return ".geojson"
}

// Outcome is how a run ended.
type Outcome string

// Run outcomes. NoTiles and EmptyRaster end a run early without error.
const (
	OutcomeOK          Outcome = "ok"
	OutcomeNoTiles     Outcome = "no_tiles"
	OutcomeEmptyRaster Outcome = "empty_raster"
)

// TileSearcher finds the download URLs of tiles intersecting a box.
type TileSearcher interface {
	Search(ctx context.Context, bbox vector.BBox) ([]string, error)
}

// TileFetcher makes tiles available locally, returning their paths in
// input order.
type TileFetcher interface {
	FetchAll(ctx context.Context, refs []fetcher.TileReference) ([]string, error)
}

// Options configures a run.
type Options struct {
	// BoundaryFile is the AOI GeoJSON or Shapefile.
	BoundaryFile string
	// Name overrides the AOI name derived from BoundaryFile.
	Name        string
	BufferMiles float64
	// RawDir receives the merged DEM; empty skips writing it.
	RawDir string
	// OutputDir receives the vector layers.
	OutputDir           string
	ElevationIntervalFt float64
	SlopeThresholdDeg   float64
	Format              OutputFormat
	// Registry reprojects boundaries that are not in the raster CRS. It may
	// be nil when every input is already in a compatible CRS.
	Registry *crs.Registry
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		BufferMiles:         1,
		ElevationIntervalFt: 1000,
		SlopeThresholdDeg:   45,
		Format:              FormatGeoJSON,
	}
}

// PhaseResult records one completed stage.
type PhaseResult struct {
	Stage    Stage
	Duration time.Duration
	Features int
}

// Result describes a finished run.
type Result struct {
	AOI       string
	Outcome   Outcome
	BBox      vector.BBox
	Tiles     []string
	DEMPath   string
	Stats     raster.Stats
	Elevation *vector.FeatureSet
	Slope     *vector.FeatureSet
	Outputs   []string
	Phases    []PhaseResult
}

// Pipeline runs the terrain derivative flow.
type Pipeline struct {
	opts    Options
	catalog TileSearcher
	tiles   TileFetcher
}

// New creates a Pipeline. A zero interval, threshold or format takes the
// DefaultOptions value; BufferMiles is used as given.
func New(opts Options, catalog TileSearcher, tiles TileFetcher) *Pipeline {
	def := DefaultOptions()
	if opts.ElevationIntervalFt <= 0 {
		opts.ElevationIntervalFt = def.ElevationIntervalFt
	}
	if opts.SlopeThresholdDeg <= 0 {
		opts.SlopeThresholdDeg = def.SlopeThresholdDeg
	}
	if opts.Format == "" {
		opts.Format = def.Format
	}
	if opts.BufferMiles < 0 {
		opts.BufferMiles = 0
	}
	return &Pipeline{opts: opts, catalog: catalog, tiles: tiles}
}

// Run executes the pipeline. Fatal failures are returned as *StageError.
// A run that finds no tiles or no valid elevation cells returns a Result
// with the matching Outcome and a nil error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	name := p.opts.Name
	if name == "" {
		name = layerName(p.opts.BoundaryFile)
	}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("aoi", name))
	log.Info("pipeline: starting terrain derivatives")

	result := &Result{AOI: name}
	track := func(stage Stage, fn func() (int, error)) error {
		start := time.Now()
		n, err := fn()
		d := time.Since(start)
		if err != nil {
			log.Error("pipeline: stage failed",
				zap.String("stage", string(stage)),
				zap.Duration("duration", d),
				zap.Error(err),
			)
			return stageErr(name, stage, err)
		}
		result.Phases = append(result.Phases, PhaseResult{Stage: stage, Duration: d, Features: n})
		log.Info("pipeline: stage complete",
			zap.String("stage", string(stage)),
			zap.Duration("duration", d),
			zap.Int("count", n),
		)
		return nil
	}

	// The boundary is checked before any network call.
	var clipAOI *vector.AOI
	if err := track(StageBoundary, func() (int, error) {
		aoi, err := vector.LoadAOI(p.opts.BoundaryFile, p.opts.Registry)
		if err != nil {
			return 0, err
		}
		if p.opts.Name != "" {
			aoi.Name = p.opts.Name
		}
		clipAOI = aoi.Buffer(p.opts.BufferMiles, p.opts.Registry)
		result.BBox = clipAOI.Bounds()
		return clipAOI.Geometry.NumPolygons(), nil
	}); err != nil {
		return nil, err
	}
	log.Info("pipeline: search box",
		zap.Float64("buffer_miles", p.opts.BufferMiles),
		zap.String("bbox", result.BBox.String()),
	)

	var urls []string
	if err := track(StageCatalog, func() (int, error) {
		var err error
		urls, err = p.catalog.Search(ctx, result.BBox)
		return len(urls), err
	}); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		log.Warn("pipeline: no elevation tiles intersect the search box")
		result.Outcome = OutcomeNoTiles
		return result, nil
	}

	if err := track(StageFetch, func() (int, error) {
		refs, err := fetcher.References(urls)
		if err != nil {
			return 0, err
		}
		result.Tiles, err = p.tiles.FetchAll(ctx, refs)
		return len(result.Tiles), err
	}); err != nil {
		return nil, err
	}

	var dem *raster.Grid
	if err := track(StageMerge, func() (int, error) {
		var err error
		dem, err = p.merge(result.Tiles)
		if err != nil {
			return 0, err
		}
		if p.opts.RawDir != "" {
			result.DEMPath = filepath.Join(p.opts.RawDir, MergedDEMFile)
			if err := geotiff.WriteFile(result.DEMPath, dem, geotiff.Options{}); err != nil {
				return 0, err
			}
		}
		return dem.Width * dem.Height, nil
	}); err != nil {
		return nil, err
	}

	stats, err := dem.Stats()
	if errors.Is(err, raster.ErrEmptyRaster) {
		log.Warn("pipeline: merged DEM has no valid cells")
		result.Outcome = OutcomeEmptyRaster
		return result, nil
	}
	if err != nil {
		return nil, stageErr(name, StageMerge, err)
	}
	result.Stats = stats
	log.Info("pipeline: elevation range",
		zap.Float64("min_m", stats.Min),
		zap.Float64("max_m", stats.Max),
		zap.Int("valid_cells", stats.Valid),
	)

	if dem.CRS.IsZero() {
		log.Warn("pipeline: merged DEM has no CRS, assuming the boundary CRS",
			zap.String("crs", clipAOI.CRS.String()))
		dem.CRS = clipAOI.CRS
	}
	if !crs.Compatible(clipAOI.CRS, dem.CRS) {
		if err := track(StageBoundary, func() (int, error) {
			if p.opts.Registry == nil {
				return 0, eris.Wrapf(vector.ErrCRSMismatch, "boundary %s, raster %s", clipAOI.CRS, dem.CRS)
			}
			reprojected, err := clipAOI.Reproject(p.opts.Registry, dem.CRS)
			if err != nil {
				return 0, err
			}
			clipAOI = reprojected
			return clipAOI.Geometry.NumPolygons(), nil
		}); err != nil {
			return nil, err
		}
	}

	if err := track(StageElevation, func() (int, error) {
		interval := p.opts.ElevationIntervalFt * terrain.FeetToMeters
		edges := terrain.ElevationEdges(stats.Min, stats.Max, interval)
		classes, err := terrain.Classify(dem, edges)
		if err != nil {
			return 0, err
		}
		log.Debug("pipeline: elevation classes",
			zap.Int("edges", len(edges)),
			zap.Any("cells_per_class", classes.Counts()),
		)
		fs := vector.Vectorize(classes, ElevationField, terrain.ElevationLabeler(edges))
		result.Elevation, err = vector.Clip(fs, clipAOI)
		if err != nil {
			return 0, err
		}
		return result.Elevation.Len(), nil
	}); err != nil {
		return nil, err
	}

	if err := track(StageSlope, func() (int, error) {
		th := p.opts.SlopeThresholdDeg
		mask, err := terrain.SlopeMask(terrain.Slope(dem), th)
		if err != nil {
			return 0, err
		}
		log.Debug("pipeline: steep cells", zap.Int("cells", mask.Counts()[1]))
		fs := vector.Vectorize(mask, SlopeField, terrain.SlopeLabeler(th))
		result.Slope, err = vector.Clip(fs, clipAOI)
		if err != nil {
			return 0, err
		}
		return result.Slope.Len(), nil
	}); err != nil {
		return nil, err
	}

	if err := track(StageWrite, func() (int, error) {
		if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
			return 0, eris.Wrap(err, "create output dir")
		}
		layers := []struct {
			name string
			fs   *vector.FeatureSet
		}{
			{ElevationLayer, result.Elevation},
			{SlopeLayer, result.Slope},
		}
		for _, l := range layers {
			path, err := p.write(l.name, l.fs)
			if err != nil {
				return 0, err
			}
			result.Outputs = append(result.Outputs, path)
		}
		return len(result.Outputs), nil
	}); err != nil {
		return nil, err
	}

	result.Outcome = OutcomeOK
	log.Info("pipeline: terrain derivatives complete",
		zap.Int("elevation_features", result.Elevation.Len()),
		zap.Int("slope_features", result.Slope.Len()),
	)
	return result, nil
}

func (p *Pipeline) merge(paths []string) (*raster.Grid, error) {
	grids := make([]*raster.Grid, 0, len(paths))
	for _, path := range paths {
		g, err := geotiff.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read tile %s", filepath.Base(path))
		}
		grids = append(grids, g)
	}
	return raster.Merge(grids)
}

func (p *Pipeline) write(layer string, fs *vector.FeatureSet) (string, error) {
	path := filepath.Join(p.opts.OutputDir, layer+p.opts.Format.Ext())
	var err error
	switch p.opts.Format {
	case FormatShapefile:
		err = vector.WriteShapefile(path, fs)
	default:
		err = vector.WriteGeoJSON(path, fs)
	}
	if err != nil {
		return "", eris.Wrapf(err, "write %s", layer)
	}
	return path, nil
}

func layerName(path string) string {
	if path == "" {
		return "aoi"
	}
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
