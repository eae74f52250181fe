// Package geotiff reads and writes single-band elevation rasters through
// GDAL.
package geotiff

import (
	"math"
	"os"
	"strconv"

	gdal "github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/crs"
	"github.com/sells-group/terrain-cli/internal/raster"
)

// DefaultTileSize is the block edge used for tiled output.
const DefaultTileSize = 256

// Options controls writing. The zero value writes LZW-compressed 256x256
// tiles.
type Options struct {
	// Compress is the GTiff COMPRESS creation option; empty means LZW.
	Compress string
	TileSize int
}

func (o Options) creationOptions() []string {
	compress := o.Compress
	if compress == "" {
		compress = "LZW"
	}
	tile := o.TileSize
	if tile <= 0 {
		tile = DefaultTileSize
	}
	return []string{
		"TILED=YES",
		"BLOCKXSIZE=" + strconv.Itoa(tile),
		"BLOCKYSIZE=" + strconv.Itoa(tile),
		"COMPRESS=" + compress,
	}
}

func init() {
	gdal.RegisterAll()
}

// ReadFile reads band 1 of the raster at path as float32 cells, with its
// geotransform, nodata value and EPSG code. Rasters with more than one band
// or a rotated geotransform are rejected with raster.ErrUnsupportedRaster.
// A raster whose CRS has no EPSG code comes back with a zero CRS.
func ReadFile(path string) (*raster.Grid, error) {
	ds, err := gdal.Open(path, gdal.RasterOnly())
	if err != nil {
		return nil, eris.Wrapf(err, "geotiff: open %s", path)
	}
	defer ds.Close() //nolint:errcheck

	st := ds.Structure()
	if st.NBands != 1 {
		return nil, eris.Wrapf(raster.ErrUnsupportedRaster, "geotiff: %s has %d bands", path, st.NBands)
	}

	t, err := ds.GeoTransform()
	if err != nil {
		return nil, eris.Wrapf(err, "geotiff: %s has no geotransform", path)
	}
	gt := raster.GeoTransform{
		OriginX: t[0], CellWidth: t[1], RotationX: t[2],
		OriginY: t[3], RotationY: t[4], CellHeight: t[5],
	}
	if gt.IsRotated() {
		return nil, eris.Wrapf(raster.ErrUnsupportedRaster, "geotiff: %s has a rotated geotransform", path)
	}

	g := raster.NewGrid(st.SizeX, st.SizeY, gt, epsgOf(ds))
	band := ds.Bands()[0]
	if err := band.IO(gdal.IORead, 0, 0, g.Data, st.SizeX, st.SizeY); err != nil {
		return nil, eris.Wrapf(err, "geotiff: read %s", path)
	}
	if nd, ok := band.NoData(); ok {
		g.SetNoData(nd)
	}

	zap.L().Debug("geotiff: read raster",
		zap.String("path", path),
		zap.Int("width", g.Width),
		zap.Int("height", g.Height),
		zap.String("crs", g.CRS.String()),
		zap.String("type", band.Structure().DataType.String()),
	)
	return g, nil
}

func epsgOf(ds *gdal.Dataset) crs.CRS {
	sr := ds.SpatialRef()
	if sr == nil {
		return crs.CRS{}
	}
	if code := sr.AuthorityCode(""); code > 0 {
		return crs.CRS{EPSG: code}
	}
	if err := sr.AutoIdentifyEPSG(); err != nil {
		return crs.CRS{}
	}
	return crs.CRS{EPSG: sr.AuthorityCode("")}
}

// WriteFile writes g to path as a tiled, compressed float32 GeoTIFF,
// replacing any existing file. A partially written file is removed.
func WriteFile(path string, g *raster.Grid, opts Options) (err error) {
	if g.Width <= 0 || g.Height <= 0 || len(g.Data) != g.Width*g.Height {
		return eris.Wrapf(raster.ErrUnsupportedRaster, "geotiff: invalid %dx%d grid", g.Width, g.Height)
	}
	if g.Transform.IsRotated() {
		return eris.Wrap(raster.ErrUnsupportedRaster, "geotiff: rotated geotransform")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "geotiff: replace %s", path)
	}

	ds, err := gdal.Create(gdal.GTiff, path, 1, gdal.Float32, g.Width, g.Height,
		gdal.CreationOption(opts.creationOptions()...))
	if err != nil {
		return eris.Wrapf(err, "geotiff: create %s", path)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "geotiff: close %s", path)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	gt := g.Transform
	if err := ds.SetGeoTransform([6]float64{
		gt.OriginX, gt.CellWidth, gt.RotationX, gt.OriginY, gt.RotationY, gt.CellHeight,
	}); err != nil {
		return eris.Wrap(err, "geotiff: set geotransform")
	}
	if !g.CRS.IsZero() {
		sr, err := gdal.NewSpatialRefFromEPSG(g.CRS.EPSG)
		if err != nil {
			return eris.Wrapf(err, "geotiff: spatial ref %s", g.CRS)
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return eris.Wrapf(err, "geotiff: set spatial ref %s", g.CRS)
		}
	}

	band := ds.Bands()[0]
	if g.HasNoData && !math.IsNaN(g.NoData) {
		if err := band.SetNoData(g.NoData); err != nil {
			return eris.Wrap(err, "geotiff: set nodata")
		}
	}
	if err := band.IO(gdal.IOWrite, 0, 0, g.Data, g.Width, g.Height); err != nil {
		return eris.Wrapf(err, "geotiff: write %s", path)
	}
	return nil
}
