package geotiff

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	gdal "github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/terrain-cli/internal/crs"
	"github.com/sells-group/terrain-cli/internal/raster"
)

func sampleGrid(w, h int) *raster.Grid {
	g := raster.NewGrid(w, h, raster.GeoTransform{
		OriginX: -110.5, CellWidth: 0.001, OriginY: 45.5, CellHeight: -0.001,
	}, crs.WGS84)
	g.SetNoData(-9999)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			g.Set(c, r, float32(1000+r*w+c)+0.25)
		}
	}
	return g
}

func roundTrip(t *testing.T, g *raster.Grid, opts Options) *raster.Grid {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dem.tif")
	require.NoError(t, WriteFile(path, g, opts))
	out, err := ReadFile(path)
	require.NoError(t, err)
	return out
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"default lzw tiles", Options{}},
		{"small deflate tiles", Options{Compress: "DEFLATE", TileSize: 16}},
		{"uncompressed", Options{Compress: "NONE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleGrid(37, 21)
			in.Set(3, 4, -9999)

			out := roundTrip(t, in, tt.opts)
			assert.Equal(t, in.Width, out.Width)
			assert.Equal(t, in.Height, out.Height)
			assert.Equal(t, in.Data, out.Data)
			assert.Equal(t, crs.WGS84, out.CRS)
			assert.True(t, out.HasNoData)
			assert.Equal(t, -9999.0, out.NoData)
			assert.InDelta(t, in.Transform.OriginX, out.Transform.OriginX, 1e-12)
			assert.InDelta(t, in.Transform.OriginY, out.Transform.OriginY, 1e-12)
			assert.InDelta(t, in.Transform.CellWidth, out.Transform.CellWidth, 1e-15)
			assert.InDelta(t, in.Transform.CellHeight, out.Transform.CellHeight, 1e-15)
		})
	}
}

func TestRoundTrip_ProjectedNoNodata(t *testing.T) {
	in := sampleGrid(4, 3)
	in.HasNoData = false
	in.NoData = 0
	in.CRS = crs.CRS{EPSG: 26912}

	out := roundTrip(t, in, Options{})
	assert.False(t, out.HasNoData)
	assert.Equal(t, crs.CRS{EPSG: 26912}, out.CRS)
}

func TestRoundTrip_NaNPreserved(t *testing.T) {
	in := sampleGrid(2, 2)
	in.Set(1, 1, float32(math.NaN()))
	out := roundTrip(t, in, Options{})
	assert.True(t, math.IsNaN(float64(out.At(1, 1))))
}

func TestWriteFile_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dem.tif")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, WriteFile(path, sampleGrid(3, 3), Options{}))
	out, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Width)
}

func TestCreationOptions(t *testing.T) {
	assert.Equal(t,
		[]string{"TILED=YES", "BLOCKXSIZE=256", "BLOCKYSIZE=256", "COMPRESS=LZW"},
		Options{}.creationOptions())
	assert.Equal(t,
		[]string{"TILED=YES", "BLOCKXSIZE=64", "BLOCKYSIZE=64", "COMPRESS=DEFLATE"},
		Options{Compress: "DEFLATE", TileSize: 64}.creationOptions())
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.tif"))
	assert.Error(t, err)
}

func TestReadFile_NotRaster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.tif")
	require.NoError(t, os.WriteFile(path, []byte("<html>not a tiff</html>"), 0o644))
	_, err := ReadFile(path)
	assert.Error(t, err)
}

func TestReadFile_MultiBandUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rgb.tif")
	ds, err := gdal.Create(gdal.GTiff, path, 3, gdal.Byte, 4, 4)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{0, 1, 0, 4, 0, -1}))
	require.NoError(t, ds.Close())

	_, err = ReadFile(path)
	assert.ErrorIs(t, err, raster.ErrUnsupportedRaster)
}

func TestReadFile_RotatedUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotated.tif")
	ds, err := gdal.Create(gdal.GTiff, path, 1, gdal.Float32, 4, 4)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{0, 1, 0.5, 4, 0.5, -1}))
	require.NoError(t, ds.Close())

	_, err = ReadFile(path)
	assert.ErrorIs(t, err, raster.ErrUnsupportedRaster)
}

func TestReadFile_Int16Converted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "int16.tif")
	ds, err := gdal.Create(gdal.GTiff, path, 1, gdal.Int16, 3, 1)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{500000, 30, 0, 5000000, 0, -30}))
	band := ds.Bands()[0]
	require.NoError(t, band.SetNoData(-32768))
	require.NoError(t, band.IO(gdal.IOWrite, 0, 0, []int16{-32768, 1200, 1350}, 3, 1))
	require.NoError(t, ds.Close())

	g, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{-32768, 1200, 1350}, g.Data)
	assert.True(t, g.CRS.IsZero())
	assert.False(t, g.Valid(g.At(0, 0)))
	assert.InDelta(t, 30.0, g.Transform.CellWidth, 1e-12)
}

func TestWriteFile_Rotated(t *testing.T) {
	g := sampleGrid(2, 2)
	g.Transform.RotationX = 0.1
	err := WriteFile(filepath.Join(t.TempDir(), "r.tif"), g, Options{})
	assert.ErrorIs(t, err, raster.ErrUnsupportedRaster)
}

func TestWriteFile_BadGrid(t *testing.T) {
	g := &raster.Grid{Width: 2, Height: 2, Data: []float32{1}}
	err := WriteFile(filepath.Join(t.TempDir(), "bad.tif"), g, Options{})
	assert.ErrorIs(t, err, raster.ErrUnsupportedRaster)
}
