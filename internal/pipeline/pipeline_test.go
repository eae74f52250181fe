package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/terrain-cli/internal/catalog"
	"github.com/sells-group/terrain-cli/internal/crs"
	"github.com/sells-group/terrain-cli/internal/fetcher"
	"github.com/sells-group/terrain-cli/internal/geotiff"
	"github.com/sells-group/terrain-cli/internal/raster"
	"github.com/sells-group/terrain-cli/internal/vector"
)

const districtGeoJSON = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"NAME":"HD 360"},
"geometry":{"type":"Polygon","coordinates":[[[-110.5,45.0],[-110.0,45.0],[-110.0,45.5],[-110.5,45.5],[-110.5,45.0]]]}}]}`

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, bbox vector.BBox) ([]string, error) {
	args := m.Called(ctx, bbox)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type fixture struct {
	dir      string
	boundary string
	srv      *httptest.Server
	tiles    map[string][]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir(), tiles: make(map[string][]byte)}
	f.boundary = filepath.Join(f.dir, "hunting_district.geojson")
	require.NoError(t, os.WriteFile(f.boundary, []byte(districtGeoJSON), 0o644))

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := f.tiles[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// addTile serves g as a GeoTIFF and returns its URL.
func (f *fixture) addTile(t *testing.T, name string, g *raster.Grid) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, geotiff.WriteFile(path, g, geotiff.Options{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	f.tiles["/"+name] = data
	return f.srv.URL + "/" + name
}

func (f *fixture) pipeline(searcher TileSearcher, format OutputFormat) *Pipeline {
	hf := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second})
	return New(Options{
		BoundaryFile:        f.boundary,
		RawDir:              filepath.Join(f.dir, "raw"),
		OutputDir:           filepath.Join(f.dir, "processed"),
		ElevationIntervalFt: 1000,
		SlopeThresholdDeg:   45,
		Format:              format,
	}, searcher, fetcher.NewTileFetcher(hf, filepath.Join(f.dir, "raw", "dem_tiles"), 2))
}

func constantTile(v float32) *raster.Grid {
	g := raster.NewGrid(50, 50, raster.GeoTransform{
		OriginX: -110.5, CellWidth: 0.01, OriginY: 45.5, CellHeight: -0.01,
	}, crs.WGS84)
	g.SetNoData(-9999)
	g.Fill(v)
	return g
}

func TestRun_FlatTileEndToEnd(t *testing.T) {
	f := newFixture(t)
	url := f.addTile(t, "USGS_13_n46w111.tif", constantTile(2000))

	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, vector.BBox{West: -110.5, South: 45, East: -110, North: 45.5}).
		Return([]string{url}, nil)

	p := f.pipeline(searcher, FormatGeoJSON)
	p.opts.BufferMiles = 0
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	searcher.AssertExpectations(t)

	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, "hunting_district", res.AOI)
	assert.Equal(t, []string{filepath.Join(f.dir, "raw", "dem_tiles", "USGS_13_n46w111.tif")}, res.Tiles)
	assert.FileExists(t, res.DEMPath)
	assert.InDelta(t, 2000, res.Stats.Min, 1e-9)

	require.Equal(t, 1, res.Elevation.Len())
	props := res.Elevation.Features[0].Properties
	assert.Equal(t, 2, props[ElevationField])
	assert.Equal(t, "6000-7000 ft", props["label"])
	b := vector.BoundsOf(res.Elevation.Features[0].Geometry)
	assert.InDelta(t, -110.5, b.West, 1e-9)
	assert.InDelta(t, 45.5, b.North, 1e-9)

	assert.Equal(t, 0, res.Slope.Len())
	assert.Equal(t, crs.WGS84, res.Slope.CRS)

	require.Len(t, res.Outputs, 2)
	assert.Equal(t, filepath.Join(f.dir, "processed", "elevation_bands.geojson"), res.Outputs[0])
	assert.Equal(t, filepath.Join(f.dir, "processed", "slope_mask.geojson"), res.Outputs[1])

	written, err := vector.ReadGeoJSON(res.Outputs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, written.Len())

	stages := make([]Stage, 0, len(res.Phases))
	for _, ph := range res.Phases {
		stages = append(stages, ph.Stage)
	}
	assert.Equal(t, []Stage{StageBoundary, StageCatalog, StageFetch, StageMerge, StageElevation, StageSlope, StageWrite}, stages)
}

func TestRun_SteepTileProducesSlopeMask(t *testing.T) {
	f := newFixture(t)
	g := raster.NewGrid(20, 20, raster.GeoTransform{
		OriginX: -110.3, CellWidth: 0.0001, OriginY: 45.3, CellHeight: -0.0001,
	}, crs.WGS84)
	g.SetNoData(-9999)
	for r := range 20 {
		for c := range 20 {
			g.Set(c, r, float32(1000+50*c))
		}
	}
	url := f.addTile(t, "steep.tif", g)

	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything).Return([]string{url}, nil)

	res, err := f.pipeline(searcher, FormatShapefile).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)

	require.Equal(t, 1, res.Slope.Len())
	assert.Equal(t, "> 45 degrees", res.Slope.Features[0].Properties["label"])
	assert.Greater(t, res.Elevation.Len(), 1)

	assert.FileExists(t, filepath.Join(f.dir, "processed", "slope_mask.shp"))
	assert.FileExists(t, filepath.Join(f.dir, "processed", "elevation_bands.shp"))
}

func TestRun_MissingBoundaryBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	searcher := new(mockSearcher)

	p := f.pipeline(searcher, FormatGeoJSON)
	p.opts.BoundaryFile = filepath.Join(f.dir, "absent.geojson")
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, vector.ErrMissingBoundaryInput)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageBoundary, se.Stage)
	assert.Equal(t, "absent", se.AOI)
	searcher.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestRun_CatalogUnavailable(t *testing.T) {
	f := newFixture(t)
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything).
		Return(nil, &catalog.UnavailableError{URL: "https://tnm.test", Status: 503})

	_, err := f.pipeline(searcher, FormatGeoJSON).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrCatalogUnavailable)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageCatalog, se.Stage)
	assert.Contains(t, err.Error(), "hunting_district")
}

func TestRun_NoTiles(t *testing.T) {
	f := newFixture(t)
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything).Return([]string{}, nil)

	res, err := f.pipeline(searcher, FormatGeoJSON).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoTiles, res.Outcome)
	assert.Empty(t, res.Outputs)
	assert.NoDirExists(t, filepath.Join(f.dir, "processed"))
}

func TestRun_EmptyRaster(t *testing.T) {
	f := newFixture(t)
	url := f.addTile(t, "void.tif", constantTile(-9999))
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything).Return([]string{url}, nil)

	res, err := f.pipeline(searcher, FormatGeoJSON).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyRaster, res.Outcome)
	assert.Nil(t, res.Elevation)
	assert.Empty(t, res.Outputs)
}

func TestRun_TileDownloadFailureAborts(t *testing.T) {
	f := newFixture(t)
	good := f.addTile(t, "good.tif", constantTile(2000))
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything).
		Return([]string{good, f.srv.URL + "/gone.tif"}, nil)

	_, err := f.pipeline(searcher, FormatGeoJSON).Run(context.Background())
	require.Error(t, err)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageFetch, se.Stage)
	assert.NoFileExists(t, filepath.Join(f.dir, "raw", "dem_tiles", "gone.tif"))
}

func TestRun_TileNameCollision(t *testing.T) {
	f := newFixture(t)
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything).
		Return([]string{"https://a.test/x/tile.tif", "https://b.test/y/tile.tif"}, nil)

	_, err := f.pipeline(searcher, FormatGeoJSON).Run(context.Background())
	assert.ErrorIs(t, err, fetcher.ErrTileNameCollision)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Options{BufferMiles: -1}, nil, nil)
	assert.Equal(t, 1000.0, p.opts.ElevationIntervalFt)
	assert.Equal(t, 45.0, p.opts.SlopeThresholdDeg)
	assert.Equal(t, FormatGeoJSON, p.opts.Format)
	assert.Equal(t, 0.0, p.opts.BufferMiles)
}

func TestOutputFormatExt(t *testing.T) {
	assert.Equal(t, ".geojson", FormatGeoJSON.Ext())
	assert.Equal(t, ".shp", FormatShapefile.Ext())
}
