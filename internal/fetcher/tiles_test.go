package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://prd-tnm.s3.amazonaws.com/StagedProducts/Elevation/13/TIFF/current/n46w111/USGS_13_n46w111.tif", "USGS_13_n46w111.tif"},
		{"https://example.test/a/tile.TIFF?sig=abc", "tile.TIFF"},
		{"https://example.test/a/tile?x=1", "tile.tif"},
		{"https://example.test/a/tile.img", "tile.img.tif"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := LocalName(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := LocalName("https://example.test/")
	assert.Error(t, err)
	_, err = LocalName("://bad")
	assert.Error(t, err)
}

func TestReferences_Collision(t *testing.T) {
	_, err := References([]string{
		"https://a.test/x/tile.tif",
		"https://b.test/y/tile.tif?v=2",
	})
	assert.ErrorIs(t, err, ErrTileNameCollision)

	refs, err := References([]string{"https://a.test/1.tif", "https://a.test/2"})
	require.NoError(t, err)
	assert.Equal(t, []TileReference{
		{URL: "https://a.test/1.tif", Name: "1.tif"},
		{URL: "https://a.test/2", Name: "2.tif"},
	}, refs)
}

func tileServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("tile:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAll_OrderAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := tileServer(t, &calls)

	refs, err := References([]string{srv.URL + "/c.tif", srv.URL + "/a.tif", srv.URL + "/b.tif"})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "dem_tiles")
	tf := NewTileFetcher(newTestFetcher(0), dir, 2)

	paths, err := tf.FetchAll(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "c.tif"),
		filepath.Join(dir, "a.tif"),
		filepath.Join(dir, "b.tif"),
	}, paths)
	assert.Equal(t, int32(3), calls.Load())

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "tile:/a.tif", string(data))

	_, err = tf.FetchAll(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchAll_EmptyCachedFileRedownloaded(t *testing.T) {
	var calls atomic.Int32
	srv := tileServer(t, &calls)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tif"), nil, 0o644))

	tf := NewTileFetcher(newTestFetcher(0), dir, 0)
	paths, err := tf.FetchAll(context.Background(), []TileReference{{URL: srv.URL + "/a.tif", Name: "a.tif"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	info, err := os.Stat(paths[0])
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestFetchAll_FailureAborts(t *testing.T) {
	var calls atomic.Int32
	srv := tileServer(t, &calls)

	dir := t.TempDir()
	tf := NewTileFetcher(newTestFetcher(0), dir, 1)
	_, err := tf.FetchAll(context.Background(), []TileReference{
		{URL: srv.URL + "/missing.tif", Name: "missing.tif"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.tif")
	assert.NoFileExists(t, filepath.Join(dir, "missing.tif"))
}

func TestFetchAll_Empty(t *testing.T) {
	tf := NewTileFetcher(newTestFetcher(0), t.TempDir(), 0)
	paths, err := tf.FetchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}
