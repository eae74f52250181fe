package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrTileNameCollision is returned when two distinct tile URLs map to the
// same local file name.
var ErrTileNameCollision = eris.New("fetcher: tile name collision")

// DefaultConcurrency is the number of parallel tile downloads.
const DefaultConcurrency = 4

// TileReference is a remote tile and the file name it is cached under.
type TileReference struct {
	URL  string
	Name string
}

// LocalName derives the cache file name for a tile URL: the last path
// segment without the query string, with ".tif" appended unless it already
// ends in .tif or .tiff.
func LocalName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse tile url %q", rawURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", eris.Errorf("fetcher: tile url %q has no file name", rawURL)
	}
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".tif") && !strings.HasSuffix(lower, ".tiff") {
		name += ".tif"
	}
	return name, nil
}

// References derives a TileReference per URL. Two URLs deriving the same
// name fail with ErrTileNameCollision.
func References(urls []string) ([]TileReference, error) {
	seen := make(map[string]string, len(urls))
	refs := make([]TileReference, 0, len(urls))
	for _, u := range urls {
		name, err := LocalName(u)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[name]; ok {
			return nil, eris.Wrapf(ErrTileNameCollision, "%s and %s both map to %s", prev, u, name)
		}
		seen[name] = u
		refs = append(refs, TileReference{URL: u, Name: name})
	}
	return refs, nil
}

// TileFetcher downloads tiles into a cache directory.
type TileFetcher struct {
	fetcher     Fetcher
	dir         string
	concurrency int
}

// NewTileFetcher returns a TileFetcher caching into dir. concurrency <= 0
// uses DefaultConcurrency.
func NewTileFetcher(f Fetcher, dir string, concurrency int) *TileFetcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &TileFetcher{fetcher: f, dir: dir, concurrency: concurrency}
}

// Path returns the cache path for a reference.
func (t *TileFetcher) Path(ref TileReference) string {
	return filepath.Join(t.dir, ref.Name)
}

// FetchAll ensures every reference is present in the cache and returns the
// local paths in input order. A non-empty cached file is reused without a
// network call. The first failure cancels the remaining downloads.
func (t *TileFetcher) FetchAll(ctx context.Context, refs []TileReference) ([]string, error) {
	log := zap.L().With(
		zap.String("component", "fetcher.tiles"),
		zap.String("dir", t.dir),
	)

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "fetcher: create tile dir")
	}

	paths := make([]string, len(refs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for i, ref := range refs {
		dest := t.Path(ref)
		paths[i] = dest
		g.Go(func() error {
			if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
				log.Debug("tile cached, skipping download", zap.String("path", dest))
				return nil
			}
			n, err := t.fetcher.DownloadToFile(gCtx, ref.URL, dest)
			if err != nil {
				return eris.Wrapf(err, "fetcher: download tile %s", ref.Name)
			}
			log.Info("tile downloaded", zap.String("tile", ref.Name), zap.Int64("bytes", n))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
