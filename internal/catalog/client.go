// Package catalog queries a remote elevation product catalog for the tiles
// covering a bounding box.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/terrain-cli/internal/resilience"
	"github.com/sells-group/terrain-cli/internal/vector"
)

// Defaults for the USGS National Map products API.
const (
	DefaultBaseURL  = "https://tnmaccess.nationalmap.gov/api/v1/products"
	DefaultDataset  = "National Elevation Dataset (NED) 1/3 arc-second"
	DefaultFormat   = "GeoTIFF"
	DefaultPageSize = 200
	DefaultTimeout  = 120 * time.Second
)

// ErrCatalogUnavailable matches every *UnavailableError via errors.Is.
var ErrCatalogUnavailable = eris.New("catalog unavailable")

// UnavailableError reports a catalog request that could not complete: the
// service was unreachable, answered with a non-2xx status, or sent a body
// that could not be decoded. Status is 0 when no response was received.
type UnavailableError struct {
	URL    string
	Status int
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog unavailable: %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("catalog unavailable: %s: %v", e.URL, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is matches ErrCatalogUnavailable.
func (e *UnavailableError) Is(target error) bool { return target == ErrCatalogUnavailable }

// Item is one catalog product. DownloadURL is empty for products without a
// downloadable payload.
type Item struct {
	Title       string `json:"title"`
	DownloadURL string `json:"downloadURL"`
	Format      string `json:"format"`
	SizeInBytes int64  `json:"sizeInBytes"`
}

type response struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets the products endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithDataset sets the dataset name queried.
func WithDataset(name string) Option {
	return func(c *Client) { c.dataset = name }
}

// WithFormat sets the product format queried.
func WithFormat(format string) Option {
	return func(c *Client) { c.format = format }
}

// WithPageSize sets the number of items requested per page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithHTTPClient sets a custom HTTP client. The client is never modified;
// a WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each catalog request, regardless of option order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit sets the requests-per-second limit; rps <= 0 disables it.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// Client searches the product catalog.
type Client struct {
	baseURL    string
	dataset    string
	format     string
	pageSize   int
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
}

// NewClient creates a catalog Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		dataset:    DefaultDataset,
		format:     DefaultFormat,
		pageSize:   DefaultPageSize,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.httpClient.Timeout != c.timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// Items returns a paginator over the catalog items intersecting bbox.
func (c *Client) Items(bbox vector.BBox) *Paginator[Item] {
	return NewPaginator(c.pageSize, func(ctx context.Context, offset, limit int) ([]Item, error) {
		return c.page(ctx, bbox, offset, limit)
	})
}

// Search returns the deduplicated download URLs of every tile intersecting
// bbox, in first-seen order. Items without a download URL are skipped.
// There is no automatic retry; a failure is an *UnavailableError.
func (c *Client) Search(ctx context.Context, bbox vector.BBox) ([]string, error) {
	log := zap.L().With(
		zap.String("component", "catalog"),
		zap.String("bbox", bbox.String()),
	)

	items, err := c.Items(bbox).All(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: search")
	}

	var (
		urls []string
		seen = make(map[string]struct{})
	)
	for _, it := range items {
		if it.DownloadURL == "" {
			continue
		}
		if _, dup := seen[it.DownloadURL]; dup {
			continue
		}
		seen[it.DownloadURL] = struct{}{}
		urls = append(urls, it.DownloadURL)
	}

	log.Info("catalog search complete", zap.Int("items", len(items)), zap.Int("tiles", len(urls)))
	return urls, nil
}

func (c *Client) pageURL(bbox vector.BBox, offset, limit int) string {
	q := url.Values{}
	q.Set("datasets", c.dataset)
	q.Set("prodFormats", c.format)
	q.Set("bbox", bbox.String())
	q.Set("outputFormat", "JSON")
	q.Set("max", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return c.baseURL + "?" + q.Encode()
}

func (c *Client) page(ctx context.Context, bbox vector.BBox, offset, limit int) ([]Item, error) {
	reqURL := c.pageURL(bbox, offset, limit)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "catalog: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{URL: reqURL, Err: resilience.TransportError(err)}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UnavailableError{
			URL:    reqURL,
			Status: resp.StatusCode,
			Err:    resilience.StatusError(resp.StatusCode, reqURL),
		}
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &UnavailableError{URL: reqURL, Err: eris.Wrap(err, "decode response")}
	}

	zap.L().Debug("catalog page",
		zap.String("component", "catalog"),
		zap.Int("offset", offset),
		zap.Int("items", len(body.Items)),
		zap.Int("total", body.Total),
	)
	return body.Items, nil
}
