package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/terrain-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int
	// RateLimit is requests per second per host; 0 means unlimited.
	RateLimit float64
	// Backoff is the delay before the first retry.
	Backoff time.Duration
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.set(a.currentRate * 1.2)
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.set(a.currentRate * 0.5)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(a.Limit())),
	)
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate == rate.Inf {
		return
	}
	r = min(max(r, a.minRate), a.maxRate)
	a.currentRate = r
	a.limiter.SetLimit(r)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with per-host rate limiting
// and bounded retries of transient failures.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "terrain-cli/1.0"
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// limiterFor returns the limiter for the URL's host, creating it on first use.
func (f *HTTPFetcher) limiterFor(u *url.URL) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	r, burst := rate.Inf, 1
	if f.opts.RateLimit > 0 {
		r = rate.Limit(f.opts.RateLimit)
		burst = max(1, int(f.opts.RateLimit))
	}
	lim := NewAdaptiveLimiter(r, burst)
	f.limiters[u.Host] = lim
	return lim
}

func (f *HTTPFetcher) retryConfig(rawURL string) resilience.RetryConfig {
	cfg := resilience.WithAttempts(f.opts.MaxRetries + 1)
	if f.opts.Backoff > 0 {
		cfg.InitialBackoff = f.opts.Backoff
		cfg.MaxBackoff = 30 * f.opts.Backoff
	}
	cfg.OnRetry = resilience.RetryLogger("fetcher", rawURL)
	return cfg
}

// Download fetches the URL and returns the response body. 5xx and 429
// responses are retried up to MaxRetries times; other non-200 statuses fail
// immediately.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	lim := f.limiterFor(req.URL)

	resp, err := resilience.DoVal(ctx, f.retryConfig(rawURL), func(ctx context.Context) (*http.Response, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}
		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			return nil, resilience.TransportError(err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests {
				lim.OnRateLimit()
			}
			return nil, resilience.StatusError(resp.StatusCode, rawURL)
		}
		lim.OnSuccess()
		return resp, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to path. The body is streamed
// into a uniquely named sibling temp file which is synced and renamed onto
// path only once complete; on any failure the temp file is removed and path
// is left untouched.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	n, err := writeAtomic(path, body)
	if err != nil {
		return 0, eris.Wrapf(err, "write %s", rawURL)
	}
	return n, nil
}

// writeAtomic streams r to path via a temp file and rename. An empty
// payload is an error so that a zero-length file never lands at path.
func writeAtomic(path string, r io.Reader) (n int64, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "create dest dir")
	}

	tmp := path + "." + uuid.NewString() + ".part"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, eris.Wrap(err, "create temp file")
	}
	defer func() {
		if err != nil {
			_ = file.Close()
			_ = os.Remove(tmp)
		}
	}()

	n, err = io.Copy(file, r)
	if err != nil {
		return 0, eris.Wrap(err, "write file")
	}
	if n == 0 {
		return 0, eris.New("empty response body")
	}
	if err = file.Sync(); err != nil {
		return 0, eris.Wrap(err, "sync file")
	}
	if err = file.Close(); err != nil {
		return 0, eris.Wrap(err, "close file")
	}
	if err = os.Rename(tmp, path); err != nil {
		return 0, eris.Wrap(err, "rename into place")
	}
	return n, nil
}
