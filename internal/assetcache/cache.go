// Package assetcache downloads feed media into the local static asset tree.
//
// A failed download never fails the caller: CacheAsset returns a Result
// with an empty path and the error for logging. URLs that just failed are
// remembered for FailureTTL so a range import does not keep hitting a
// broken asset host, and concurrent requests for one URL share a download.
package assetcache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/httpclient"
	"github.com/spaceportal/spaceportal/internal/logger"
	"github.com/spaceportal/spaceportal/internal/observability/metrics"
)

// ErrAssetFetchFailed wraps every download or storage failure.
var ErrAssetFetchFailed = errors.NewStd("asset fetch failed")

const (
	DefaultExt             = ".jpg"
	DefaultMaxBytes        = 50 << 20
	DefaultDownloadTimeout = 2 * time.Minute
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// Config controls where and how assets are stored.
type Config struct {
	Root       string // directory the web paths are relative to
	Feed       string // first path segment, e.g. "apod"
	DefaultExt string
	MaxBytes   int64
	FailureTTL time.Duration // 0 disables negative caching

	// DownloadTimeout bounds one shared download, independent of the
	// callers waiting on it
	DownloadTimeout time.Duration
}

// Result is the outcome of one CacheAsset call. Path is the web path below
// Root and is empty when Err is set.
type Result struct {
	Path string
	Err  error
}

// Observer receives one status per CacheAsset call.
type Observer interface {
	RecordAssetFetch(status string)
}

// Cache stores assets. Safe for concurrent use.
type Cache struct {
	cfg      Config
	fs       afero.Fs
	http     *httpclient.Client
	failures *cache.Cache
	group    singleflight.Group
	log      logger.Logger
	observer Observer
}

// Option configures a Cache.
type Option func(*Cache)

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(c *Cache) { c.fs = fs }
}

// WithHTTPClient replaces the default download client.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(c *Cache) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithObserver records fetch statuses through o.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New creates an asset cache.
func New(cfg Config, opts ...Option) *Cache {
	if cfg.DefaultExt == "" {
		cfg.DefaultExt = DefaultExt
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}
	c := &Cache{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.http == nil {
		c.http = httpclient.New(nil)
	}
	if c.log == nil {
		c.log = logger.NewDiscardLogger()
	}
	if cfg.FailureTTL > 0 {
		c.failures = cache.New(cfg.FailureTTL, 2*cfg.FailureTTL)
	}
	return c
}

// RelativePath derives the deterministic web path of the asset for date:
// /<feed>/<yyyy>/<mm>/<yyyymmdd><ext>, the extension taken from the source
// URL or defaultExt.
func RelativePath(feed string, date time.Time, sourceURL, defaultExt string) string {
	return path.Join("/", feed, date.Format("2006"), date.Format("01"), date.Format("20060102")+extension(sourceURL, defaultExt))
}

func extension(sourceURL, defaultExt string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if !extPattern.MatchString(ext) {
		return defaultExt
	}
	return ext
}

// CacheAsset downloads sourceURL and stores it under the path derived from
// date. It never panics or blocks past ctx; failures come back in Result.
func (c *Cache) CacheAsset(ctx context.Context, sourceURL string, date time.Time) Result {
	rel := RelativePath(c.cfg.Feed, date, sourceURL, c.cfg.DefaultExt)

	if c.failures != nil {
		if _, failed := c.failures.Get(sourceURL); failed {
			c.record(metrics.StatusSuppressed)
			return Result{Err: c.fetchError(sourceURL, rel, fmt.Errorf("recent failure, retry after %s", c.cfg.FailureTTL))}
		}
	}

	if err := ctx.Err(); err != nil {
		c.record(metrics.StatusCancelled)
		return Result{Err: c.fetchError(sourceURL, rel, err)}
	}

	// The shared download is detached from the caller that started it so
	// one caller going away does not fail the others joined on it.
	ch := c.group.DoChan(sourceURL+"|"+rel, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.DownloadTimeout)
		defer cancel()
		return rel, c.download(dctx, sourceURL, rel)
	})

	select {
	case <-ctx.Done():
		c.record(metrics.StatusCancelled)
		return Result{Err: c.fetchError(sourceURL, rel, ctx.Err())}
	case r := <-ch:
		if r.Err != nil {
			if c.failures != nil && !isContextError(r.Err) {
				c.failures.SetDefault(sourceURL, struct{}{})
			}
			c.record(metrics.StatusError)
			return Result{Err: c.fetchError(sourceURL, rel, r.Err)}
		}
		c.record(metrics.StatusSuccess)
		if r.Shared {
			c.log.Trace("asset download shared", logger.String("url", sourceURL))
		}
		return Result{Path: r.Val.(string)}
	}
}

// isContextError reports a cancelled or timed out download. Those say
// nothing about the asset host and are never negatively cached.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) download(ctx context.Context, sourceURL, rel string) error {
	resp, err := c.http.Get(ctx, sourceURL, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := httpclient.ReadBody(resp, c.cfg.MaxBytes)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("empty body")
	}
	return c.write(rel, data)
}

// write stores data through a temporary file and rename so a reader never
// sees a partial asset.
func (c *Cache) write(rel string, data []byte) error {
	target := filepath.Join(c.cfg.Root, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	dir := filepath.Dir(target)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := afero.TempFile(c.fs, dir, ".asset-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = c.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(tmpName)
		return err
	}
	if err := c.fs.Rename(tmpName, target); err != nil {
		_ = c.fs.Remove(tmpName)
		return err
	}
	return nil
}

func (c *Cache) fetchError(sourceURL, rel string, cause error) error {
	return errors.New(fmt.Errorf("%w: %w", ErrAssetFetchFailed, cause)).
		Component("assets").
		Category(errors.CategoryImageFetch).
		Context("url", sourceURL).
		Context("path", rel).
		Build()
}

func (c *Cache) record(status string) {
	if c.observer != nil {
		c.observer.RecordAssetFetch(status)
	}
}
