// Package nasa is the authenticated client for the api.nasa.gov feeds.
//
// The client attaches the API key and the identifying header, throttles
// requests client side and returns the raw body without interpreting it.
// Every URL and body that leaves the package in an error has the key
// redacted. There is no retry at this layer.
package nasa

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/httpclient"
	"github.com/spaceportal/spaceportal/internal/logger"
	"github.com/spaceportal/spaceportal/internal/privacy"
)

// Feed names an upstream data source with its own base URL.
type Feed string

const (
	FeedDONKI Feed = "donki"
	FeedAPOD  Feed = "apod"
)

// Relative paths below each feed's base URL.
const (
	PathFlares = "FLR"
	PathApod   = "planetary/apod"
)

const (
	apiKeyParam = "api_key"

	// maxResponseBytes bounds a single feed response
	maxResponseBytes = 32 << 20
	// maxErrorBodyBytes bounds the body echoed back in an UpstreamError
	maxErrorBodyBytes = 4 << 10
)

var (
	// ErrMissingCredential is returned before any network call when no API key is configured.
	ErrMissingCredential = errors.NewStd("NASA API key is not configured")
	// ErrUpstreamUnavailable matches every *UpstreamError.
	ErrUpstreamUnavailable = errors.NewStd("upstream feed unavailable")
)

// Config is injected at construction; the client never reads global settings.
type Config struct {
	APIKey    string
	UserAgent string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables throttling
	Burst     int
	BaseURLs  map[Feed]string
}

// Observer receives per-request measurements.
type Observer interface {
	RecordUpstreamRequest(feed string, statusCode int)
	RecordFetchDuration(feed string, d time.Duration)
}

// Response is a successful feed response.
type Response struct {
	StatusCode int
	Body       []byte
	URL        string // request URL with the key masked

	redact func(string) string
}

// Client fetches raw feed payloads. Safe for concurrent use.
type Client struct {
	cfg      Config
	http     *httpclient.Client
	limiter  *rate.Limiter
	observer Observer
	log      logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default outbound client.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithObserver records request metrics through o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a feed client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = httpclient.DefaultUserAgent
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.New(&httpclient.Config{DefaultTimeout: cfg.Timeout, UserAgent: cfg.UserAgent})
	}
	if c.log == nil {
		c.log = logger.NewDiscardLogger()
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	return c
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Redact masks the API key in text.
func (c *Client) Redact(text string) string {
	return privacy.Redact(text, c.cfg.APIKey)
}

// Fetch issues an authenticated GET against relPath below the feed's base
// URL. A non-2xx status or transport failure returns an *UpstreamError.
func (c *Client) Fetch(ctx context.Context, feed Feed, relPath string, params url.Values) (*Response, error) {
	if !c.HasCredential() {
		return nil, errors.New(ErrMissingCredential).
			Component("nasa").
			Category(errors.CategoryConfiguration).
			Context("feed", string(feed)).
			Build()
	}

	requestURL, err := c.buildURL(feed, relPath, params)
	if err != nil {
		return nil, err
	}
	safeURL := c.Redact(requestURL)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.contextError(ctx, feed, err)
		}
	}

	c.log.Debug("fetching feed",
		logger.String("feed", string(feed)),
		logger.String("url", safeURL))

	start := time.Now()
	resp, err := c.http.Get(ctx, requestURL, map[string]string{
		"User-Agent": c.cfg.UserAgent,
		"Accept":     "application/json",
	})
	if err != nil {
		c.observe(feed, 0, start)
		if ctx.Err() != nil {
			return nil, c.contextError(ctx, feed, err)
		}
		return nil, c.upstreamError(&UpstreamError{
			Feed: feed,
			URL:  safeURL,
			Err:  privacy.RedactError(err, c.cfg.APIKey),
		}, errors.CategoryNetwork)
	}

	body, err := httpclient.ReadBody(resp, maxResponseBytes)
	c.observe(feed, resp.StatusCode, start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.contextError(ctx, feed, err)
		}
		return nil, c.upstreamError(&UpstreamError{
			Feed: feed,
			URL:  safeURL,
			Err:  privacy.RedactError(err, c.cfg.APIKey),
		}, errors.CategoryNetwork)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, c.upstreamError(&UpstreamError{
			Feed:       feed,
			StatusCode: resp.StatusCode,
			URL:        safeURL,
			Body:       errorBody(body, c.Redact),
		}, errors.CategoryUpstream)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body, URL: safeURL, redact: c.Redact}, nil
}

func (c *Client) buildURL(feed Feed, relPath string, params url.Values) (string, error) {
	base, ok := c.cfg.BaseURLs[feed]
	if !ok || base == "" {
		return "", errors.Newf("unknown feed %q", feed).
			Component("nasa").
			Category(errors.CategoryValidation).
			Build()
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.New(err).
			Component("nasa").
			Category(errors.CategoryConfiguration).
			Context("feed", string(feed)).
			Build()
	}
	u = u.JoinPath(relPath)

	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Set(apiKeyParam, c.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) observe(feed Feed, status int, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.RecordUpstreamRequest(string(feed), status)
	c.observer.RecordFetchDuration(string(feed), time.Since(start))
}

func (c *Client) contextError(ctx context.Context, feed Feed, err error) error {
	cause := ctx.Err()
	if cause == nil {
		// limiter reservation would outlive the deadline
		return errors.New(privacy.RedactError(err, c.cfg.APIKey)).
			Component("nasa").
			Category(errors.CategoryTimeout).
			Context("feed", string(feed)).
			Build()
	}
	return errors.New(cause).
		Component("nasa").
		Category(errors.CategoryCancellation).
		Context("feed", string(feed)).
		Build()
}

func (c *Client) upstreamError(ue *UpstreamError, category errors.ErrorCategory) error {
	c.log.Warn("feed request failed",
		logger.String("feed", string(ue.Feed)),
		logger.Int("status", ue.StatusCode),
		logger.String("url", ue.URL))
	return errors.New(ue).
		Component("nasa").
		Category(category).
		Context("feed", string(ue.Feed)).
		Context("status", ue.StatusCode).
		Build()
}
