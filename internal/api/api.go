// Package api exposes the import operations over HTTP with echo.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/spaceportal/spaceportal/internal/buildinfo"
	"github.com/spaceportal/spaceportal/internal/ingest"
	"github.com/spaceportal/spaceportal/internal/logger"
)

// Importer runs feed imports.
type Importer interface {
	ImportFlares(ctx context.Context, start, end *time.Time) (*ingest.Result, error)
	ImportSingle(ctx context.Context, date *time.Time) (*ingest.Result, error)
	ImportRange(ctx context.Context, start, end time.Time) (*ingest.Result, error)
}

// Stats reports stored row counts for the health check.
type Stats interface {
	CountSpaceWeatherEvents(ctx context.Context) (int64, error)
	CountDailyImagery(ctx context.Context) (int64, error)
}

// Controller manages the API routes and handlers
type Controller struct {
	Group     *echo.Group
	importer  Importer
	stats     Stats
	reader    Reader
	build     *buildinfo.Context
	assetRoot string
	log       logger.Logger
	now       func() time.Time
	startTime time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithStats adds stored row counts to the health check.
func WithStats(s Stats) ControllerOption {
	return func(c *Controller) { c.stats = s }
}

// WithReader serves stored records under /api/apod and /api/donki.
func WithReader(r Reader) ControllerOption {
	return func(c *Controller) { c.reader = r }
}

// WithClock replaces time.Now for the "today" lookup.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithBuildInfo reports the build version from the health check.
func WithBuildInfo(b *buildinfo.Context) ControllerOption {
	return func(c *Controller) { c.build = b }
}

// WithAssetRoot reports free space of the asset volume from the health check.
func WithAssetRoot(root string) ControllerOption {
	return func(c *Controller) { c.assetRoot = root }
}

// WithLogger sets the API logger.
func WithLogger(l logger.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// NewController registers the /api routes on e.
func NewController(e *echo.Echo, importer Importer, opts ...ControllerOption) *Controller {
	c := &Controller{
		importer:  importer,
		now:       time.Now,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewDiscardLogger()
	}

	c.Group = e.Group("/api")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	imports := c.Group.Group("/import")
	imports.POST("/donki/flares", c.ImportFlares)
	imports.POST("/nasa/apod", c.ImportApod)
	imports.POST("/nasa/apod/range", c.ImportApodRange)

	if c.reader != nil {
		c.initReadRoutes()
	}
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status          string     `json:"status"`
	Version         string     `json:"version"`
	Uptime          string     `json:"uptime"`
	SpaceWeather    *int64     `json:"space_weather_events,omitempty"`
	DailyImagery    *int64     `json:"daily_imagery,omitempty"`
	DatabaseMessage string     `json:"database,omitempty"`
	AssetDisk       *DiskUsage `json:"asset_disk,omitempty"`
}

// DiskUsage describes the volume holding cached assets.
type DiskUsage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	resp := HealthResponse{
		Status:  "healthy",
		Version: c.build.GetVersion(),
		Uptime:  time.Since(c.startTime).Truncate(time.Second).String(),
	}

	if c.assetRoot != "" {
		usage, err := disk.UsageWithContext(ctx.Request().Context(), c.assetRoot)
		if err != nil {
			c.log.Debug("asset disk usage unavailable", logger.String("path", c.assetRoot), logger.Error(err))
		} else {
			resp.AssetDisk = &DiskUsage{
				Path:        c.assetRoot,
				TotalBytes:  usage.Total,
				FreeBytes:   usage.Free,
				UsedPercent: usage.UsedPercent,
			}
		}
	}

	if c.stats != nil {
		reqCtx := ctx.Request().Context()
		events, err := c.stats.CountSpaceWeatherEvents(reqCtx)
		if err == nil {
			var images int64
			images, err = c.stats.CountDailyImagery(reqCtx)
			if err == nil {
				resp.SpaceWeather = &events
				resp.DailyImagery = &images
			}
		}
		if err != nil {
			c.log.Warn("health check could not reach database", logger.Error(err))
			resp.Status = "degraded"
			resp.DatabaseMessage = "unavailable"
			return ctx.JSON(http.StatusServiceUnavailable, resp)
		}
	}

	return ctx.JSON(http.StatusOK, resp)
}
