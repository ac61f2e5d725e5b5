// Package app assembles the import service and its dependencies from
// settings.
package app

import (
	"context"
	"fmt"

	"github.com/spaceportal/spaceportal/internal/api"
	"github.com/spaceportal/spaceportal/internal/assetcache"
	"github.com/spaceportal/spaceportal/internal/buildinfo"
	"github.com/spaceportal/spaceportal/internal/conf"
	"github.com/spaceportal/spaceportal/internal/datastore"
	"github.com/spaceportal/spaceportal/internal/httpclient"
	"github.com/spaceportal/spaceportal/internal/ingest"
	"github.com/spaceportal/spaceportal/internal/logger"
	"github.com/spaceportal/spaceportal/internal/nasa"
	"github.com/spaceportal/spaceportal/internal/observability"
	"github.com/spaceportal/spaceportal/internal/telemetry"
)

const flareEventDescription = "Solar Flare"

// App owns the long-lived components of one process.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Log      *logger.CentralLogger
	Metrics  *observability.Metrics
	Store    datastore.Interface
	Feeds    *nasa.Client
	Assets   *assetcache.Cache
	Service  *ingest.Service

	flushTelemetry func()
}

// Option adjusts App construction. Tests use it to swap the outbound
// transport or the database.
type Option func(*options)

type options struct {
	httpClient *httpclient.Client
	store      datastore.Interface
}

// WithHTTPClient routes feed and asset requests through hc.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithStore uses store instead of the backend named in settings. The store
// must not be opened yet.
func WithStore(store datastore.Interface) Option {
	return func(o *options) { o.store = store }
}

// New builds every component and opens the database. Call Close when done.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	a := &App{Settings: settings, Build: build, Log: central}

	a.flushTelemetry, err = telemetry.Init(settings, build)
	if err != nil {
		_ = central.Close()
		return nil, err
	}

	if a.Metrics, err = observability.NewMetrics(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := a.openStore(ctx, o.store); err != nil {
		a.Close()
		return nil, err
	}

	hc := o.httpClient
	if hc == nil {
		hc = httpclient.New(&httpclient.Config{
			DefaultTimeout: settings.Nasa.Timeout,
			UserAgent:      settings.Nasa.UserAgent,
		})
	}

	hc.SetAfterResponseHook(a.Metrics.Ingest.RecordOutboundResponse)

	a.Feeds = nasa.NewClient(nasa.Config{
		APIKey:    settings.Nasa.APIKey,
		UserAgent: settings.Nasa.UserAgent,
		Timeout:   settings.Nasa.Timeout,
		RateLimit: settings.Nasa.RateLimit,
		Burst:     settings.Nasa.Burst,
		BaseURLs: map[nasa.Feed]string{
			nasa.FeedDONKI: settings.Nasa.DonkiURL,
			nasa.FeedAPOD:  settings.Nasa.ApodURL,
		},
	},
		nasa.WithHTTPClient(hc),
		nasa.WithObserver(a.Metrics.Ingest),
		nasa.WithLogger(central.Module("nasa")))

	a.Assets = assetcache.New(assetcache.Config{
		Root:       settings.Assets.Root,
		Feed:       ingest.FeedImagery,
		DefaultExt: settings.Assets.DefaultExt,
		MaxBytes:   settings.Assets.MaxBytes,
		FailureTTL: settings.Assets.FailureTTL,
	},
		assetcache.WithHTTPClient(hc),
		assetcache.WithObserver(a.Metrics.Ingest),
		assetcache.WithLogger(central.Module("assets")))

	a.Service = ingest.NewService(ingest.Config{
		MaxRecords:        settings.Import.MaxRecords,
		FlareLookbackDays: settings.Import.FlareLookbackDays,
		FlareEventTypeID:  settings.Import.FlareEventTypeID,
		Thumbs:            settings.Import.Thumbs,
		DownloadImages:    settings.Import.DownloadImages,
	}, a.Feeds, a.Store,
		ingest.WithAssetCache(a.Assets),
		ingest.WithRecorder(a.Metrics.Ingest),
		ingest.WithLogger(central.Module("ingest")))

	if !a.Feeds.HasCredential() {
		central.Module("nasa").Warn("no NASA API key configured, imports will fail until nasa.apikey is set")
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context, store datastore.Interface) error {
	if store == nil {
		var err error
		store, err = datastore.New(a.Settings,
			datastore.WithLogger(a.Log.Module("datastore")),
			datastore.WithObserver(a.Metrics.Ingest))
		if err != nil {
			return err
		}
	}
	if err := store.Open(); err != nil {
		return err
	}
	a.Store = store

	eventType := a.Settings.Import.FlareEventTypeID
	if eventType == 0 {
		eventType = 5
	}
	return store.EnsureEventType(ctx, eventType, flareEventDescription)
}

// NewAPIServer returns the HTTP server for the import API.
func (a *App) NewAPIServer() *api.Server {
	return api.NewServer(api.Config{
		Listen:    a.Settings.WebServer.Listen,
		AssetRoot: a.Settings.Assets.Root,
	}, a.Service, a.Log.Module("api"),
		api.WithStats(a.Store),
		api.WithReader(a.Store),
		api.WithAssetRoot(a.Settings.Assets.Root),
		api.WithBuildInfo(a.Build))
}

// NewMetricsEndpoint returns the Prometheus endpoint, or nil when telemetry
// is disabled.
func (a *App) NewMetricsEndpoint() *observability.Endpoint {
	if !a.Settings.Telemetry.Enabled {
		return nil
	}
	return observability.NewEndpoint(a.Settings.Telemetry.Listen, a.Metrics, a.Log.Module("telemetry"))
}

// Close releases the database and flushes logs and telemetry.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Module("datastore").Warn("failed to close database", logger.Error(err))
		}
	}
	if a.flushTelemetry != nil {
		a.flushTelemetry()
	}
	_ = a.Log.Close()
}
