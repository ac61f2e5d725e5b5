package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceportal/spaceportal/internal/buildinfo"
	"github.com/spaceportal/spaceportal/internal/conf"
	"github.com/spaceportal/spaceportal/internal/datastore"
	"github.com/spaceportal/spaceportal/internal/httpclient"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	s := &conf.Settings{}
	s.Nasa.APIKey = "DEMO-s3cret-9f8e7d"
	s.Nasa.DonkiURL = "https://api.nasa.gov/DONKI/"
	s.Nasa.ApodURL = "https://api.nasa.gov/"
	s.Import.MaxRecords = 1000
	s.Import.FlareEventTypeID = 5
	s.Import.Thumbs = true
	s.Import.DownloadImages = true
	s.Assets.Root = t.TempDir()
	s.Assets.DefaultExt = ".jpg"
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = filepath.Join(t.TempDir(), "spaceportal.db")
	s.WebServer.Listen = "127.0.0.1:0"
	s.Telemetry.Listen = "127.0.0.1:0"
	s.Logging.DefaultLevel = "error"
	return s
}

func newTestApp(t *testing.T, settings *conf.Settings) (*App, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	a, err := New(t.Context(), settings, &buildinfo.Context{Version: "test"},
		WithHTTPClient(httpclient.New(&httpclient.Config{Transport: transport})))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, transport
}

func TestNew_ImportsThroughWiredComponents(t *testing.T) {
	settings := testSettings(t)
	a, transport := newTestApp(t, settings)

	transport.RegisterResponder(http.MethodGet, "https://api.nasa.gov/planetary/apod",
		httpmock.NewStringResponder(http.StatusOK, `{
			"date": "2024-03-05",
			"title": "Comet over the ridge",
			"explanation": "A long exposure.",
			"media_type": "image",
			"url": "https://apod.nasa.gov/apod/image/2403/comet_small.jpg",
			"hdurl": "https://apod.nasa.gov/apod/image/2403/comet.jpg"
		}`))
	transport.RegisterResponder(http.MethodGet, "https://apod.nasa.gov/apod/image/2403/comet.jpg",
		httpmock.NewBytesResponder(http.StatusOK, []byte("\xff\xd8\xff\xe0jpeg")))

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	res, err := a.Service.ImportSingle(t.Context(), &day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.AssetsCached)

	entry, err := a.Store.GetDailyImagery(t.Context(), "2024-03-05")
	require.NoError(t, err)
	require.NotNil(t, entry.LocalPath)
	assert.Equal(t, "/apod/2024/03/20240305.jpg", *entry.LocalPath)
	assert.FileExists(t, filepath.Join(settings.Assets.Root, "apod", "2024", "03", "20240305.jpg"))

	assert.Positive(t, testutil.CollectAndCount(a.Metrics.Ingest), "metrics were recorded")
	assert.Equal(t, 2, testutil.CollectAndCount(a.Metrics.Ingest, "spaceportal_outbound_responses_total"),
		"one outbound series per host")
}

func TestNew_ServesCachedAssetsAndHealth(t *testing.T) {
	settings := testSettings(t)
	a, _ := newTestApp(t, settings)

	dir := filepath.Join(settings.Assets.Root, "apod", "2024", "03")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20240305.jpg"), []byte("jpeg"), 0o644))

	e := a.NewAPIServer().Echo()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/apod/2024/03/20240305.jpg", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
	assert.Contains(t, rec.Body.String(), `"space_weather_events":0`)
	assert.Contains(t, rec.Body.String(), `"asset_disk"`)
}

func TestNew_FlareEventTypeIsSeeded(t *testing.T) {
	settings := testSettings(t)
	a, transport := newTestApp(t, settings)

	transport.RegisterResponder(http.MethodGet, "https://api.nasa.gov/DONKI/FLR",
		httpmock.NewStringResponder(http.StatusOK, `[{"flrID":"2024-01-01T00:00:00-FLR-001","classType":"M1.0","beginTime":"2024-01-01T00:00Z","peakTime":"2024-01-01T00:12Z"}]`))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	res, err := a.Service.ImportFlares(t.Context(), &start, &end)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	n, err := a.Store.CountSpaceWeatherEvents(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewMetricsEndpoint(t *testing.T) {
	settings := testSettings(t)
	a, _ := newTestApp(t, settings)
	assert.Nil(t, a.NewMetricsEndpoint())

	settings.Telemetry.Enabled = true
	assert.NotNil(t, a.NewMetricsEndpoint())
}

func TestNew_WithStore(t *testing.T) {
	settings := testSettings(t)
	store, err := datastore.New(settings)
	require.NoError(t, err)

	a, err := New(t.Context(), settings, nil, WithStore(store),
		WithHTTPClient(httpclient.New(&httpclient.Config{Transport: httpmock.NewMockTransport()})))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Same(t, store, a.Store)
	n, err := a.Store.CountDailyImagery(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNew_NoBackendEnabled(t *testing.T) {
	settings := testSettings(t)
	settings.Output.SQLite.Enabled = false

	_, err := New(t.Context(), settings, nil)
	require.Error(t, err)
}
