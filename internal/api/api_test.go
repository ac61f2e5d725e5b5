package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceportal/spaceportal/internal/buildinfo"
	"github.com/spaceportal/spaceportal/internal/daterange"
	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/httpclient"
	"github.com/spaceportal/spaceportal/internal/ingest"
	"github.com/spaceportal/spaceportal/internal/logger"
	"github.com/spaceportal/spaceportal/internal/nasa"
)

const testAPIKey = "DEMO-s3cret-9f8e7d"

// fakeImporter records the arguments of the last call.
type fakeImporter struct {
	start, end *time.Time
	rangeStart time.Time
	rangeEnd   time.Time
	calls      int
	result     *ingest.Result
	err        error
}

func (f *fakeImporter) ImportFlares(_ context.Context, start, end *time.Time) (*ingest.Result, error) {
	f.calls++
	f.start, f.end = start, end
	return f.result, f.err
}

func (f *fakeImporter) ImportSingle(_ context.Context, date *time.Time) (*ingest.Result, error) {
	f.calls++
	f.start = date
	return f.result, f.err
}

func (f *fakeImporter) ImportRange(_ context.Context, start, end time.Time) (*ingest.Result, error) {
	f.calls++
	f.rangeStart, f.rangeEnd = start, end
	return f.result, f.err
}

type fakeStats struct {
	events, images int64
	err            error
}

func (f fakeStats) CountSpaceWeatherEvents(context.Context) (int64, error) { return f.events, f.err }
func (f fakeStats) CountDailyImagery(context.Context) (int64, error)       { return f.images, f.err }

func newTestServer(t *testing.T, importer Importer, opts ...ControllerOption) *echo.Echo {
	t.Helper()
	return NewServer(Config{}, importer, nil, opts...).Echo()
}

func do(t *testing.T, e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := daterange.ParseDay(s)
	require.NoError(t, err)
	return d
}

func TestImportFlares_PassesQueryDates(t *testing.T) {
	t.Parallel()

	imp := &fakeImporter{result: &ingest.Result{Feed: ingest.FeedFlares, Inserted: 3, Note: "Import complete."}}
	e := newTestServer(t, imp)

	rec := do(t, e, http.MethodPost, "/api/import/donki/flares?start=2024-01-01&end=2024-01-31")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, imp.start)
	require.NotNil(t, imp.end)
	assert.Equal(t, day(t, "2024-01-01"), *imp.start)
	assert.Equal(t, day(t, "2024-01-31"), *imp.end)

	var res ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, "Import complete.", res.Note)
}

func TestImportFlares_OmittedDatesAreNil(t *testing.T) {
	t.Parallel()

	imp := &fakeImporter{result: &ingest.Result{}}
	e := newTestServer(t, imp)

	rec := do(t, e, http.MethodPost, "/api/import/donki/flares")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, imp.start)
	assert.Nil(t, imp.end)
}

func TestImport_BadQueryIsRejectedBeforeImport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
	}{
		{"flares bad start", "/api/import/donki/flares?start=01/02/2024"},
		{"flares bad end", "/api/import/donki/flares?end=2024-13-01"},
		{"apod bad date", "/api/import/nasa/apod?date=yesterday"},
		{"range missing start", "/api/import/nasa/apod/range?end=2024-01-05"},
		{"range missing end", "/api/import/nasa/apod/range?start=2024-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			imp := &fakeImporter{}
			e := newTestServer(t, imp)

			rec := do(t, e, http.MethodPost, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, imp.calls)

			resp := decodeError(t, rec)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.NotEmpty(t, resp.CorrelationID)
		})
	}
}

func TestHandleError_LogsErrorCategory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := newTestServer(t, &fakeImporter{}, WithLogger(logger.NewSlogLogger(&buf, logger.LogLevelDebug, nil)))

	rec := do(t, e, http.MethodPost, "/api/import/nasa/apod?date=yesterday")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		if rec["msg"] == "API error" {
			entry = rec
		}
	}
	require.NotNil(t, entry, "API error was not logged")
	assert.Equal(t, string(errors.CategoryValidation), entry["category"])
	assert.Equal(t, decodeError(t, rec).CorrelationID, entry["correlation_id"])
}

func TestImportApodRange_PassesBothDates(t *testing.T) {
	t.Parallel()

	imp := &fakeImporter{result: &ingest.Result{Feed: ingest.FeedImagery}}
	e := newTestServer(t, imp)

	rec := do(t, e, http.MethodPost, "/api/import/nasa/apod/range?start=2024-01-01&end=2024-01-05")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, day(t, "2024-01-01"), imp.rangeStart)
	assert.Equal(t, day(t, "2024-01-05"), imp.rangeEnd)
}

func TestImportApod_OmittedDateIsNil(t *testing.T) {
	t.Parallel()

	imp := &fakeImporter{result: &ingest.Result{Feed: ingest.FeedImagery}}
	e := newTestServer(t, imp)

	rec := do(t, e, http.MethodPost, "/api/import/nasa/apod")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, imp.calls)
	assert.Nil(t, imp.start)
}

func TestImport_ErrorStatusMapping(t *testing.T) {
	t.Parallel()

	cancelled := errors.New(context.Canceled).
		Component("ingest").
		Category(errors.CategoryCancellation).
		Build()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid range", errors.New(daterange.ErrInvalidRange).Category(errors.CategoryValidation).Build(), http.StatusBadRequest},
		{"missing credential", errors.New(nasa.ErrMissingCredential).Category(errors.CategoryConfiguration).Build(), http.StatusInternalServerError},
		{"upstream forbidden", &nasa.UpstreamError{Feed: nasa.FeedDONKI, StatusCode: http.StatusForbidden}, http.StatusForbidden},
		{"upstream unreachable", &nasa.UpstreamError{Feed: nasa.FeedDONKI}, http.StatusBadGateway},
		{"upstream malformed", &nasa.UpstreamError{Feed: nasa.FeedAPOD, StatusCode: http.StatusOK}, http.StatusBadGateway},
		{"cancelled", cancelled, http.StatusServiceUnavailable},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newTestServer(t, &fakeImporter{err: tt.err})
			rec := do(t, e, http.MethodPost, "/api/import/donki/flares")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want, decodeError(t, rec).Code)
		})
	}
}

func TestImport_UpstreamErrorNeverLeaksKey(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`.*`),
		func(req *http.Request) (*http.Response, error) {
			body := fmt.Sprintf(`{"error":{"code":"API_KEY_INVALID","message":"key %s rejected"}}`, req.URL.Query().Get("api_key"))
			return httpmock.NewStringResponse(http.StatusForbidden, body), nil
		})

	feeds := nasa.NewClient(nasa.Config{
		APIKey:   testAPIKey,
		BaseURLs: map[nasa.Feed]string{nasa.FeedDONKI: "https://api.nasa.gov/DONKI/", nasa.FeedAPOD: "https://api.nasa.gov/"},
	}, nasa.WithHTTPClient(httpclient.New(&httpclient.Config{Transport: transport})))
	svc := ingest.NewService(ingest.Config{}, feeds, nil)

	e := newTestServer(t, svc)
	rec := do(t, e, http.MethodPost, "/api/import/donki/flares?start=2024-01-01&end=2024-01-31")

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), testAPIKey)

	resp := decodeError(t, rec)
	assert.Equal(t, http.StatusForbidden, resp.UpstreamStatus)
	assert.Contains(t, resp.URL, "api_key=***")
	assert.Contains(t, resp.URL, "startDate=2024-01-01")
	assert.Contains(t, resp.Body, "API_KEY_INVALID")
}

func TestImport_MissingKeyIsServerError(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	feeds := nasa.NewClient(nasa.Config{
		BaseURLs: map[nasa.Feed]string{nasa.FeedAPOD: "https://api.nasa.gov/"},
	}, nasa.WithHTTPClient(httpclient.New(&httpclient.Config{Transport: transport})))
	svc := ingest.NewService(ingest.Config{}, feeds, nil)

	e := newTestServer(t, svc)
	rec := do(t, e, http.MethodPost, "/api/import/nasa/apod?date=2024-03-05")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, transport.GetTotalCallCount())
	assert.Contains(t, decodeError(t, rec).Message, "API key")
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	t.Run("without stats", func(t *testing.T) {
		t.Parallel()
		e := newTestServer(t, &fakeImporter{}, WithBuildInfo(&buildinfo.Context{Version: "1.4.0"}))

		rec := do(t, e, http.MethodGet, "/api/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "1.4.0", resp.Version)
		assert.Nil(t, resp.SpaceWeather)
	})

	t.Run("with stats", func(t *testing.T) {
		t.Parallel()
		e := newTestServer(t, &fakeImporter{}, WithStats(fakeStats{events: 12, images: 4}))

		rec := do(t, e, http.MethodGet, "/api/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.SpaceWeather)
		require.NotNil(t, resp.DailyImagery)
		assert.Equal(t, int64(12), *resp.SpaceWeather)
		assert.Equal(t, int64(4), *resp.DailyImagery)
		assert.Equal(t, "unknown", resp.Version)
	})

	t.Run("database down", func(t *testing.T) {
		t.Parallel()
		e := newTestServer(t, &fakeImporter{}, WithStats(fakeStats{err: fmt.Errorf("database is locked")}))

		rec := do(t, e, http.MethodGet, "/api/health")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "degraded")
	})
}

func TestImport_GetIsNotAllowed(t *testing.T) {
	t.Parallel()

	imp := &fakeImporter{}
	e := newTestServer(t, imp)

	rec := do(t, e, http.MethodGet, "/api/import/donki/flares")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, imp.calls)
}
