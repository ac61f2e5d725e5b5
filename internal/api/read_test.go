package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceportal/spaceportal/internal/conf"
	"github.com/spaceportal/spaceportal/internal/datastore"
)

func newReadStore(t *testing.T) datastore.Interface {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"

	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedImagery(t *testing.T, store datastore.Interface, dates ...string) {
	t.Helper()
	for _, d := range dates {
		_, err := store.UpsertDailyImagery(t.Context(), &datastore.DailyImageryEntry{
			Date:      d,
			Title:     "Picture of " + d,
			MediaType: "image",
			URL:       "https://apod.nasa.gov/apod/image/" + d + ".jpg",
		})
		require.NoError(t, err)
	}
}

func newReadServer(t *testing.T, store datastore.Interface, today time.Time) *echo.Echo {
	t.Helper()
	return newTestServer(t, &fakeImporter{}, WithReader(store), WithClock(func() time.Time { return today }))
}

func decodeEntry(t *testing.T, body []byte) datastore.DailyImageryEntry {
	t.Helper()
	var entry datastore.DailyImageryEntry
	require.NoError(t, json.Unmarshal(body, &entry))
	return entry
}

func TestGetApodToday(t *testing.T) {
	t.Parallel()

	store := newReadStore(t)
	seedImagery(t, store, "2024-03-01", "2024-03-03", "2024-03-09")
	// late in the day UTC; a future-dated entry must not be served
	e := newReadServer(t, store, time.Date(2024, 3, 5, 23, 30, 0, 0, time.UTC))

	rec := do(t, e, http.MethodGet, "/api/apod/today")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-03-03", decodeEntry(t, rec.Body.Bytes()).Date)

	seedImagery(t, store, "2024-03-05")
	rec = do(t, e, http.MethodGet, "/api/apod/today")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-03-05", decodeEntry(t, rec.Body.Bytes()).Date)
}

func TestGetApodToday_EmptyStore(t *testing.T) {
	t.Parallel()

	e := newReadServer(t, newReadStore(t), time.Now())
	rec := do(t, e, http.MethodGet, "/api/apod/today")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decodeError(t, rec).Code)
}

func TestGetApodByDate(t *testing.T) {
	t.Parallel()

	store := newReadStore(t)
	seedImagery(t, store, "2024-03-05")
	e := newReadServer(t, store, time.Now())

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"stored", "/api/apod/2024-03-05", http.StatusOK},
		{"absent", "/api/apod/2024-03-06", http.StatusNotFound},
		{"malformed", "/api/apod/05-03-2024", http.StatusBadRequest},
		{"impossible", "/api/apod/2024-02-30", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodGet, tt.target)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusOK {
				entry := decodeEntry(t, rec.Body.Bytes())
				assert.Equal(t, "2024-03-05", entry.Date)
				assert.Equal(t, "Picture of 2024-03-05", entry.Title)
			}
		})
	}
}

func TestGetApodRecent(t *testing.T) {
	t.Parallel()

	store := newReadStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]string, 0, 120)
	for i := range 120 {
		dates = append(dates, start.AddDate(0, 0, i).Format("2006-01-02"))
	}
	seedImagery(t, store, dates...)
	e := newReadServer(t, store, time.Now())

	tests := []struct {
		name      string
		query     string
		wantCount int
	}{
		{"default", "", 30},
		{"explicit", "?limit=5", 5},
		{"clamped high", "?limit=500", 100},
		{"clamped zero", "?limit=0", 1},
		{"clamped negative", "?limit=-3", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodGet, "/api/apod/recent"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var entries []datastore.DailyImageryEntry
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
			require.Len(t, entries, tt.wantCount)
			assert.Equal(t, dates[len(dates)-1], entries[0].Date, "newest first")
			for i := 1; i < len(entries); i++ {
				assert.Greater(t, entries[i-1].Date, entries[i].Date)
			}
		})
	}

	rec := do(t, e, http.MethodGet, "/api/apod/recent?limit=ten")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetApodRecent_EmptyStoreIsEmptyArray(t *testing.T) {
	t.Parallel()

	e := newReadServer(t, newReadStore(t), time.Now())
	rec := do(t, e, http.MethodGet, "/api/apod/recent")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetFlare(t *testing.T) {
	t.Parallel()

	store := newReadStore(t)
	require.NoError(t, store.EnsureEventType(t.Context(), 5, "Solar Flare"))
	peak := time.Date(2024, 1, 1, 0, 12, 0, 0, time.UTC)
	_, err := store.UpsertSpaceWeatherEvent(t.Context(), &datastore.SpaceWeatherEvent{
		EventTypeID: 5,
		ExternalID:  "2024-01-01T00:00:00-FLR-001",
		Name:        "M1.0 Flare",
		Description: "M1.0",
		OccurredAt:  &peak,
	})
	require.NoError(t, err)
	e := newReadServer(t, store, time.Now())

	rec := do(t, e, http.MethodGet, "/api/donki/flares/2024-01-01T00:00:00-FLR-001")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var event datastore.SpaceWeatherEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.Equal(t, "M1.0 Flare", event.Name)

	rec = do(t, e, http.MethodGet, "/api/donki/flares/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadRoutesAbsentWithoutReader(t *testing.T) {
	t.Parallel()

	e := newTestServer(t, &fakeImporter{})
	rec := do(t, e, http.MethodGet, "/api/apod/today")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
