package nasa

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaceportal/spaceportal/internal/daterange"
	"github.com/spaceportal/spaceportal/internal/errors"
	"github.com/spaceportal/spaceportal/internal/httpclient"
)

const (
	testKey   = "s3cr3t-KEY+/="
	donkiBase = "https://api.nasa.gov/DONKI/"
	apodBase  = "https://api.nasa.gov/"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
	timings  int
}

func (o *recordingObserver) RecordUpstreamRequest(_ string, code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, code)
}

func (o *recordingObserver) RecordFetchDuration(string, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timings++
}

// newTestClient returns a client wired to an httpmock transport.
func newTestClient(t *testing.T, mutate ...func(*Config)) (*Client, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	cfg := Config{
		APIKey:   testKey,
		BaseURLs: map[Feed]string{FeedDONKI: donkiBase, FeedAPOD: apodBase},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	hc := httpclient.New(&httpclient.Config{Transport: transport})
	return NewClient(cfg, WithHTTPClient(hc)), transport
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	client, transport := newTestClient(t)
	var got *http.Request
	transport.RegisterResponder(http.MethodGet, donkiBase+PathFlares,
		func(req *http.Request) (*http.Response, error) {
			got = req
			return httpmock.NewStringResponse(http.StatusOK, `[{"flrID":"X"}]`), nil
		})

	w := daterange.Window{Start: mustDay(t, "2024-01-01"), End: mustDay(t, "2024-01-31")}
	resp, err := client.FetchFlares(t.Context(), w)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"flrID":"X"}]`, string(resp.Body))

	require.NotNil(t, got)
	q := got.URL.Query()
	assert.Equal(t, "2024-01-01", q.Get("startDate"))
	assert.Equal(t, "2024-01-31", q.Get("endDate"))
	assert.Equal(t, testKey, q.Get("api_key"))
	assert.Equal(t, httpclient.DefaultUserAgent, got.Header.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))

	assert.NotContains(t, resp.URL, "s3cr3t")
	assert.Contains(t, resp.URL, "api_key=")
}

func TestFetch_ApodParams(t *testing.T) {
	t.Parallel()

	client, transport := newTestClient(t)
	var query string
	transport.RegisterResponder(http.MethodGet, apodBase+PathApod,
		func(req *http.Request) (*http.Response, error) {
			query = req.URL.RawQuery
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})

	_, err := client.FetchApodDay(t.Context(), mustDay(t, "2024-03-05"), true)
	require.NoError(t, err)
	assert.Contains(t, query, "date=2024-03-05")
	assert.Contains(t, query, "thumbs=true")

	w := daterange.Window{Start: mustDay(t, "2024-03-01"), End: mustDay(t, "2024-03-05")}
	_, err = client.FetchApodRange(t.Context(), w, false)
	require.NoError(t, err)
	assert.Contains(t, query, "start_date=2024-03-01")
	assert.Contains(t, query, "end_date=2024-03-05")
	assert.Contains(t, query, "thumbs=false")
}

func TestFetch_MissingCredential(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"", "   "} {
		client, transport := newTestClient(t, func(c *Config) { c.APIKey = key })

		_, err := client.Fetch(t.Context(), FeedDONKI, PathFlares, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingCredential)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		assert.Zero(t, transport.GetTotalCallCount(), "no request may be sent without a key")
	}
}

func TestFetch_UnknownFeed(t *testing.T) {
	t.Parallel()

	client, transport := newTestClient(t)
	_, err := client.Fetch(t.Context(), Feed("cme"), "CME", nil)

	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestFetch_NonSuccessStatusIsRedacted(t *testing.T) {
	t.Parallel()

	statuses := []int{
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	}

	for _, status := range statuses {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			t.Parallel()

			client, transport := newTestClient(t)
			// upstream error pages commonly echo the request
			body := fmt.Sprintf(`{"error":{"code":"API_KEY_INVALID","message":"key %s rejected"}}`, testKey)
			transport.RegisterResponder(http.MethodGet, donkiBase+PathFlares,
				httpmock.NewStringResponder(status, body))

			_, err := client.Fetch(t.Context(), FeedDONKI, PathFlares, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUpstreamUnavailable)
			assert.True(t, errors.IsCategory(err, errors.CategoryUpstream))

			var ue *UpstreamError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, status, ue.StatusCode)
			assert.Equal(t, FeedDONKI, ue.Feed)
			assert.Contains(t, ue.Body, "API_KEY_INVALID")

			for _, text := range []string{err.Error(), ue.URL, ue.Body} {
				assert.NotContains(t, text, testKey)
				assert.NotContains(t, text, "s3cr3t")
			}
		})
	}
}

func TestFetch_TransportErrorIsRedacted(t *testing.T) {
	t.Parallel()

	client, transport := newTestClient(t)
	transport.RegisterResponder(http.MethodGet, apodBase+PathApod,
		httpmock.NewErrorResponder(fmt.Errorf("dial tcp: lookup api.nasa.gov?api_key=%s: no such host", testKey)))

	_, err := client.Fetch(t.Context(), FeedAPOD, PathApod, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Zero(t, ue.StatusCode)
	assert.NotContains(t, err.Error(), "s3cr3t")
	assert.NotContains(t, ue.URL, "s3cr3t")
}

func TestFetch_ObserverRecordsStatus(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, donkiBase+PathFlares,
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	obs := &recordingObserver{}
	client := NewClient(Config{
		APIKey:   testKey,
		BaseURLs: map[Feed]string{FeedDONKI: donkiBase},
	}, WithHTTPClient(httpclient.New(&httpclient.Config{Transport: transport})), WithObserver(obs))

	_, err := client.Fetch(t.Context(), FeedDONKI, PathFlares, nil)
	require.Error(t, err)
	assert.Equal(t, []int{http.StatusBadGateway}, obs.statuses)
	assert.Equal(t, 1, obs.timings)
}

func TestFetch_CancelledWhileThrottled(t *testing.T) {
	t.Parallel()

	client, transport := newTestClient(t, func(c *Config) {
		c.RateLimit = 0.001
		c.Burst = 1
	})
	transport.RegisterResponder(http.MethodGet, donkiBase+PathFlares,
		httpmock.NewStringResponder(http.StatusOK, "[]"))

	_, err := client.Fetch(t.Context(), FeedDONKI, PathFlares, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = client.Fetch(ctx, FeedDONKI, PathFlares, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestRedact(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	out := client.Redact("https://api.nasa.gov/x?api_key=" + testKey)
	assert.False(t, strings.Contains(out, testKey))
}

func TestMalformed(t *testing.T) {
	t.Parallel()

	ue := Malformed(&Response{StatusCode: http.StatusOK, URL: "https://api.nasa.gov/FLR?api_key=***"},
		FeedDONKI, errors.NewStd("expected a JSON array"))
	assert.ErrorIs(t, ue, ErrUpstreamUnavailable)
	assert.Equal(t, "donki feed returned malformed payload: expected a JSON array", ue.Error())
}

func TestMalformed_EchoesRedactedBody(t *testing.T) {
	t.Parallel()

	client, transport := newTestClient(t)
	body := `{"note":"key ` + testKey + ` accepted"}` + strings.Repeat("y", 2*maxErrorBodyBytes)
	transport.RegisterResponder(http.MethodGet, donkiBase+PathFlares,
		httpmock.NewStringResponder(http.StatusOK, body))

	resp, err := client.Fetch(t.Context(), FeedDONKI, PathFlares, nil)
	require.NoError(t, err)

	ue := Malformed(resp, FeedDONKI, errors.NewStd("expected a JSON array"))
	assert.Equal(t, http.StatusOK, ue.StatusCode)
	assert.True(t, strings.HasPrefix(ue.Body, `{"note":"key *** accepted"}`), ue.Body)
	assert.NotContains(t, ue.Body, "s3cr3t")
	assert.LessOrEqual(t, len(ue.Body), maxErrorBodyBytes)
}

func TestFetch_ErrorBodyRedactedBeforeTruncation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix int
	}{
		{"key straddles limit", maxErrorBodyBytes - 6},
		{"key ends at limit", maxErrorBodyBytes - len(testKey)},
		{"key starts at limit", maxErrorBodyBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, transport := newTestClient(t)
			body := strings.Repeat("x", tt.prefix) + testKey + strings.Repeat("x", 64)
			transport.RegisterResponder(http.MethodGet, donkiBase+PathFlares,
				httpmock.NewStringResponder(http.StatusForbidden, body))

			_, err := client.Fetch(t.Context(), FeedDONKI, PathFlares, nil)
			require.Error(t, err)

			var ue *UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.NotContains(t, ue.Body, "s3cr3t")
			assert.LessOrEqual(t, len(ue.Body), maxErrorBodyBytes)
		})
	}
}

func TestErrorBody_CutsOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// the 3-byte rune straddles the limit
	body := []byte(strings.Repeat("a", maxErrorBodyBytes-1) + "☀tail")
	out := errorBody(body, nil)
	assert.True(t, utf8.ValidString(out))
	assert.Len(t, out, maxErrorBodyBytes-1)
}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := daterange.ParseDay(s)
	require.NoError(t, err)
	return d
}
