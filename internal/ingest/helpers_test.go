package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/spaceportal/spaceportal/internal/assetcache"
	"github.com/spaceportal/spaceportal/internal/conf"
	"github.com/spaceportal/spaceportal/internal/datastore"
	"github.com/spaceportal/spaceportal/internal/httpclient"
	"github.com/spaceportal/spaceportal/internal/nasa"
)

const (
	testAPIKey = "DEMO-s3cret-9f8e7d"
	donkiURL   = "https://api.nasa.gov/DONKI/FLR"
	apodURL    = "https://api.nasa.gov/planetary/apod"
	assetRoot  = "/srv/wwwroot"
)

var testNow = time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

type harness struct {
	svc       *Service
	store     datastore.Interface
	transport *httpmock.MockTransport
	fs        afero.Fs
	recorder  *fakeRecorder
}

type harnessOptions struct {
	apiKey  string
	cfg     Config
	wrap    func(Store) Store
	noAsset bool
}

func newHarness(t *testing.T, mutate ...func(*harnessOptions)) *harness {
	t.Helper()

	opts := harnessOptions{
		apiKey: testAPIKey,
		cfg: Config{
			MaxRecords:        DefaultMaxRecords,
			FlareLookbackDays: 30,
			FlareEventTypeID:  5,
			Thumbs:            true,
			DownloadImages:    true,
		},
	}
	for _, m := range mutate {
		m(&opts)
	}

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"
	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	transport := httpmock.NewMockTransport()
	hc := httpclient.New(&httpclient.Config{Transport: transport})

	feeds := nasa.NewClient(nasa.Config{
		APIKey: opts.apiKey,
		BaseURLs: map[nasa.Feed]string{
			nasa.FeedDONKI: "https://api.nasa.gov/DONKI/",
			nasa.FeedAPOD:  "https://api.nasa.gov/",
		},
	}, nasa.WithHTTPClient(hc))

	fs := afero.NewMemMapFs()
	recorder := &fakeRecorder{}
	var target Store = store
	if opts.wrap != nil {
		target = opts.wrap(store)
	}

	svcOpts := []Option{WithClock(func() time.Time { return testNow }), WithRecorder(recorder)}
	if !opts.noAsset {
		assets := assetcache.New(assetcache.Config{Root: assetRoot, Feed: "apod"},
			assetcache.WithFs(fs), assetcache.WithHTTPClient(hc))
		svcOpts = append(svcOpts, WithAssetCache(assets))
	}

	return &harness{
		svc:       NewService(opts.cfg, feeds, target, svcOpts...),
		store:     store,
		transport: transport,
		fs:        fs,
		recorder:  recorder,
	}
}

func (h *harness) respondFlares(status int, body string) {
	h.transport.RegisterResponder("GET", donkiURL, httpmock.NewStringResponder(status, body))
}

func (h *harness) respondApod(status int, body string) {
	h.transport.RegisterResponder("GET", apodURL, httpmock.NewStringResponder(status, body))
}

func (h *harness) respondAsset(url string, status int, body string) {
	h.transport.RegisterResponder("GET", url, httpmock.NewStringResponder(status, body))
}

func (h *harness) calls(method, url string) int {
	return h.transport.GetCallCountInfo()[method+" "+url]
}

func flareJSON(id, peak, class string) string {
	return fmt.Sprintf(`{"flrID":%q,"beginTime":"2024-05-01T10:00Z","peakTime":%q,"endTime":"2024-05-01T10:40Z","classType":%q,"sourceLocation":"S18W62","activeRegionNum":13664,"link":"https://kauai.ccmc.gsfc.nasa.gov/DONKI/view/FLR/1/-1"}`,
		id, peak, class)
}

func flaresJSON(n int) string {
	items := make([]string, n)
	for i := range n {
		items[i] = flareJSON(fmt.Sprintf("2024-05-01T10:00:00-FLR-%05d", i), "2024-05-01T10:20Z", "M1.2")
	}
	return "[" + strings.Join(items, ",") + "]"
}

type fakeRecorder struct {
	mu       sync.Mutex
	statuses []string
	records  map[string]int
}

func (f *fakeRecorder) RecordImport(_, status string, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func (f *fakeRecorder) RecordRecords(_, outcome string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		f.records = map[string]int{}
	}
	f.records[outcome] += n
}

// hookStore fails the keys in failKeys and calls after once each other
// upsert has committed.
type hookStore struct {
	Store
	after    func()
	failKeys map[string]bool
}

func (h *hookStore) UpsertSpaceWeatherEvent(ctx context.Context, ev *datastore.SpaceWeatherEvent) (datastore.Outcome, error) {
	if h.failKeys[ev.ExternalID] {
		return datastore.OutcomeNone, fmt.Errorf("disk I/O error")
	}
	outcome, err := h.Store.UpsertSpaceWeatherEvent(ctx, ev)
	if h.after != nil {
		h.after()
	}
	return outcome, err
}

func (h *hookStore) UpsertDailyImagery(ctx context.Context, e *datastore.DailyImageryEntry) (datastore.Outcome, error) {
	if h.failKeys[e.Date] {
		return datastore.OutcomeNone, fmt.Errorf("disk I/O error")
	}
	outcome, err := h.Store.UpsertDailyImagery(ctx, e)
	if h.after != nil {
		h.after()
	}
	return outcome, err
}

func httpmockJSON(status int, body string) *http.Response {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")
	return resp
}
