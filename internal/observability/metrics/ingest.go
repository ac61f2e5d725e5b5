package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for feed imports
type IngestMetrics struct {
	importsTotal          *prometheus.CounterVec
	cappedImportsTotal    *prometheus.CounterVec
	recordsTotal          *prometheus.CounterVec
	upstreamRequestsTotal *prometheus.CounterVec
	fetchDuration         *prometheus.HistogramVec
	assetFetchesTotal     *prometheus.CounterVec
	outboundTotal         *prometheus.CounterVec
	upsertDuration        *prometheus.HistogramVec
}

// NewIngestMetrics creates the collectors and registers them on registry.
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IngestMetrics) initMetrics() {
	m.importsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceportal_imports_total",
			Help: "Total number of import runs",
		},
		[]string{"feed", "status"},
	)

	m.cappedImportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceportal_imports_capped_total",
			Help: "Import runs whose upstream response exceeded the record cap",
		},
		[]string{"feed"},
	)

	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceportal_records_total",
			Help: "Records processed by outcome",
		},
		[]string{"feed", "outcome"}, // inserted, updated, skipped, failed
	)

	m.upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceportal_upstream_requests_total",
			Help: "Requests sent to NASA feeds by response status code",
		},
		[]string{"feed", "status_code"}, // status_code 0 is a transport failure
	)

	m.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spaceportal_fetch_duration_seconds",
			Help:    "Time taken to fetch one feed window",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
		},
		[]string{"feed"},
	)

	m.assetFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceportal_asset_fetches_total",
			Help: "Asset cache download attempts by status",
		},
		[]string{"status"}, // success, error, suppressed
	)

	m.outboundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaceportal_outbound_responses_total",
			Help: "Outbound HTTP responses by host and status code",
		},
		[]string{"host", "status_code"}, // status_code 0 is a transport failure
	)

	m.upsertDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spaceportal_upsert_duration_seconds",
			Help:    "Time taken to upsert one record",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		},
		[]string{"entity"},
	)
}

// Describe implements the Collector interface
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.importsTotal.Describe(ch)
	m.cappedImportsTotal.Describe(ch)
	m.recordsTotal.Describe(ch)
	m.upstreamRequestsTotal.Describe(ch)
	m.fetchDuration.Describe(ch)
	m.assetFetchesTotal.Describe(ch)
	m.outboundTotal.Describe(ch)
	m.upsertDuration.Describe(ch)
}

// Collect implements the Collector interface
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	m.importsTotal.Collect(ch)
	m.cappedImportsTotal.Collect(ch)
	m.recordsTotal.Collect(ch)
	m.upstreamRequestsTotal.Collect(ch)
	m.fetchDuration.Collect(ch)
	m.assetFetchesTotal.Collect(ch)
	m.outboundTotal.Collect(ch)
	m.upsertDuration.Collect(ch)
}

// The Record helpers accept a nil receiver so components can run without
// metrics.

func (m *IngestMetrics) RecordImport(feed, status string, capped bool) {
	if m == nil {
		return
	}
	m.importsTotal.WithLabelValues(feed, status).Inc()
	if capped {
		m.cappedImportsTotal.WithLabelValues(feed).Inc()
	}
}

func (m *IngestMetrics) RecordRecords(feed, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsTotal.WithLabelValues(feed, outcome).Add(float64(n))
}

func (m *IngestMetrics) RecordUpstreamRequest(feed string, statusCode int) {
	if m == nil {
		return
	}
	m.upstreamRequestsTotal.WithLabelValues(feed, strconv.Itoa(statusCode)).Inc()
}

func (m *IngestMetrics) RecordFetchDuration(feed string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(feed).Observe(d.Seconds())
}

func (m *IngestMetrics) RecordAssetFetch(status string) {
	if m == nil {
		return
	}
	m.assetFetchesTotal.WithLabelValues(status).Inc()
}

func (m *IngestMetrics) RecordUpsertDuration(entity string, d time.Duration) {
	if m == nil {
		return
	}
	m.upsertDuration.WithLabelValues(entity).Observe(d.Seconds())
}

// RecordOutboundResponse counts one outbound request by host. Its signature
// matches httpclient.Client.SetAfterResponseHook.
func (m *IngestMetrics) RecordOutboundResponse(req *http.Request, resp *http.Response, err error) {
	if m == nil || req == nil || req.URL == nil {
		return
	}
	status := 0
	if err == nil && resp != nil {
		status = resp.StatusCode
	}
	m.outboundTotal.WithLabelValues(req.URL.Host, strconv.Itoa(status)).Inc()
}
