// Package metrics defines the Prometheus collectors for feed ingestion.
package metrics

// Histogram bucket layouts.
const (
	// BucketStart1ms starts 1ms..~0.5s buckets, for database upserts
	BucketStart1ms = 0.001
	// BucketStart100ms starts 100ms..~50s buckets, for upstream fetches
	BucketStart100ms = 0.1

	BucketFactor2 = 2
	BucketCount10 = 10
)

// Record outcomes used as label values.
const (
	OutcomeInserted = "inserted"
	OutcomeUpdated  = "updated"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Import and asset statuses used as label values.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusCancelled  = "cancelled"
	StatusSuppressed = "suppressed"
)
