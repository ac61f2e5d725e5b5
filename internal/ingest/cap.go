package ingest

// Cap returns the first limit records in arrival order and reports whether
// any were dropped. limit <= 0 disables the cap.
func Cap[T any](records []T, limit int) ([]T, bool) {
	if limit <= 0 || len(records) <= limit {
		return records, false
	}
	return records[:limit], true
}
