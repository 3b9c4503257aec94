package telemetry

import (
	"math"

	"otelbridge/internal/models"
)

// MaxDurationMs is the largest duration filter whose nanosecond form fits in
// a uint64.
const MaxDurationMs uint64 = math.MaxUint64 / 1_000_000

// ValidateTraceQuery rejects duration filters that would overflow once
// converted to nanoseconds. Backends call it before building a query.
func ValidateTraceQuery(q *models.TraceQuery) error {
	if q.MinDurationMs != nil && *q.MinDurationMs > MaxDurationMs {
		return InvalidQuery("min_duration_ms %d exceeds %d", *q.MinDurationMs, MaxDurationMs)
	}
	if q.MaxDurationMs != nil && *q.MaxDurationMs > MaxDurationMs {
		return InvalidQuery("max_duration_ms %d exceeds %d", *q.MaxDurationMs, MaxDurationMs)
	}
	return nil
}
