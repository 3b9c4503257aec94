// Package telemetry defines the read-only contract shared by every
// telemetry backend and the error taxonomy those backends report.
package telemetry

import (
	"context"

	"otelbridge/internal/models"
)

// Backend is the capability set a concrete telemetry backend exposes.
//
// Concrete backends implement it directly and assert conformance at compile
// time. Callers hold the closed dispatcher in package backend instead of this
// interface, so adding a backend kind is a new variant plus a switch arm.
//
// Query methods take the query by pointer and must not mutate it.
type Backend interface {
	// HealthCheck verifies the backend is reachable and accepts our credentials.
	HealthCheck(ctx context.Context) error

	// ListServices returns the services known to the backend.
	ListServices(ctx context.Context) ([]models.ServiceInfo, error)

	QueryTraces(ctx context.Context, q *models.TraceQuery) (models.QueryResult[models.Span], error)
	QueryMetrics(ctx context.Context, q *models.MetricQuery) (models.QueryResult[models.MetricSeries], error)
	QueryLogs(ctx context.Context, q *models.LogQuery) (models.QueryResult[models.LogEntry], error)

	// DisplayName is a label for status text, e.g. "SigNoz @ http://localhost:3301".
	// It is never used for protocol decisions.
	DisplayName() string
}
