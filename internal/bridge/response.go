package bridge

import "otelbridge/internal/models"

// ResponseKind tags which payload of a Response is set.
type ResponseKind int

const (
	HealthOK ResponseKind = iota
	HealthError
	Traces
	TracesError
	Logs
	LogsError
	Metrics
	MetricsError
	Services
	ServicesError
)

func (k ResponseKind) String() string {
	switch k {
	case HealthOK:
		return "health_ok"
	case HealthError:
		return "health_error"
	case Traces:
		return "traces"
	case TracesError:
		return "traces_error"
	case Logs:
		return "logs"
	case LogsError:
		return "logs_error"
	case Metrics:
		return "metrics"
	case MetricsError:
		return "metrics_error"
	case Services:
		return "services"
	case ServicesError:
		return "services_error"
	default:
		return "unknown"
	}
}

// IsError reports whether the response carries an error message.
func (k ResponseKind) IsError() bool {
	switch k {
	case HealthError, TracesError, LogsError, MetricsError, ServicesError:
		return true
	}
	return false
}

// MarshalText lets responses serialize the kind by name.
func (k ResponseKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Response is the result of exactly one request. RequestID is empty for
// responses the worker emits on its own, such as a failed login.
type Response struct {
	RequestID string                `json:"request_id,omitempty"`
	Kind      ResponseKind          `json:"kind"`
	Spans     []models.Span         `json:"spans,omitempty"`
	Logs      []models.LogEntry     `json:"logs,omitempty"`
	Series    []models.MetricSeries `json:"series,omitempty"`
	Services  []models.ServiceInfo  `json:"services,omitempty"`
	Err       string                `json:"error,omitempty"`
}

// ConnectionStatus is the last known state of the backend.
type ConnectionStatus int32

const (
	StatusUnknown ConnectionStatus = iota
	StatusConnected
	StatusDisconnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets status serialize by name.
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
