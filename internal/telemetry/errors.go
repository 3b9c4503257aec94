package telemetry

import (
	"errors"
	"fmt"
)

// Kind classifies a telemetry failure.
type Kind int

const (
	// KindHTTP is a transport-level failure (connection refused, timeout, broken body).
	KindHTTP Kind = iota + 1
	// KindAPI is a non-2xx response that is not an authentication failure.
	KindAPI
	// KindDeserialization is a response body that could not be decoded.
	KindDeserialization
	// KindConnectionFailed is a construction-time misconfiguration.
	KindConnectionFailed
	// KindAuthenticationFailed is a 401 or 403 response.
	KindAuthenticationFailed
	// KindInvalidQuery is a caller-supplied query the backend cannot express.
	KindInvalidQuery
	// KindBackend is an error payload reported by the backend inside a 2xx envelope.
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindAPI:
		return "api"
	case KindDeserialization:
		return "deserialization"
	case KindConnectionFailed:
		return "connection_failed"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindInvalidQuery:
		return "invalid_query"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by backends.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// Sentinels for errors.Is; they compare by Kind only.
var (
	ErrHTTP                 = &Error{Kind: KindHTTP}
	ErrAPI                  = &Error{Kind: KindAPI}
	ErrDeserialization      = &Error{Kind: KindDeserialization}
	ErrConnectionFailed     = &Error{Kind: KindConnectionFailed}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrInvalidQuery         = &Error{Kind: KindInvalidQuery}
	ErrBackend              = &Error{Kind: KindBackend}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("HTTP error: %v", e.cause())
	case KindAPI:
		return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
	case KindDeserialization:
		return fmt.Sprintf("deserialization error: %v", e.cause())
	case KindConnectionFailed:
		return "connection failed: " + e.Message
	case KindAuthenticationFailed:
		return fmt.Sprintf("authentication failed: HTTP %d", e.Status)
	case KindInvalidQuery:
		return "invalid query: " + e.Message
	case KindBackend:
		return "backend error: " + e.Message
	default:
		return e.Message
	}
}

func (e *Error) cause() any {
	if e.Err != nil {
		return e.Err
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

func HTTPError(err error) *Error {
	return &Error{Kind: KindHTTP, Err: err}
}

func APIError(status int, body string) *Error {
	return &Error{Kind: KindAPI, Status: status, Message: body}
}

func DeserializationError(err error) *Error {
	return &Error{Kind: KindDeserialization, Err: err}
}

func ConnectionFailed(format string, args ...any) *Error {
	return &Error{Kind: KindConnectionFailed, Message: fmt.Sprintf(format, args...)}
}

func AuthenticationFailed(status int) *Error {
	return &Error{Kind: KindAuthenticationFailed, Status: status}
}

func InvalidQuery(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidQuery, Message: fmt.Sprintf(format, args...)}
}

func BackendError(msg string) *Error {
	return &Error{Kind: KindBackend, Message: msg}
}
