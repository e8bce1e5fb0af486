package authpipe

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authpipe/refresh"
)

var (
	// ErrUnauthenticated means the final response was 401 after any recovery attempt.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the server answered 403. Never triggers a refresh.
	ErrForbidden = errors.New("forbidden")
	// ErrServerError means the server answered 5xx. Not retried.
	ErrServerError = errors.New("server error")
	// ErrTransport means no response was received. Not retried.
	ErrTransport = errors.New("transport error")
	// ErrRefreshFailed is returned for every failed refresh episode; the session is cleared.
	ErrRefreshFailed = refresh.ErrRefreshFailed
	// ErrNoRefreshToken means recovery was impossible because no refresh token was stored.
	ErrNoRefreshToken = refresh.ErrNoRefreshToken
	// ErrPipelineNotReady is returned by a nil or closed pipeline.
	ErrPipelineNotReady = errors.New("pipeline not initialized")
	// ErrBodyNotReplayable means a 401 could not be replayed because the body was consumed.
	ErrBodyNotReplayable = errors.New("request body not replayable")
	// ErrCredentialStore wraps credential store failures seen while sending.
	ErrCredentialStore = errors.New("credential store failure")
)

// FailureKind is the failure taxonomy used by [Classify].
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureUnauthenticated
	FailureForbidden
	FailureServer
	FailureTransport
	FailureRefresh
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureUnauthenticated:
		return "unauthenticated"
	case FailureForbidden:
		return "forbidden"
	case FailureServer:
		return "server_error"
	case FailureTransport:
		return "transport"
	case FailureRefresh:
		return "refresh_failed"
	default:
		return "unknown"
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureUnauthenticated:
		return ErrUnauthenticated
	case FailureForbidden:
		return ErrForbidden
	case FailureServer:
		return ErrServerError
	case FailureTransport:
		return ErrTransport
	case FailureRefresh:
		return ErrRefreshFailed
	default:
		return nil
	}
}

// Classify maps the outcome of one round trip onto the failure taxonomy.
// Other 4xx statuses are application errors and classify as FailureNone.
func Classify(resp *http.Response, err error) FailureKind {
	if err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			return FailureRefresh
		}
		return FailureTransport
	}
	if resp == nil {
		return FailureTransport
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return FailureUnauthenticated
	case resp.StatusCode == http.StatusForbidden:
		return FailureForbidden
	case resp.StatusCode >= 500:
		return FailureServer
	default:
		return FailureNone
	}
}

// ResponseError is returned by [Pipeline.Send] for 401, 403 and 5xx responses.
// The response is still returned alongside it with an unread body.
type ResponseError struct {
	Kind       FailureKind
	StatusCode int
	RequestID  string
	Err        error
}

func (e *ResponseError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("authpipe: %s (status %d, request %s)", e.Err, e.StatusCode, e.RequestID)
	}
	return fmt.Sprintf("authpipe: %s (status %d)", e.Err, e.StatusCode)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

func newResponseError(kind FailureKind, resp *http.Response, requestID string, cause error) *ResponseError {
	err := kind.sentinel()
	if cause != nil {
		err = fmt.Errorf("%w: %w", err, cause)
	}
	return &ResponseError{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
		Err:        err,
	}
}
