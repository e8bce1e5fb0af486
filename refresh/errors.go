package refresh

import "errors"

var (
	// ErrRefreshFailed wraps every episode failure delivered to callers.
	ErrRefreshFailed = errors.New("session refresh failed")
	// ErrNoRefreshToken means the store held no refresh token, so no exchange was attempted.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrRejected means the endpoint refused the refresh token.
	ErrRejected = errors.New("refresh token rejected")
	// ErrEndpointUnavailable covers network errors, timeouts and unexpected statuses.
	ErrEndpointUnavailable = errors.New("refresh endpoint unavailable")
	// ErrInvalidResponse means the endpoint answered 2xx without a usable access token.
	ErrInvalidResponse = errors.New("invalid refresh response")
)
