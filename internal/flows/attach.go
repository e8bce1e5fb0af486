package flows

import (
	"context"
	"errors"
	"time"
)

// AttachFailureKind classifies attach flow failures for root-level mapping.
type AttachFailureKind int

const (
	AttachFailureNone AttachFailureKind = iota
	AttachFailureStore
	AttachFailureRefresh
	AttachFailureCanceled
)

// AttachResult carries the token to send, or failure metadata.
type AttachResult struct {
	Failure AttachFailureKind
	Err     error
	// Token is empty when the request goes out unauthenticated.
	Token string
	// Proactive reports that the stored token was near expiry and a refresh ran.
	Proactive bool
	// Refreshed reports that Token came from a successful proactive refresh.
	Refreshed bool
	// Degraded reports that the proactive refresh failed and Token is the stale one.
	Degraded bool
}

// AttachDeps captures attach flow dependencies.
type AttachDeps struct {
	Store          CredentialLoader
	Refresher      Refresher
	IsExpiringSoon func(token string, now time.Time, threshold time.Duration) bool
	Now            func() time.Time
	// Threshold <= 0 disables proactive refresh.
	Threshold        time.Duration
	ProceedOnFailure bool
	Warn             func(string, ...any)
}

// RunAttach reads the stored credentials and returns the bearer token for one
// outgoing request.
func RunAttach(ctx context.Context, deps AttachDeps) AttachResult {
	state, err := deps.Store.Load(ctx)
	if err != nil {
		return AttachResult{Failure: AttachFailureStore, Err: err}
	}

	token := state.AccessToken()
	if token == "" {
		return AttachResult{}
	}
	if deps.Threshold <= 0 || deps.IsExpiringSoon == nil || deps.Refresher == nil {
		return AttachResult{Token: token}
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	if !deps.IsExpiringSoon(token, now(), deps.Threshold) {
		return AttachResult{Token: token}
	}

	fresh, err := deps.Refresher.Refresh(ctx)
	if err == nil {
		return AttachResult{Token: fresh, Proactive: true, Refreshed: true}
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return AttachResult{Failure: AttachFailureCanceled, Err: err, Proactive: true}
	}
	if !deps.ProceedOnFailure {
		return AttachResult{Failure: AttachFailureRefresh, Err: err, Proactive: true}
	}

	if deps.Warn != nil {
		deps.Warn("authpipe: proactive refresh failed, sending stored token: %v", err)
	}
	return AttachResult{Token: token, Proactive: true, Degraded: true, Err: err}
}
