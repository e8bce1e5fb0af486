package flows

import (
	"context"
	"net/http"
)

// RecoverFailureKind classifies why a 401 was not repaired.
type RecoverFailureKind int

const (
	RecoverFailureNone RecoverFailureKind = iota
	RecoverFailureAlreadyRetried
	RecoverFailureNoRefreshToken
	RecoverFailureStore
	RecoverFailureRefresh
)

// RecoverResult tells the caller whether to replay the request and with which token.
type RecoverResult struct {
	Failure RecoverFailureKind
	Err     error
	// Replay is set when the request should be resent once with Token.
	Replay bool
	Token  string
	// Rotated means another episode already replaced the token the request was
	// sent with, so no refresh ran.
	Rotated bool
	// Cleared means this flow signed the session out itself.
	Cleared bool
	// Prior means Err is the proactive failure carried in [RecoverInput.PriorErr]
	// and no refresh ran here.
	Prior bool
}

// RecoverInput describes the response being recovered.
type RecoverInput struct {
	Status int
	// SentToken is the bearer token the request carried, "" when unauthenticated.
	SentToken string
	// Retried reports that the request is already a replay.
	Retried bool
	// PriorErr is a proactive refresh failure from the same request. The
	// coordinator has already signed the session out for it.
	PriorErr error
}

// RecoverDeps captures recover flow dependencies.
type RecoverDeps struct {
	Store     CredentialStore
	Refresher Refresher
	Warn      func(string, ...any)
}

// RunRecover handles one response status.
func RunRecover(ctx context.Context, in RecoverInput, deps RecoverDeps) RecoverResult {
	if in.Status != http.StatusUnauthorized {
		return RecoverResult{}
	}
	if in.Retried {
		return RecoverResult{Failure: RecoverFailureAlreadyRetried}
	}

	state, err := deps.Store.Load(ctx)
	if err != nil {
		return RecoverResult{Failure: RecoverFailureStore, Err: err}
	}

	if state.RefreshToken() == "" {
		if in.PriorErr != nil {
			return RecoverResult{Failure: RecoverFailureRefresh, Err: in.PriorErr, Prior: true}
		}
		cleared := true
		if err := deps.Store.Clear(ctx); err != nil {
			cleared = false
			if deps.Warn != nil {
				deps.Warn("authpipe: session clear after 401 failed: %v", err)
			}
		}
		return RecoverResult{Failure: RecoverFailureNoRefreshToken, Cleared: cleared}
	}

	if current := state.AccessToken(); current != "" && current != in.SentToken {
		return RecoverResult{Replay: true, Token: current, Rotated: true}
	}

	token, err := deps.Refresher.Refresh(ctx)
	if err != nil {
		return RecoverResult{Failure: RecoverFailureRefresh, Err: err}
	}
	return RecoverResult{Replay: true, Token: token}
}
