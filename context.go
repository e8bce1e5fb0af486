package authpipe

import "context"

type retriedContextKey struct{}
type skipAuthContextKey struct{}

// WithRetried marks requests made with ctx as already replayed once. A 401 on such a
// request is returned as-is without a refresh. The pipeline sets this on its own
// replays; callers doing their own retry can set it to opt out of recovery.
func WithRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedContextKey{}, true)
}

// WithoutAuth sends requests made with ctx without a bearer token and without 401
// recovery, e.g. for public endpoints that reject unexpected credentials.
func WithoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthContextKey{}, true)
}

func retriedFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	retried, _ := ctx.Value(retriedContextKey{}).(bool)
	return retried
}

func skipAuthFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	skip, _ := ctx.Value(skipAuthContextKey{}).(bool)
	return skip
}
