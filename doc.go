// Package authpipe provides an authenticated HTTP request pipeline: an
// http.RoundTripper that attaches the stored bearer token to every outgoing
// request, refreshes it shortly before it expires, and after a 401 repairs the
// session through a single-flight refresh before replaying the request once.
//
// A [Pipeline] is safe for concurrent use after [Builder.Build]. However many
// requests fail at once, each failure episode makes exactly one call to the
// refresh endpoint. Every waiter gets the same new token, or they all fail
// together and the session is cleared once.
//
// # Architecture boundaries
//
// authpipe is the public surface. It exposes [Pipeline], [Builder], [Config], the
// error taxonomy and value types. Token decoding lives in jwt, credential storage
// in session, refresh coordination in refresh, and the attach and recover
// decisions in internal/flows.
//
// # What this package must NOT do
//
//   - Verify token signatures. Expiry is read for scheduling only.
//   - Retry 403, 5xx or transport failures.
//   - Log or audit token values.
//   - Issue credentials. Login happens elsewhere; SignIn only stores the result.
package authpipe
