// Package refresh repairs an expired session by exchanging the stored refresh token for a
// new token pair, at most once at a time.
//
// # Single flight
//
// [Coordinator.Refresh] may be called from any number of goroutines. The first caller of
// an episode starts the one remote [Endpoint.Exchange]; callers that arrive while it is in
// flight queue behind it and receive the same [Result], in arrival order, when it settles.
// A failed episode clears the credential store exactly once and fails every queued caller
// with the same error.
//
// # Architecture boundaries
//
// This package owns the in-flight flag, the waiter queue, and the remote exchange. It reads
// the refresh token from the [session.Store] at the start of every episode and writes the
// new pair back before releasing waiters; it never caches tokens between episodes.
//
// # What this package must NOT do
//
//   - Import authpipe (no upward imports).
//   - Retry a failed exchange: a failed refresh means the session is unrecoverable.
//   - Send the exchange through the authenticated pipeline.
package refresh
