// Package flows contains the pure-function orchestrators behind each phase of a
// pipeline round trip.
//
// RunAttach decides which bearer token an outgoing request carries, refreshing
// proactively when the stored token is about to expire. RunRecover decides what
// happens after an authentication failure: pass the response through, give up
// and sign out, or replay once with a repaired token.
//
// # Architecture boundaries
//
// Flows coordinate the credential store and the refresh coordinator. They do
// not own either, never touch *http.Request values and never send anything over
// the network. Header mutation, body replay and response handling stay in the
// root package.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authpipe (to avoid import cycles).
//   - Cache tokens beyond a single call.
package flows
