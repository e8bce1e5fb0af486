// Package jwt reads the self-contained payload of bearer access tokens so the request
// pipeline can schedule proactive refreshes.
//
// # Trust model
//
// Tokens are decoded without signature verification. The decoded expiry is advisory: it
// decides when to refresh ahead of time and nothing else. Authorization is enforced by
// the server that issued and accepts the token.
//
// # What this package must NOT do
//
//   - Verify signatures or hold signing keys.
//   - Return errors or panic on malformed input (callers get a boolean instead).
//   - Import authpipe, session, or refresh.
package jwt
