// Package session holds the client-side credential store: the current access/refresh
// token pair and the signed-in user profile.
//
// # Stores
//
//   - [MemoryStore]: process-local, for tests and short-lived tools.
//   - [RedisStore]: Redis-backed, survives process restarts, shareable between processes.
//   - [FileStore]: a single JSON file written atomically, for CLIs and desktop agents.
//   - [Watched]: decorator that broadcasts saves and clears to subscribers.
//
// # Binary encoding
//
// [RedisStore] persists [State] with a compact versioned binary format ([Encode] /
// [Decode]). New versions append fields and never reinterpret old ones.
//
// # Architecture boundaries
//
// A store is the single source of truth for tokens. It does not decode tokens, talk to
// the refresh endpoint, or decide when a session is unrecoverable; the refresh
// coordinator and the request pipeline make those calls and ask the store to update.
//
// # What this package must NOT do
//
//   - Import authpipe, jwt, or refresh (no upward imports).
//   - Persist a partial credential pair.
package session
