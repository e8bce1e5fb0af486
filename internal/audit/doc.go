// Package audit implements async event dispatching for session-affecting pipeline
// operations: refresh episodes, replays, sign-in and sign-out.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured record with request correlation ID, status and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that belongs to the Pipeline.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authpipe or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
