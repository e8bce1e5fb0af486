package authpipe

import (
	"io"

	"github.com/MrEthical07/authpipe/internal/audit"
)

// Audit event types emitted by the pipeline.
const (
	AuditSignedIn         = "signed_in"
	AuditSignedOut        = "signed_out"
	AuditRefreshSucceeded = "refresh_succeeded"
	AuditRefreshFailed    = "refresh_failed"
	AuditSessionCleared   = "session_cleared"
	AuditRequestReplayed  = "request_replayed"
	AuditReplayRejected   = "replay_rejected"
	AuditNotReplayable    = "body_not_replayable"
	AuditForbidden        = "forbidden"
)

// AuditEvent is one audited pipeline occurrence.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// ChannelSink delivers events on a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// FuncSink adapts a function to [AuditSink].
type FuncSink = audit.FuncSink

// MultiSink fans every event out to several sinks.
type MultiSink = audit.MultiSink

// NewChannelSink returns a sink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes events to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
