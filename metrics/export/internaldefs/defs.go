package internaldefs

import (
	"github.com/MrEthical07/authpipe"
)

// CounterDef maps a pipeline counter onto its exported name.
type CounterDef struct {
	ID   authpipe.MetricID
	Name string
	Help string
}

// HistogramDef maps a pipeline latency histogram onto its exported name.
type HistogramDef struct {
	ID   authpipe.MetricID
	Name string
	Help string
}

// GaugeDef maps a live pipeline gauge onto its exported name.
type GaugeDef struct {
	Key  string
	Name string
	Help string
}

// AuditDroppedName is the counter exported for dispatcher backpressure drops.
const AuditDroppedName = "authpipe_audit_dropped_total"

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: authpipe.MetricRequests, Name: "authpipe_requests_total", Help: "Requests entering the pipeline, replays excluded."},
	{ID: authpipe.MetricRequestsUnauthenticated, Name: "authpipe_requests_unauthenticated_total", Help: "Requests sent without a bearer token."},
	{ID: authpipe.MetricProactiveRefresh, Name: "authpipe_proactive_refresh_total", Help: "Refreshes triggered by a near-expiry access token."},
	{ID: authpipe.MetricProactiveRefreshFailure, Name: "authpipe_proactive_refresh_failure_total", Help: "Proactive refreshes that failed."},
	{ID: authpipe.MetricReactiveRefresh, Name: "authpipe_reactive_refresh_total", Help: "Refreshes triggered by a 401 response."},
	{ID: authpipe.MetricRefreshEpisode, Name: "authpipe_refresh_episode_total", Help: "Settled refresh episodes."},
	{ID: authpipe.MetricRefreshSuccess, Name: "authpipe_refresh_success_total", Help: "Refresh episodes that stored a new token pair."},
	{ID: authpipe.MetricRefreshFailure, Name: "authpipe_refresh_failure_total", Help: "Refresh episodes that failed."},
	{ID: authpipe.MetricRefreshCoalesced, Name: "authpipe_refresh_coalesced_total", Help: "Callers that joined an in-flight refresh episode."},
	{ID: authpipe.MetricReplay, Name: "authpipe_replay_total", Help: "Requests replayed after a 401."},
	{ID: authpipe.MetricReplayRotated, Name: "authpipe_replay_rotated_total", Help: "Replays that reused an already rotated token."},
	{ID: authpipe.MetricReplayUnauthorized, Name: "authpipe_replay_unauthorized_total", Help: "Replays still rejected with 401."},
	{ID: authpipe.MetricBodyNotReplayable, Name: "authpipe_body_not_replayable_total", Help: "401 responses that could not be replayed."},
	{ID: authpipe.MetricSessionCleared, Name: "authpipe_session_cleared_total", Help: "Sessions cleared after unrecoverable auth failures."},
	{ID: authpipe.MetricUnauthorized, Name: "authpipe_unauthorized_total", Help: "Final 401 responses."},
	{ID: authpipe.MetricForbidden, Name: "authpipe_forbidden_total", Help: "403 responses."},
	{ID: authpipe.MetricServerError, Name: "authpipe_server_error_total", Help: "5xx responses."},
	{ID: authpipe.MetricTransportError, Name: "authpipe_transport_error_total", Help: "Requests that received no response."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: authpipe.MetricRequestLatency, Name: "authpipe_request_latency_seconds", Help: "Round trip latency including any replay."},
	{ID: authpipe.MetricRefreshLatency, Name: "authpipe_refresh_latency_seconds", Help: "Refresh episode duration."},
}

// GaugeDefs lists the live gauges taken from MetricsSnapshot.Gauges.
var GaugeDefs = []GaugeDef{
	{Key: authpipe.GaugeRefreshInFlight, Name: "authpipe_refresh_in_flight", Help: "1 while a refresh episode is running."},
	{Key: authpipe.GaugeRefreshWaiters, Name: "authpipe_refresh_waiters", Help: "Callers waiting on the running refresh episode."},
	{Key: authpipe.GaugeAuditQueued, Name: "authpipe_audit_queued", Help: "Audit events buffered for delivery."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable inside metric names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
