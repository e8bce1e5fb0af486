// Package prometheus renders authpipe metrics in Prometheus text exposition
// format.
//
// [NewExporter] reads a [authpipe.Pipeline] snapshot on every scrape. Counters
// are named authpipe_*_total and the two latency histograms
// authpipe_request_latency_seconds and authpipe_refresh_latency_seconds.
//
// Nothing is registered in a global registry; callers mount [Exporter.Handler].
package prometheus
