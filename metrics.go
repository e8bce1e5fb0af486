package authpipe

import (
	"sync/atomic"
	"time"
)

// MetricID names one pipeline counter or histogram.
type MetricID uint16

const (
	// MetricRequests counts requests entering the pipeline (replays excluded).
	MetricRequests MetricID = iota
	// MetricRequestsUnauthenticated counts requests sent without a bearer token.
	MetricRequestsUnauthenticated
	// MetricProactiveRefresh counts refreshes triggered by a near-expiry token.
	MetricProactiveRefresh
	// MetricProactiveRefreshFailure counts proactive refreshes that failed.
	MetricProactiveRefreshFailure
	// MetricReactiveRefresh counts refreshes triggered by a 401.
	MetricReactiveRefresh
	// MetricRefreshEpisode counts settled refresh episodes (remote exchanges or fast failures).
	MetricRefreshEpisode
	// MetricRefreshSuccess counts episodes that stored a new token pair.
	MetricRefreshSuccess
	// MetricRefreshFailure counts episodes that failed and cleared the session.
	MetricRefreshFailure
	// MetricRefreshCoalesced counts callers that joined an in-flight episode.
	MetricRefreshCoalesced
	// MetricReplay counts requests replayed after a 401.
	MetricReplay
	// MetricReplayRotated counts replays that reused a token rotated by an earlier episode.
	MetricReplayRotated
	// MetricReplayUnauthorized counts replays that were still rejected with 401.
	MetricReplayUnauthorized
	// MetricBodyNotReplayable counts 401s that could not be replayed.
	MetricBodyNotReplayable
	// MetricSessionCleared counts sign-outs caused by unrecoverable auth failures.
	MetricSessionCleared
	// MetricUnauthorized counts final 401 responses.
	MetricUnauthorized
	// MetricForbidden counts 403 responses.
	MetricForbidden
	// MetricServerError counts 5xx responses.
	MetricServerError
	// MetricTransportError counts requests that received no response.
	MetricTransportError
	// MetricRequestLatency records end-to-end round trip latency, replay included.
	MetricRequestLatency
	// MetricRefreshLatency records refresh episode duration.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and fixed-bucket latency histograms.
// A nil or disabled *Metrics is a valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Gauges is filled by [Pipeline.MetricsSnapshot] only.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	Gauges     map[string]int64
}

// Gauge names reported in [MetricsSnapshot.Gauges].
const (
	GaugeRefreshInFlight = "refresh_in_flight"
	GaugeRefreshWaiters  = "refresh_waiters"
	GaugeAuditQueued     = "audit_queued"
)

// NewMetrics returns metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram for id. Only latency IDs carry histograms.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isLatencyMetric(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the histograms when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricRequestLatency, MetricRefreshLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricRequestLatency || id == MetricRefreshLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
