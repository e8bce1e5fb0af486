package authpipe

import (
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricRequests)
	}
}

func BenchmarkMetricsIncDisabledParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricRequests)
		}
	})
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 12 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricRequestLatency, d)
		}
	})
}

// The set a busy pipeline touches on every 401 episode.
var episodeMetricIDs = [...]MetricID{
	MetricRequests,
	MetricUnauthorized,
	MetricReactiveRefresh,
	MetricRefreshCoalesced,
	MetricRefreshEpisode,
	MetricRefreshSuccess,
	MetricReplay,
	MetricReplayRotated,
}

func BenchmarkMetricsIncEpisodeParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(episodeMetricIDs[idx])
			idx++
			if idx == len(episodeMetricIDs) {
				idx = 0
			}
		}
	})
}
