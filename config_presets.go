package authpipe

import "time"

// DefaultConfig returns the baseline configuration: 5s proactive threshold,
// stale-token fallback on proactive failure, 10 MiB replay buffer, metrics and
// audit off.
func DefaultConfig() Config {
	return defaultConfig()
}

// StrictConfig fails requests when a proactive refresh fails, keeps every audit
// event, and enables metrics with latency histograms.
func StrictConfig() Config {
	cfg := defaultConfig()
	cfg.Refresh.ProceedOnProactiveFailure = false
	cfg.Refresh.ProactiveThreshold = 15 * time.Second
	cfg.Refresh.Timeout = 10 * time.Second
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

// HighThroughputConfig favours request latency: a shorter proactive window,
// lossy audit and counters without histograms.
func HighThroughputConfig() Config {
	cfg := defaultConfig()
	cfg.Refresh.ProactiveThreshold = 2 * time.Second
	cfg.Transport.MaxReplayBodyBytes = 1 << 20
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 8192
	cfg.Audit.DropIfFull = true
	cfg.Metrics.Enabled = true
	return cfg
}
