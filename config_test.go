package authpipe

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "proactive disabled valid",
			mutate: func(c *Config) {
				c.Refresh.ProactiveThreshold = 0
			},
			wantValid: true,
		},
		{
			name: "negative proactive threshold invalid",
			mutate: func(c *Config) {
				c.Refresh.ProactiveThreshold = -time.Second
			},
			wantValid: false,
		},
		{
			name: "negative refresh timeout invalid",
			mutate: func(c *Config) {
				c.Refresh.Timeout = -time.Second
			},
			wantValid: false,
		},
		{
			name: "negative request timeout invalid",
			mutate: func(c *Config) {
				c.Transport.RequestTimeout = -time.Second
			},
			wantValid: false,
		},
		{
			name: "replay buffer disabled valid",
			mutate: func(c *Config) {
				c.Transport.MaxReplayBodyBytes = 0
			},
			wantValid: true,
		},
		{
			name: "negative replay buffer invalid",
			mutate: func(c *Config) {
				c.Transport.MaxReplayBodyBytes = -1
			},
			wantValid: false,
		},
		{
			name: "replay buffer above limit invalid",
			mutate: func(c *Config) {
				c.Transport.MaxReplayBodyBytes = 2 << 30
			},
			wantValid: false,
		},
		{
			name: "blank authorization header invalid",
			mutate: func(c *Config) {
				c.Transport.AuthorizationHeader = "  "
			},
			wantValid: false,
		},
		{
			name: "authorization header with space invalid",
			mutate: func(c *Config) {
				c.Transport.AuthorizationHeader = "X Auth"
			},
			wantValid: false,
		},
		{
			name: "custom authorization header valid",
			mutate: func(c *Config) {
				c.Transport.AuthorizationHeader = "X-Api-Token"
			},
			wantValid: true,
		},
		{
			name: "request id disabled valid",
			mutate: func(c *Config) {
				c.Transport.RequestIDHeader = ""
			},
			wantValid: true,
		},
		{
			name: "request id header with colon invalid",
			mutate: func(c *Config) {
				c.Transport.RequestIDHeader = "X-Request:ID"
			},
			wantValid: false,
		},
		{
			name: "empty scheme valid",
			mutate: func(c *Config) {
				c.Transport.Scheme = ""
			},
			wantValid: true,
		},
		{
			name: "scheme with whitespace invalid",
			mutate: func(c *Config) {
				c.Transport.Scheme = "Bearer token"
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit disabled without buffer valid",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
		{
			name: "histograms without metrics invalid",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config")
			}
		})
	}
}

func TestConfigPresetsValidate(t *testing.T) {
	presets := map[string]Config{
		"default":         DefaultConfig(),
		"strict":          StrictConfig(),
		"high_throughput": HighThroughputConfig(),
	}
	for name, cfg := range presets {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%s preset invalid: %v", name, err)
		}
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Refresh.ProactiveThreshold != 5*time.Second {
		t.Fatalf("expected 5s proactive threshold, got %v", cfg.Refresh.ProactiveThreshold)
	}
	if !cfg.Refresh.ProceedOnProactiveFailure {
		t.Fatal("expected stale-token fallback by default")
	}
	if cfg.Transport.AuthorizationHeader != "Authorization" || cfg.Transport.Scheme != "Bearer" {
		t.Fatalf("unexpected auth header defaults %q %q", cfg.Transport.AuthorizationHeader, cfg.Transport.Scheme)
	}
	if cfg.Transport.MaxReplayBodyBytes != 10<<20 {
		t.Fatalf("expected 10 MiB replay buffer, got %d", cfg.Transport.MaxReplayBodyBytes)
	}
}

func TestConfigRefreshTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.RefreshTimeout(); got != 30*time.Second {
		t.Fatalf("expected request timeout fallback, got %v", got)
	}

	cfg.Refresh.Timeout = 5 * time.Second
	if got := cfg.RefreshTimeout(); got != 5*time.Second {
		t.Fatalf("expected explicit timeout, got %v", got)
	}

	cfg.Refresh.Timeout = 0
	cfg.Transport.RequestTimeout = 0
	if got := cfg.RefreshTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s default, got %v", got)
	}
}
