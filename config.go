package authpipe

import (
	"errors"
	"strings"
	"time"
)

// Config controls a [Pipeline]. Build it once, pass it to [Builder.WithConfig],
// and treat it as immutable afterwards.
type Config struct {
	Refresh   RefreshConfig
	Transport TransportConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls proactive and reactive session repair.
type RefreshConfig struct {
	// ProactiveThreshold triggers a refresh before sending when the access token
	// expires within this window. Zero disables proactive refresh.
	ProactiveThreshold time.Duration
	// ProceedOnProactiveFailure sends the stored token anyway when a proactive
	// refresh fails. When false the request fails with ErrRefreshFailed.
	ProceedOnProactiveFailure bool
	// Timeout bounds one refresh exchange. Zero uses Transport.RequestTimeout,
	// and 30s when that is zero too.
	Timeout time.Duration
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig controls how requests are decorated and replayed.
type TransportConfig struct {
	// RequestTimeout is the http.Client timeout used by Pipeline.Client and Send.
	RequestTimeout time.Duration
	// MaxReplayBodyBytes bounds how much of a body without GetBody is buffered
	// so it can be replayed after a 401. Zero disables buffering.
	MaxReplayBodyBytes int64
	// RequestIDHeader is filled with a generated ID when the request lacks one.
	// Empty disables correlation IDs.
	RequestIDHeader     string
	AuthorizationHeader string
	Scheme              string
}

/*
====================================
AUDIT + METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const (
	defaultProactiveThreshold = 5 * time.Second
	defaultRefreshTimeout     = 30 * time.Second
	defaultMaxReplayBodyBytes = 10 << 20
	maxReplayBodyBytesLimit   = 1 << 30
)

func defaultConfig() Config {
	return Config{
		Refresh: RefreshConfig{
			ProactiveThreshold:        defaultProactiveThreshold,
			ProceedOnProactiveFailure: true,
		},
		Transport: TransportConfig{
			RequestTimeout:      30 * time.Second,
			MaxReplayBodyBytes:  defaultMaxReplayBodyBytes,
			RequestIDHeader:     "X-Request-ID",
			AuthorizationHeader: "Authorization",
			Scheme:              "Bearer",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// RefreshTimeout resolves the effective refresh exchange timeout.
func (c *Config) RefreshTimeout() time.Duration {
	switch {
	case c.Refresh.Timeout > 0:
		return c.Refresh.Timeout
	case c.Transport.RequestTimeout > 0:
		return c.Transport.RequestTimeout
	default:
		return defaultRefreshTimeout
	}
}

// Validate rejects configurations a pipeline cannot run with.
func (c *Config) Validate() error {
	// Refresh
	if c.Refresh.ProactiveThreshold < 0 {
		return errors.New("Refresh ProactiveThreshold must be >= 0")
	}
	if c.Refresh.Timeout < 0 {
		return errors.New("Refresh Timeout must be >= 0")
	}

	// Transport
	if c.Transport.RequestTimeout < 0 {
		return errors.New("Transport RequestTimeout must be >= 0")
	}
	if c.Transport.MaxReplayBodyBytes < 0 {
		return errors.New("Transport MaxReplayBodyBytes must be >= 0")
	}
	if c.Transport.MaxReplayBodyBytes > maxReplayBodyBytesLimit {
		return errors.New("Transport MaxReplayBodyBytes must be <= 1 GiB")
	}
	if strings.TrimSpace(c.Transport.AuthorizationHeader) == "" {
		return errors.New("Transport AuthorizationHeader must not be empty")
	}
	if !validHeaderName(c.Transport.AuthorizationHeader) {
		return errors.New("Transport AuthorizationHeader is not a valid header name")
	}
	if c.Transport.RequestIDHeader != "" && !validHeaderName(c.Transport.RequestIDHeader) {
		return errors.New("Transport RequestIDHeader is not a valid header name")
	}
	if strings.ContainsAny(c.Transport.Scheme, " \t\r\n") {
		return errors.New("Transport Scheme must be a single token")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}
