package authpipe

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a [LintWarning].
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning flags a valid but questionable setting.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns warnings at or above min.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	var out LintWarnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing every warning at or above min, or nil.
func (ws LintWarnings) AsError(min LintSeverity) error {
	hits := ws.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that validate but are likely mistakes. It never fails.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Refresh.ProactiveThreshold == 0 {
		add("proactive_refresh_disabled", LintInfo,
			"every expiry is handled reactively after a 401")
	}
	if c.Refresh.ProactiveThreshold > time.Minute {
		add("proactive_threshold_large", LintWarn,
			"tokens are refreshed more than a minute early; short-lived tokens may refresh on every request")
	}

	timeout := c.RefreshTimeout()
	if c.Transport.RequestTimeout > 0 && timeout > c.Transport.RequestTimeout {
		add("refresh_timeout_exceeds_request", LintWarn,
			"a refresh may outlive the request waiting on it")
	}
	if c.Transport.RequestTimeout == 0 {
		add("request_timeout_disabled", LintWarn,
			"requests have no client timeout")
	}
	if !c.Refresh.ProceedOnProactiveFailure && c.Refresh.ProactiveThreshold > 0 {
		add("proactive_failure_blocks", LintInfo,
			"requests fail outright when a proactive refresh fails")
	}

	if c.Transport.MaxReplayBodyBytes == 0 {
		add("replay_buffer_disabled", LintHigh,
			"requests with bodies and no GetBody cannot be replayed after a 401")
	}
	if c.Transport.MaxReplayBodyBytes > 256<<20 {
		add("replay_buffer_large", LintWarn,
			"large bodies are held in memory for replay")
	}
	if c.Transport.RequestIDHeader == "" {
		add("request_id_disabled", LintInfo,
			"requests and audit events are not correlated")
	}
	if c.Transport.Scheme == "" {
		add("auth_scheme_empty", LintWarn,
			"the raw token is sent without a scheme prefix")
	}

	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo,
			"refresh episodes and session clears are not audited")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", LintWarn,
			"a slow audit sink applies backpressure to requests")
	}

	return ws
}
