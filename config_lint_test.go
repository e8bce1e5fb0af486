package authpipe

import (
	"strings"
	"testing"
	"time"
)

func TestLint_DefaultConfigOnlyInfo(t *testing.T) {
	cfg := DefaultConfig()
	ws := cfg.Lint()

	if got := ws.BySeverity(LintWarn); len(got) != 0 {
		t.Fatalf("default config should not warn, got %v", got.Codes())
	}
	if !containsCode(ws.Codes(), "audit_disabled") {
		t.Fatalf("expected audit_disabled info, got %v", ws.Codes())
	}
}

func TestLint_StrictConfig(t *testing.T) {
	cfg := StrictConfig()
	codes := cfg.Lint().Codes()

	if !containsCode(codes, "proactive_failure_blocks") {
		t.Errorf("StrictConfig should report proactive_failure_blocks, got %v", codes)
	}
	if !containsCode(codes, "audit_blocking") {
		t.Errorf("StrictConfig should report audit_blocking, got %v", codes)
	}
	for _, unwanted := range []string{"audit_disabled", "replay_buffer_disabled", "refresh_timeout_exceeds_request"} {
		if containsCode(codes, unwanted) {
			t.Errorf("StrictConfig should not produce warning %q", unwanted)
		}
	}
}

func TestLint_HighThroughputConfig(t *testing.T) {
	cfg := HighThroughputConfig()
	ws := cfg.Lint()
	if err := ws.AsError(LintWarn); err != nil {
		t.Fatalf("HighThroughputConfig should lint clean at WARN: %v", err)
	}
}

func TestLint_Codes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
		sev    LintSeverity
	}{
		{"proactive disabled", func(c *Config) { c.Refresh.ProactiveThreshold = 0 }, "proactive_refresh_disabled", LintInfo},
		{"proactive large", func(c *Config) { c.Refresh.ProactiveThreshold = 2 * time.Minute }, "proactive_threshold_large", LintWarn},
		{"refresh outlives request", func(c *Config) { c.Refresh.Timeout = time.Minute }, "refresh_timeout_exceeds_request", LintWarn},
		{"no request timeout", func(c *Config) { c.Transport.RequestTimeout = 0 }, "request_timeout_disabled", LintWarn},
		{"replay disabled", func(c *Config) { c.Transport.MaxReplayBodyBytes = 0 }, "replay_buffer_disabled", LintHigh},
		{"replay large", func(c *Config) { c.Transport.MaxReplayBodyBytes = 512 << 20 }, "replay_buffer_large", LintWarn},
		{"no request id", func(c *Config) { c.Transport.RequestIDHeader = "" }, "request_id_disabled", LintInfo},
		{"no scheme", func(c *Config) { c.Transport.Scheme = "" }, "auth_scheme_empty", LintWarn},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			var found *LintWarning
			ws := cfg.Lint()
			for i := range ws {
				if ws[i].Code == tc.code {
					found = &ws[i]
				}
			}
			if found == nil {
				t.Fatalf("expected %s, got %v", tc.code, ws.Codes())
			}
			if found.Severity != tc.sev {
				t.Fatalf("expected severity %s, got %s", tc.sev, found.Severity)
			}
		})
	}
}

func TestLint_AsError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.MaxReplayBodyBytes = 0
	cfg.Transport.Scheme = ""

	ws := cfg.Lint()
	if err := ws.AsError(LintHigh); err == nil || !strings.Contains(err.Error(), "replay_buffer_disabled") {
		t.Fatalf("expected HIGH lint error, got %v", err)
	}
	err := ws.AsError(LintWarn)
	if err == nil || !strings.Contains(err.Error(), "auth_scheme_empty") {
		t.Fatalf("expected WARN lint error to include auth_scheme_empty, got %v", err)
	}
	if strings.Contains(err.Error(), "audit_disabled") {
		t.Fatalf("INFO codes should be filtered out: %v", err)
	}
}

func TestLintSeverityString(t *testing.T) {
	if LintInfo.String() != "INFO" || LintWarn.String() != "WARN" || LintHigh.String() != "HIGH" {
		t.Fatal("unexpected severity names")
	}
	if LintSeverity(9).String() != "UNKNOWN" {
		t.Fatal("expected UNKNOWN for out-of-range severity")
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
