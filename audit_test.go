package authpipe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authpipe/refresh"
	"github.com/MrEthical07/authpipe/session"
)

func collectAuditTypes(t *testing.T, sink *ChannelSink, want ...string) []AuditEvent {
	t.Helper()
	missing := make(map[string]bool, len(want))
	for _, w := range want {
		missing[w] = true
	}

	var events []AuditEvent
	timeout := time.After(2 * time.Second)
	for len(missing) > 0 {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
			delete(missing, ev.EventType)
		case <-timeout:
			t.Fatalf("missing audit events %v, got %+v", missing, events)
		}
	}
	return events
}

func auditConfig() Config {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return cfg
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	up := newUpstream(t, "A2")
	sink := NewChannelSink(16)
	ep := openEndpoint(refresh.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, nil)
	p := buildTestPipeline(t, newCountingStore(t, "A1", "R1"), ep, func(b *Builder) { b.WithAuditSink(sink) })

	resp, err := p.Send(context.Background(), get(t, up.srv.URL))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp.Body.Close()
	p.Close()

	select {
	case ev := <-sink.Events():
		t.Fatalf("expected no audit events, got %+v", ev)
	default:
	}
}

func TestAuditReplayAndRefreshEvents(t *testing.T) {
	up := newUpstream(t, "A2")
	sink := NewChannelSink(64)
	ep := openEndpoint(refresh.TokenPair{AccessToken: "A2", RefreshToken: "R2", User: &session.User{ID: "u-9"}}, nil)
	p := buildTestPipeline(t, newCountingStore(t, "A1", "R1"), ep, func(b *Builder) {
		b.WithConfig(auditConfig()).WithAuditSink(sink)
	})

	req := get(t, up.srv.URL+"/orders?secret=shh")
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := p.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp.Body.Close()

	events := collectAuditTypes(t, sink, AuditRequestReplayed, AuditRefreshSucceeded)
	for _, ev := range events {
		if ev.ID == "" || ev.Timestamp.IsZero() {
			t.Fatalf("expected id and timestamp, got %+v", ev)
		}
		switch ev.EventType {
		case AuditRequestReplayed:
			if ev.RequestID != "req-42" || ev.Path != "/orders" || ev.StatusCode != 401 {
				t.Fatalf("unexpected replay event %+v", ev)
			}
		case AuditRefreshSucceeded:
			if ev.UserID != "u-9" || ev.Metadata["outcome"] != "refreshed" {
				t.Fatalf("unexpected refresh event %+v", ev)
			}
		}
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	up := newUpstream(t, "never")
	sink := NewChannelSink(64)
	ep := openEndpoint(refresh.TokenPair{}, refresh.ErrRejected)
	p := buildTestPipeline(t, newCountingStore(t, "access-secret", "refresh-secret"), ep, func(b *Builder) {
		b.WithConfig(auditConfig()).WithAuditSink(sink)
	})

	resp, _ := p.Send(context.Background(), get(t, up.srv.URL+"/x?token=query-secret"))
	if resp != nil {
		resp.Body.Close()
	}
	events := collectAuditTypes(t, sink, AuditRefreshFailed, AuditSessionCleared)

	for _, ev := range events {
		blob := ev.Error + ev.Path + ev.Host
		for k, v := range ev.Metadata {
			blob += k + v
		}
		for _, needle := range []string{"access-secret", "refresh-secret", "query-secret"} {
			if strings.Contains(blob, needle) {
				t.Fatalf("sensitive value %q leaked in %+v", needle, ev)
			}
		}
	}
}

func TestAuditSignInSignOut(t *testing.T) {
	sink := NewChannelSink(8)
	p := buildTestPipeline(t, session.NewMemoryStore(), openEndpoint(refresh.TokenPair{}, nil), func(b *Builder) {
		b.WithConfig(auditConfig()).WithAuditSink(sink)
	})

	ctx := context.Background()
	if err := p.SignIn(ctx, session.Credentials{AccessToken: "A1", RefreshToken: "R1"}, &session.User{ID: "u-1"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	events := collectAuditTypes(t, sink, AuditSignedIn, AuditSignedOut)
	if events[0].EventType != AuditSignedIn || events[0].UserID != "u-1" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
}
