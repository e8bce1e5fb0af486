package authpipe

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authpipe/refresh"
	"github.com/MrEthical07/authpipe/session"
)

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.AuthorizationHeader = ""

	_, err := New().
		WithConfig(cfg).
		WithStore(session.NewMemoryStore()).
		WithEndpoint(openEndpoint(refresh.TokenPair{}, nil)).
		Build()
	if err == nil || !strings.Contains(err.Error(), "AuthorizationHeader") {
		t.Fatalf("expected AuthorizationHeader rejection, got %v", err)
	}
}

func TestBuildRequiresStoreAndEndpoint(t *testing.T) {
	if _, err := New().WithEndpoint(openEndpoint(refresh.TokenPair{}, nil)).Build(); err == nil {
		t.Fatal("expected missing store rejection")
	}
	if _, err := New().WithStore(session.NewMemoryStore()).Build(); err == nil {
		t.Fatal("expected missing endpoint rejection")
	}
}

func TestBuildRejectsEndpointAndCoordinator(t *testing.T) {
	store := session.NewMemoryStore()
	ep := openEndpoint(refresh.TokenPair{}, nil)
	c, err := refresh.NewCoordinator(store, ep, refresh.Config{})
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	_, err = New().WithStore(store).WithEndpoint(ep).WithCoordinator(c).Build()
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected mutual exclusion error, got %v", err)
	}
}

func TestBuildRejectsNestedPipeline(t *testing.T) {
	inner := buildTestPipeline(t, session.NewMemoryStore(), openEndpoint(refresh.TokenPair{}, nil), nil)

	_, err := New().
		WithStore(session.NewMemoryStore()).
		WithEndpoint(openEndpoint(refresh.TokenPair{}, nil)).
		WithTransport(inner).
		Build()
	if err == nil {
		t.Fatal("expected nested pipeline rejection")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().
		WithStore(session.NewMemoryStore()).
		WithEndpoint(openEndpoint(refresh.TokenPair{}, nil)).
		WithLogger(quietLogger())
	p, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer p.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}
