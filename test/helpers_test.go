//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authpipe"
	"github.com/MrEthical07/authpipe/refresh"
	"github.com/MrEthical07/authpipe/session"
	"github.com/alicebob/miniredis/v2"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var testKey = []byte("integration-signing-key-0123456789abcdef")

func newIntegrationStore(t *testing.T, profile string) (*session.RedisStore, *redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewRedisStore(rdb, "ap", profile, 0)

	return store, rdb, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

// authServer issues HS256 access tokens and rotates refresh tokens on every
// exchange. A reused refresh token is rejected.
type authServer struct {
	ttl time.Duration

	mu      sync.Mutex
	current string

	exchanges atomic.Int64
	rejected  atomic.Int64

	token *httptest.Server
	api   *httptest.Server
}

func newAuthServer(t *testing.T, ttl time.Duration) *authServer {
	t.Helper()
	s := &authServer{ttl: ttl}
	s.token = httptest.NewServer(http.HandlerFunc(s.serveToken))
	s.api = httptest.NewServer(http.HandlerFunc(s.serveAPI))
	t.Cleanup(func() {
		s.token.Close()
		s.api.Close()
	})
	return s
}

func (s *authServer) issue(t *testing.T) session.Credentials {
	t.Helper()
	access, refreshTok, err := s.mint()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return session.Credentials{AccessToken: access, RefreshToken: refreshTok}
}

func (s *authServer) mint() (string, string, error) {
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{
		Subject:   "u-int",
		ID:        uuid.NewString(),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(s.ttl)),
	})
	access, err := tok.SignedString(testKey)
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	s.current = uuid.NewString()
	refreshTok := s.current
	s.mu.Unlock()
	return access, refreshTok, nil
}

func (s *authServer) serveToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.exchanges.Add(1)
	time.Sleep(20 * time.Millisecond)

	s.mu.Lock()
	valid := body.RefreshToken != "" && body.RefreshToken == s.current
	s.mu.Unlock()
	if !valid {
		s.rejected.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	access, refreshTok, err := s.mint()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refreshTok,
		"user":          map[string]any{"id": "u-int", "email": "int@example.com"},
	})
}

func (s *authServer) serveAPI(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	_, err := gjwt.Parse(raw, func(*gjwt.Token) (any, error) { return testKey, nil },
		gjwt.WithValidMethods([]string{gjwt.SigningMethodHS256.Alg()}))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func newPipeline(t *testing.T, s *authServer, store session.Store, cfg authpipe.Config) *authpipe.Pipeline {
	t.Helper()
	ep, err := refresh.NewHTTPEndpoint(refresh.HTTPEndpointConfig{URL: s.token.URL})
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	p, err := authpipe.New().
		WithConfig(cfg).
		WithStore(store).
		WithEndpoint(ep).
		WithLogger(logger).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func getStatus(t *testing.T, p *authpipe.Pipeline, url string) (int, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := p.Send(context.Background(), req)
	if resp == nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, err
}
