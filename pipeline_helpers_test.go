package authpipe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authpipe/refresh"
	"github.com/MrEthical07/authpipe/session"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// upstream is an API server that accepts exactly one bearer token.
type upstream struct {
	srv    *httptest.Server
	valid  atomic.Value
	status atomic.Int32

	mu     sync.Mutex
	auths  []string
	bodies []string
	ids    []string
}

func newUpstream(t *testing.T, valid string) *upstream {
	t.Helper()
	u := &upstream{}
	u.valid.Store(valid)
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		auth := r.Header.Get("Authorization")

		u.mu.Lock()
		u.auths = append(u.auths, auth)
		u.bodies = append(u.bodies, string(body))
		u.ids = append(u.ids, r.Header.Get("X-Request-ID"))
		u.mu.Unlock()

		if s := u.status.Load(); s != 0 {
			w.WriteHeader(int(s))
			return
		}
		if auth != "Bearer "+u.valid.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) hits() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.auths)
}

func (u *upstream) countAuth(value string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, a := range u.auths {
		if a == value {
			n++
		}
	}
	return n
}

// countingStore counts Clear calls on top of a memory store.
type countingStore struct {
	*session.MemoryStore
	clears atomic.Int32
}

func (s *countingStore) Clear(ctx context.Context) error {
	s.clears.Add(1)
	return s.MemoryStore.Clear(ctx)
}

func newCountingStore(t *testing.T, access, refreshToken string) *countingStore {
	t.Helper()
	s := &countingStore{MemoryStore: session.NewMemoryStore()}
	if access != "" {
		if err := s.MemoryStore.Save(context.Background(), session.Credentials{AccessToken: access, RefreshToken: refreshToken}, nil); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	return s
}

// gatedEndpoint blocks exchanges until release is closed.
type gatedEndpoint struct {
	release chan struct{}
	calls   atomic.Int32
	lastRT  atomic.Value
	pair    refresh.TokenPair
	err     error
}

func newGatedEndpoint(pair refresh.TokenPair, err error) *gatedEndpoint {
	return &gatedEndpoint{release: make(chan struct{}), pair: pair, err: err}
}

func openEndpoint(pair refresh.TokenPair, err error) *gatedEndpoint {
	g := newGatedEndpoint(pair, err)
	close(g.release)
	return g
}

func (g *gatedEndpoint) Exchange(ctx context.Context, refreshToken string) (refresh.TokenPair, error) {
	g.calls.Add(1)
	g.lastRT.Store(refreshToken)
	select {
	case <-g.release:
	case <-ctx.Done():
		return refresh.TokenPair{}, ctx.Err()
	}
	return g.pair, g.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func (n *recordingNotifier) count(kind NoticeKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, notice := range n.notices {
		if notice.Kind == kind {
			c++
		}
	}
	return c
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func buildTestPipeline(t *testing.T, store session.Store, ep refresh.Endpoint, mutate func(*Builder)) *Pipeline {
	t.Helper()
	b := New().
		WithStore(store).
		WithEndpoint(ep).
		WithLogger(quietLogger()).
		WithNotifier(&recordingNotifier{}).
		WithMetricsEnabled(true)
	if mutate != nil {
		mutate(b)
	}
	p, err := b.Build()
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func waitPending(t *testing.T, c *refresh.Coordinator, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d pending refresh callers, got %d", n, c.Pending())
		}
		time.Sleep(time.Millisecond)
	}
}

func waitEpisodes(t *testing.T, p *Pipeline, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.metrics.Value(MetricRefreshEpisode) < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d settled episodes, got %d", n, p.metrics.Value(MetricRefreshEpisode))
		}
		time.Sleep(time.Millisecond)
	}
}

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: gjwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("pipeline-test-secret-pipeline-test"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func get(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}
