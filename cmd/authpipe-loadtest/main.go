// Command authpipe-loadtest drives many concurrent requests through one pipeline
// against a local API whose access tokens expire quickly, and reports how many
// refresh exchanges the token server saw.
//
// Refresh tokens rotate on every exchange and a reused one is rejected, so any
// duplicate exchange shows up as a failure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authpipe"
	"github.com/MrEthical07/authpipe/refresh"
	"github.com/MrEthical07/authpipe/session"
	"github.com/alicebob/miniredis/v2"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var signingKey = []byte("authpipe-loadtest-signing-key-0123456789")

func main() {
	var (
		requests       = flag.Int("requests", 20000, "total requests")
		concurrency    = flag.Int("concurrency", 128, "number of concurrent workers")
		tokenTTL       = flag.Duration("token-ttl", 2*time.Second, "access token lifetime issued by the token server")
		threshold      = flag.Duration("proactive", time.Second, "proactive refresh threshold")
		refreshLatency = flag.Duration("refresh-latency", 20*time.Millisecond, "simulated token endpoint latency")
		redisAddr      = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix         = flag.String("prefix", "authpipe-load", "credential key prefix")
		jsonLogs       = flag.Bool("json", false, "log as JSON")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *jsonLogs {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if *requests <= 0 || *concurrency <= 0 || *tokenTTL <= 0 {
		logger.Error("requests, concurrency and token-ttl must be > 0")
		os.Exit(2)
	}

	client, cleanup, err := openRedis(*redisAddr, logger)
	if err != nil {
		logger.WithError(err).Error("redis unavailable")
		os.Exit(1)
	}
	defer cleanup()

	issuer := newTokenServer(*tokenTTL, *refreshLatency)
	tokenSrv := httptest.NewServer(issuer)
	defer tokenSrv.Close()
	apiSrv := httptest.NewServer(http.HandlerFunc(apiHandler))
	defer apiSrv.Close()

	endpoint, err := refresh.NewHTTPEndpoint(refresh.HTTPEndpointConfig{URL: tokenSrv.URL})
	if err != nil {
		logger.WithError(err).Error("endpoint")
		os.Exit(1)
	}

	cfg := authpipe.HighThroughputConfig()
	cfg.Refresh.ProactiveThreshold = *threshold
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.Enabled = false

	store := session.NewRedisStore(client, *prefix, uuid.NewString(), 0)
	p, err := authpipe.New().
		WithConfig(cfg).
		WithStore(store).
		WithEndpoint(endpoint).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.WithError(err).Error("build pipeline")
		os.Exit(1)
	}
	defer p.Close()

	ctx := context.Background()
	access, refreshTok := issuer.issue()
	if err := p.SignIn(ctx, session.Credentials{AccessToken: access, RefreshToken: refreshTok}, nil); err != nil {
		logger.WithError(err).Error("sign in")
		os.Exit(1)
	}

	stats, err := runPhase(ctx, p, apiSrv.URL, *requests, *concurrency)
	if err != nil {
		logger.WithError(err).Error("load phase aborted")
		os.Exit(1)
	}

	snap := p.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("requests", stats)
	logger.WithFields(logrus.Fields{
		"exchanges":          issuer.exchanges.Load(),
		"rejected_exchanges": issuer.rejected.Load(),
		"episodes":           snap.Counters[authpipe.MetricRefreshEpisode],
		"coalesced":          snap.Counters[authpipe.MetricRefreshCoalesced],
		"proactive":          snap.Counters[authpipe.MetricProactiveRefresh],
		"reactive":           snap.Counters[authpipe.MetricReactiveRefresh],
		"replays":            snap.Counters[authpipe.MetricReplay],
		"unauthorized":       snap.Counters[authpipe.MetricUnauthorized],
	}).Info("refresh summary")

	if issuer.rejected.Load() > 0 {
		os.Exit(1)
	}
}

func openRedis(addr string, logger logrus.FieldLogger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.WithField("addr", mr.Addr()).Info("using miniredis")
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.WithField("addr", addr).Info("using redis")
	return client, func() { _ = client.Close() }, nil
}

// tokenServer issues short-lived HS256 access tokens and rotating refresh tokens.
type tokenServer struct {
	ttl     time.Duration
	latency time.Duration

	mu      sync.Mutex
	current string

	exchanges atomic.Int64
	rejected  atomic.Int64
}

func newTokenServer(ttl, latency time.Duration) *tokenServer {
	return &tokenServer{ttl: ttl, latency: latency}
}

func (s *tokenServer) issue() (string, string) {
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.RegisteredClaims{
		Subject:   "load-user",
		ID:        uuid.NewString(),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(s.ttl)),
	})
	access, err := tok.SignedString(signingKey)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	s.current = uuid.NewString()
	refreshTok := s.current
	s.mu.Unlock()
	return access, refreshTok
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.exchanges.Add(1)
	time.Sleep(s.latency)

	s.mu.Lock()
	valid := body.RefreshToken != "" && body.RefreshToken == s.current
	s.mu.Unlock()
	if !valid {
		s.rejected.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	access, refreshTok := s.issue()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refreshTok,
		"user":          map[string]string{"id": "load-user"},
	})
}

func apiHandler(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	_, err := gjwt.Parse(raw, func(*gjwt.Token) (any, error) { return signingKey, nil },
		gjwt.WithValidMethods([]string{gjwt.SigningMethodHS256.Alg()}))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func runPhase(ctx context.Context, p *authpipe.Pipeline, url string, ops, concurrency int) (phaseStats, error) {
	var (
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				if int(cursor.Add(1)) > ops {
					return nil
				}
				req, err := http.NewRequestWithContext(gctx, http.MethodGet, url, nil)
				if err != nil {
					return err
				}
				t0 := time.Now()
				resp, err := p.Send(gctx, req)
				d := time.Since(t0)
				if resp != nil {
					_ = resp.Body.Close()
				}
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return phaseStats{}, err
	}
	return computeStats(time.Since(start), latencies, failures.Load()), nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
