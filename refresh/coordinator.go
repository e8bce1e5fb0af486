package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authpipe/session"
)

const defaultTimeout = 30 * time.Second

// Outcome classifies how an episode settled.
type Outcome int

const (
	// OutcomeRefreshed means a new pair was stored and handed to every waiter.
	OutcomeRefreshed Outcome = iota
	// OutcomeNoRefreshToken means the store had nothing to exchange.
	OutcomeNoRefreshToken
	// OutcomeRejected means the endpoint refused the refresh token.
	OutcomeRejected
	// OutcomeFailed covers endpoint outages, timeouts and store failures.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeNoRefreshToken:
		return "no_refresh_token"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is delivered to every caller of one episode: either Token or Err is set.
type Result struct {
	Token string
	Err   error
}

// OK reports whether the episode produced a token.
func (r Result) OK() bool {
	return r.Err == nil && r.Token != ""
}

// Episode describes one settled refresh for hooks.
type Episode struct {
	Outcome   Outcome
	Err       error
	Waiters   int // callers that shared the result, initiator included
	Exchanged bool
	Cleared   bool
	Duration  time.Duration
	User      *session.User
}

// Hooks observe episodes. All fields are optional; hooks run on the episode goroutine
// after waiters have been released.
type Hooks struct {
	OnStart   func()
	OnSettled func(Episode)
	Warn      func(format string, args ...any)
}

// Config wires a [Coordinator].
type Config struct {
	// Timeout bounds one remote exchange. Zero means 30s.
	Timeout time.Duration
	// ExpiryOf derives the advisory expiry stored with a new access token.
	ExpiryOf func(accessToken string) (time.Time, bool)
	Hooks    Hooks
	Now      func() time.Time
}

// Coordinator is the single-flight refresh mechanism. Construct one per credential store
// and share it between every pipeline using that store.
type Coordinator struct {
	store    session.Store
	endpoint Endpoint
	timeout  time.Duration
	expiryOf func(string) (time.Time, bool)
	hooks    Hooks
	now      func() time.Time

	mu       sync.Mutex
	inFlight bool
	waiters  []chan Result

	episodes  atomic.Uint64
	exchanges atomic.Uint64
}

// NewCoordinator validates dependencies and returns an idle coordinator.
func NewCoordinator(store session.Store, endpoint Endpoint, cfg Config) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("refresh coordinator requires a credential store")
	}
	if endpoint == nil {
		return nil, errors.New("refresh coordinator requires an endpoint")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("refresh timeout must be >= 0")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Coordinator{
		store:    store,
		endpoint: endpoint,
		timeout:  cfg.Timeout,
		expiryOf: cfg.ExpiryOf,
		hooks:    cfg.Hooks,
		now:      cfg.Now,
	}, nil
}

// Refresh joins the in-flight episode or starts one, then waits for its result.
//
// The episode runs detached from ctx: a caller that gives up gets ctx.Err() but does not
// cancel the exchange other callers are waiting on. The episode is bounded by the
// configured timeout instead.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ch := make(chan Result, 1)
	if c.join(ch) {
		go c.run(context.WithoutCancel(ctx))
	}

	select {
	case res := <-ch:
		return res.Token, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// join queues ch behind earlier callers and reports whether the caller must start
// the episode. Waiters are released in the order they joined.
func (c *Coordinator) join(ch chan Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters = append(c.waiters, ch)
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

// InFlight reports whether an episode is running.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Pending returns the number of callers waiting on the current episode.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Episodes returns the number of settled episodes.
func (c *Coordinator) Episodes() uint64 {
	return c.episodes.Load()
}

// Exchanges returns the number of remote exchanges attempted.
func (c *Coordinator) Exchanges() uint64 {
	return c.exchanges.Load()
}

func (c *Coordinator) run(ctx context.Context) {
	if c.hooks.OnStart != nil {
		c.hooks.OnStart()
	}
	started := c.now()

	res, ep := c.episode(ctx)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	// Buffered channels: abandoned waiters never block the fan-out.
	for _, w := range waiters {
		w <- res
	}

	c.episodes.Add(1)
	ep.Waiters = len(waiters)
	ep.Duration = c.now().Sub(started)
	if c.hooks.OnSettled != nil {
		c.hooks.OnSettled(ep)
	}
}

func (c *Coordinator) episode(ctx context.Context) (Result, Episode) {
	state, err := c.store.Load(ctx)
	if err != nil {
		return c.fail(ctx, OutcomeFailed, err, false)
	}

	refreshToken := state.RefreshToken()
	if refreshToken == "" {
		return c.fail(ctx, OutcomeNoRefreshToken, ErrNoRefreshToken, false)
	}

	exCtx, cancel := context.WithTimeout(ctx, c.timeout)
	c.exchanges.Add(1)
	pair, err := c.endpoint.Exchange(exCtx, refreshToken)
	exErr := exCtx.Err()
	cancel()

	if err != nil {
		switch {
		case errors.Is(err, ErrRejected):
			return c.fail(ctx, OutcomeRejected, err, true)
		case errors.Is(exErr, context.DeadlineExceeded) && !errors.Is(err, ErrEndpointUnavailable):
			return c.fail(ctx, OutcomeFailed, fmt.Errorf("%w: %w", ErrEndpointUnavailable, err), true)
		default:
			return c.fail(ctx, OutcomeFailed, err, true)
		}
	}
	if pair.AccessToken == "" {
		return c.fail(ctx, OutcomeFailed, ErrInvalidResponse, true)
	}

	creds := session.Credentials{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	if c.expiryOf != nil {
		if exp, ok := c.expiryOf(creds.AccessToken); ok {
			creds.ExpiresAt = exp
		}
	}

	if err := c.store.Save(ctx, creds, pair.User); err != nil {
		return c.fail(ctx, OutcomeFailed, err, true)
	}

	user := pair.User
	if user == nil {
		user = state.User
	}
	return Result{Token: creds.AccessToken}, Episode{
		Outcome:   OutcomeRefreshed,
		Exchanged: true,
		User:      user,
	}
}

// fail signs the session out once for the whole episode and builds the shared error.
func (c *Coordinator) fail(ctx context.Context, outcome Outcome, cause error, exchanged bool) (Result, Episode) {
	err := fmt.Errorf("%w: %w", ErrRefreshFailed, cause)

	cleared := true
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		cleared = false
		if c.hooks.Warn != nil {
			c.hooks.Warn("authpipe: session clear after failed refresh failed: %v", clearErr)
		}
	}

	return Result{Err: err}, Episode{
		Outcome:   outcome,
		Err:       err,
		Exchanged: exchanged,
		Cleared:   cleared,
	}
}
