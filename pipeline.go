package authpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authpipe/internal/audit"
	"github.com/MrEthical07/authpipe/internal/flows"
	"github.com/MrEthical07/authpipe/jwt"
	"github.com/MrEthical07/authpipe/refresh"
	"github.com/MrEthical07/authpipe/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// drainLimit bounds how much of a discarded 401 body is read for connection reuse.
const drainLimit = 4 << 10

// Pipeline is an http.RoundTripper that attaches the stored bearer token, refreshes
// it shortly before expiry, and repairs the session once after a 401.
//
// Redirect hops that leave the original scheme, host and port go out without
// credentials and without recovery. A request is replayed at most once across
// all of its redirect hops.
//
// A Pipeline is safe for concurrent use. Every pipeline sharing a credential store
// should share one refresh coordinator (see [Builder.WithCoordinator]).
type Pipeline struct {
	config      Config
	transport   http.RoundTripper
	store       session.Store
	coordinator *refresh.Coordinator
	codec       *jwt.Codec
	logger      logrus.FieldLogger
	notifier    Notifier
	metrics     *Metrics
	audit       *audit.Dispatcher
	now         func() time.Time
	flows       flows.Deps
	client      *http.Client
	closed      atomic.Bool
}

// tripNote records what happened to one request beyond its response. Send shares
// one note across every redirect hop of a request.
type tripNote struct {
	requestID     string
	recovery      flows.RecoverFailureKind
	refreshErr    error
	notReplayable bool
	// replayed is sticky: once any hop was replayed, later hops are not.
	replayed bool
}

type tripNoteContextKey struct{}

// RoundTrip implements http.RoundTripper. The caller's request is never mutated;
// its body is consumed and closed.
func (p *Pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	holder := noteFromRequest(req)
	resp, note, err := p.roundTrip(req, holder)
	if holder != nil {
		note.replayed = note.replayed || holder.replayed
		*holder = note
	}
	return resp, err
}

func noteFromRequest(req *http.Request) *tripNote {
	if req == nil {
		return nil
	}
	holder, _ := req.Context().Value(tripNoteContextKey{}).(*tripNote)
	return holder
}

func (p *Pipeline) roundTrip(req *http.Request, holder *tripNote) (*http.Response, tripNote, error) {
	var note tripNote
	if p == nil || p.closed.Load() {
		closeRequestBody(req)
		return nil, note, ErrPipelineNotReady
	}
	if req == nil || req.URL == nil {
		closeRequestBody(req)
		return nil, note, errors.New("authpipe: nil request or URL")
	}

	ctx := req.Context()
	start := p.now()
	p.metrics.Inc(MetricRequests)
	defer func() {
		p.metrics.Observe(MetricRequestLatency, p.now().Sub(start))
	}()

	out := req.Clone(ctx)
	note.requestID = p.ensureRequestID(out)

	crossOrigin := leftOrigin(req)
	if skipAuthFromContext(ctx) || crossOrigin {
		if crossOrigin {
			p.logger.WithField("request_id", note.requestID).Debug("authpipe: redirect left the original origin, sending without credentials")
		}
		p.metrics.Inc(MetricRequestsUnauthenticated)
		resp, err := p.transport.RoundTrip(out)
		bindRequest(resp, out)
		p.observeOutcome(ctx, out, note, resp, err)
		return resp, note, err
	}

	replayable, err := p.prepareReplay(out)
	if err != nil {
		closeRequestBody(out)
		return nil, note, fmt.Errorf("%w: buffer request body: %v", ErrTransport, err)
	}

	attach := flows.RunAttach(ctx, p.flows.Attach)
	if attach.Proactive {
		p.metrics.Inc(MetricProactiveRefresh)
	}
	if attach.Degraded || attach.Failure == flows.AttachFailureRefresh {
		p.metrics.Inc(MetricProactiveRefreshFailure)
	}
	switch attach.Failure {
	case flows.AttachFailureStore:
		closeRequestBody(out)
		return nil, note, fmt.Errorf("%w: %w", ErrCredentialStore, attach.Err)
	case flows.AttachFailureRefresh, flows.AttachFailureCanceled:
		closeRequestBody(out)
		return nil, note, attach.Err
	}
	if attach.Token == "" {
		p.metrics.Inc(MetricRequestsUnauthenticated)
	}
	p.authorize(out, attach.Token)

	resp, err := p.transport.RoundTrip(out)
	if err != nil {
		p.observeOutcome(ctx, out, note, nil, err)
		return nil, note, err
	}
	bindRequest(resp, out)

	in := flows.RecoverInput{
		Status:    resp.StatusCode,
		SentToken: attach.Token,
		Retried:   retriedFromContext(ctx) || replayedEarlier(req) || (holder != nil && holder.replayed),
	}
	if attach.Degraded {
		in.PriorErr = attach.Err
	}
	rec := flows.RunRecover(ctx, in, p.flows.Recover)
	note.recovery = rec.Failure
	note.refreshErr = rec.Err
	if (rec.Replay && !rec.Rotated) || (rec.Failure == flows.RecoverFailureRefresh && !rec.Prior) {
		p.metrics.Inc(MetricReactiveRefresh)
	}
	if !rec.Replay {
		p.recoveryFailed(ctx, out, rec)
		p.observeOutcome(ctx, out, note, resp, nil)
		return resp, note, nil
	}

	var retry *http.Request
	if replayable {
		retry, err = p.replayRequest(out, rec.Token)
	}
	if !replayable || err != nil {
		note.notReplayable = true
		p.metrics.Inc(MetricBodyNotReplayable)
		p.logger.WithField("request_id", note.requestID).Warn("authpipe: 401 not replayed, request body already consumed")
		p.emitAudit(ctx, p.requestEvent(out, AuditNotReplayable, resp.StatusCode, false))
		p.observeOutcome(ctx, out, note, resp, nil)
		return resp, note, nil
	}

	drainAndClose(resp.Body)
	note.replayed = true
	p.metrics.Inc(MetricReplay)
	if rec.Rotated {
		p.metrics.Inc(MetricReplayRotated)
	}
	p.emitAudit(ctx, p.requestEvent(out, AuditRequestReplayed, resp.StatusCode, true))

	retryResp, err := p.transport.RoundTrip(retry)
	if err != nil {
		p.observeOutcome(ctx, retry, note, nil, err)
		return nil, note, err
	}
	bindRequest(retryResp, retry)

	final := flows.RunRecover(retry.Context(), flows.RecoverInput{
		Status:    retryResp.StatusCode,
		SentToken: rec.Token,
		Retried:   true,
	}, p.flows.Recover)
	if final.Failure == flows.RecoverFailureAlreadyRetried {
		note.recovery = final.Failure
		p.metrics.Inc(MetricReplayUnauthorized)
		p.emitAudit(ctx, p.requestEvent(retry, AuditReplayRejected, retryResp.StatusCode, false))
	}
	p.observeOutcome(ctx, retry, note, retryResp, nil)
	return retryResp, note, nil
}

// Send performs req through the pipeline's client and classifies the outcome.
// For 401, 403 and 5xx responses both the response and a *[ResponseError] are
// returned; the caller must close the body.
func (p *Pipeline) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if p == nil || p.closed.Load() {
		closeRequestBody(req)
		return nil, ErrPipelineNotReady
	}
	if req == nil {
		return nil, errors.New("authpipe: nil request")
	}
	if ctx == nil {
		ctx = req.Context()
	}

	note := &tripNote{}
	req = req.WithContext(context.WithValue(ctx, tripNoteContextKey{}, note))

	resp, err := p.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, ErrRefreshFailed),
			errors.Is(err, ErrCredentialStore),
			errors.Is(err, ErrPipelineNotReady),
			errors.Is(err, ErrTransport):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}

	kind := Classify(resp, nil)
	if kind == FailureNone {
		return resp, nil
	}

	var cause error
	if kind == FailureUnauthenticated {
		switch {
		case note.notReplayable:
			cause = ErrBodyNotReplayable
		case note.refreshErr != nil:
			cause = note.refreshErr
		case note.recovery == flows.RecoverFailureNoRefreshToken:
			cause = ErrNoRefreshToken
		}
	}
	return resp, newResponseError(kind, resp, note.requestID, cause)
}

// Client returns an *http.Client that sends through the pipeline with the
// configured request timeout.
func (p *Pipeline) Client() *http.Client {
	return p.client
}

// Coordinator returns the refresh coordinator, for sharing with other pipelines
// over the same store.
func (p *Pipeline) Coordinator() *refresh.Coordinator {
	return p.coordinator
}

// Refresh forces a refresh through the shared coordinator.
func (p *Pipeline) Refresh(ctx context.Context) (string, error) {
	if p == nil || p.closed.Load() {
		return "", ErrPipelineNotReady
	}
	return p.coordinator.Refresh(ctx)
}

// Session returns the current credentials and user.
func (p *Pipeline) Session(ctx context.Context) (session.State, error) {
	if p == nil || p.closed.Load() {
		return session.State{}, ErrPipelineNotReady
	}
	return p.store.Load(ctx)
}

// SignIn stores a credential pair issued elsewhere. ExpiresAt is derived from the
// access token when unset.
func (p *Pipeline) SignIn(ctx context.Context, creds session.Credentials, user *session.User) error {
	if p == nil || p.closed.Load() {
		return ErrPipelineNotReady
	}
	if creds.ExpiresAt.IsZero() {
		if exp, ok := p.codec.ExpiresAt(creds.AccessToken); ok {
			creds.ExpiresAt = exp
		}
	}
	if err := p.store.Save(ctx, creds, user); err != nil {
		return err
	}

	ev := AuditEvent{EventType: AuditSignedIn, Success: true}
	if user != nil {
		ev.UserID = user.ID
	}
	p.emitAudit(ctx, ev)
	return nil
}

// SignOut clears the session.
func (p *Pipeline) SignOut(ctx context.Context) error {
	if p == nil || p.closed.Load() {
		return ErrPipelineNotReady
	}
	if err := p.store.Clear(ctx); err != nil {
		return err
	}
	p.emitAudit(ctx, AuditEvent{EventType: AuditSignedOut, Success: true})
	return nil
}

// Close stops the pipeline and drains pending audit events. Idempotent.
func (p *Pipeline) Close() {
	if p == nil {
		return
	}
	if p.closed.CompareAndSwap(false, true) {
		p.audit.Close()
	}
}

// MetricsSnapshot returns the current counters and histograms.
func (p *Pipeline) MetricsSnapshot() MetricsSnapshot {
	if p == nil {
		return (*Metrics)(nil).Snapshot()
	}
	snap := p.metrics.Snapshot()
	if !p.metrics.Enabled() {
		return snap
	}

	var inFlight int64
	if p.coordinator.InFlight() {
		inFlight = 1
	}
	snap.Gauges = map[string]int64{
		GaugeRefreshInFlight: inFlight,
		GaugeRefreshWaiters:  int64(p.coordinator.Pending()),
		GaugeAuditQueued:     int64(p.audit.Stats().Queued),
	}
	return snap
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (p *Pipeline) AuditDropped() uint64 {
	if p == nil {
		return 0
	}
	return p.audit.Dropped()
}

func (p *Pipeline) authorize(r *http.Request, token string) {
	if token == "" {
		return
	}
	value := token
	if scheme := p.config.Transport.Scheme; scheme != "" {
		value = scheme + " " + token
	}
	r.Header.Set(p.config.Transport.AuthorizationHeader, value)
}

func (p *Pipeline) ensureRequestID(r *http.Request) string {
	h := p.config.Transport.RequestIDHeader
	if h == "" {
		return ""
	}
	id := r.Header.Get(h)
	if id == "" {
		id = uuid.NewString()
		r.Header.Set(h, id)
	}
	return id
}

// prepareReplay makes r's body replayable when it can: bodies with GetBody are
// already replayable, others are buffered up to MaxReplayBodyBytes. Larger bodies
// stream through and are reported as not replayable.
func (p *Pipeline) prepareReplay(r *http.Request) (bool, error) {
	if r.Body == nil || r.Body == http.NoBody || r.GetBody != nil {
		return true, nil
	}

	limit := p.config.Transport.MaxReplayBodyBytes
	if limit <= 0 {
		return false, nil
	}

	orig := r.Body
	buf, err := io.ReadAll(io.LimitReader(orig, limit+1))
	if err != nil {
		return false, err
	}
	if int64(len(buf)) > limit {
		r.Body = &prefixedBody{Reader: io.MultiReader(bytes.NewReader(buf), orig), closer: orig}
		return false, nil
	}
	_ = orig.Close()

	r.ContentLength = int64(len(buf))
	if len(buf) == 0 {
		r.Body = http.NoBody
		r.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		return true, nil
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return true, nil
}

func (p *Pipeline) replayRequest(sent *http.Request, token string) (*http.Request, error) {
	retry := sent.Clone(WithRetried(sent.Context()))
	if sent.Body != nil && sent.Body != http.NoBody {
		if sent.GetBody == nil {
			return nil, ErrBodyNotReplayable
		}
		body, err := sent.GetBody()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBodyNotReplayable, err)
		}
		retry.Body = body
	}
	p.authorize(retry, token)
	return retry, nil
}

func (p *Pipeline) recoveryFailed(ctx context.Context, r *http.Request, rec flows.RecoverResult) {
	switch rec.Failure {
	case flows.RecoverFailureNoRefreshToken:
		if !rec.Cleared {
			return
		}
		p.metrics.Inc(MetricSessionCleared)
		p.notifier.Notify(ctx, Notice{
			Kind:       NoticeSessionCleared,
			Message:    "You are signed out. Please sign in again.",
			RequestID:  r.Header.Get(p.config.Transport.RequestIDHeader),
			StatusCode: http.StatusUnauthorized,
			Err:        ErrNoRefreshToken,
		})
		p.emitAudit(ctx, p.requestEvent(r, AuditSessionCleared, http.StatusUnauthorized, false))
	case flows.RecoverFailureStore:
		p.warnf("authpipe: credential store unavailable during 401 recovery: %v", rec.Err)
	case flows.RecoverFailureAlreadyRetried:
		p.metrics.Inc(MetricReplayUnauthorized)
	}
}

func (p *Pipeline) observeOutcome(ctx context.Context, r *http.Request, note tripNote, resp *http.Response, err error) {
	switch Classify(resp, err) {
	case FailureTransport:
		p.metrics.Inc(MetricTransportError)
	case FailureUnauthenticated:
		p.metrics.Inc(MetricUnauthorized)
	case FailureServer:
		p.metrics.Inc(MetricServerError)
	case FailureForbidden:
		p.metrics.Inc(MetricForbidden)
		p.notifier.Notify(ctx, Notice{
			Kind:       NoticeForbidden,
			Message:    "You do not have permission to perform this action.",
			RequestID:  note.requestID,
			StatusCode: resp.StatusCode,
			Err:        ErrForbidden,
		})
		p.emitAudit(ctx, p.requestEvent(r, AuditForbidden, resp.StatusCode, false))
	}
}

func (p *Pipeline) episodeHooks() refresh.Hooks {
	return refresh.Hooks{
		OnSettled: p.onEpisode,
		Warn:      p.warnf,
	}
}

func (p *Pipeline) onEpisode(ep refresh.Episode) {
	p.metrics.Inc(MetricRefreshEpisode)
	if ep.Waiters > 1 {
		p.metrics.Add(MetricRefreshCoalesced, uint64(ep.Waiters-1))
	}
	p.metrics.Observe(MetricRefreshLatency, ep.Duration)

	ctx := context.Background()
	fields := logrus.Fields{
		"outcome":     ep.Outcome.String(),
		"waiters":     ep.Waiters,
		"duration_ms": ep.Duration.Milliseconds(),
	}
	meta := map[string]string{
		"outcome": ep.Outcome.String(),
		"waiters": fmt.Sprint(ep.Waiters),
	}

	if ep.Outcome == refresh.OutcomeRefreshed {
		p.metrics.Inc(MetricRefreshSuccess)
		p.logger.WithFields(fields).Debug("authpipe: session refreshed")
		p.emitAudit(ctx, AuditEvent{
			EventType: AuditRefreshSucceeded,
			UserID:    userID(ep.User),
			Success:   true,
			Metadata:  meta,
		})
		return
	}

	p.metrics.Inc(MetricRefreshFailure)
	p.logger.WithFields(fields).WithError(ep.Err).Warn("authpipe: session refresh failed")
	p.emitAudit(ctx, AuditEvent{
		EventType: AuditRefreshFailed,
		Error:     ep.Err.Error(),
		Metadata:  meta,
	})
	if !ep.Cleared {
		return
	}
	p.metrics.Inc(MetricSessionCleared)
	p.notifier.Notify(ctx, Notice{
		Kind:    NoticeSessionCleared,
		Message: "Your session has expired. Please sign in again.",
		Err:     ep.Err,
	})
	p.emitAudit(ctx, AuditEvent{EventType: AuditSessionCleared, Metadata: meta})
}

// requestEvent builds an audit event for r. The query string is omitted.
func (p *Pipeline) requestEvent(r *http.Request, eventType string, status int, success bool) AuditEvent {
	ev := AuditEvent{
		EventType:  eventType,
		Method:     r.Method,
		StatusCode: status,
		Success:    success,
	}
	if h := p.config.Transport.RequestIDHeader; h != "" {
		ev.RequestID = r.Header.Get(h)
	}
	if r.URL != nil {
		ev.Host = r.URL.Host
		ev.Path = r.URL.Path
	}
	return ev
}

func (p *Pipeline) emitAudit(ctx context.Context, ev AuditEvent) {
	if p.audit == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Timestamp = p.now().UTC()
	p.audit.Emit(ctx, ev)
}

func (p *Pipeline) warnf(format string, args ...any) {
	p.logger.Warnf(format, args...)
}

func userID(u *session.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

type prefixedBody struct {
	io.Reader
	closer io.Closer
}

func (b *prefixedBody) Close() error {
	return b.closer.Close()
}

// leftOrigin reports whether req is a redirect hop to a different scheme, host or
// port than the request the caller made.
func leftOrigin(req *http.Request) bool {
	first := req
	for first.Response != nil && first.Response.Request != nil {
		first = first.Response.Request
	}
	if first == req || first.URL == nil {
		return false
	}
	return origin(first.URL) != origin(req.URL)
}

func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	return scheme + "://" + net.JoinHostPort(strings.ToLower(u.Hostname()), port)
}

// replayedEarlier reports whether an earlier hop in req's redirect chain was
// already a replay.
func replayedEarlier(req *http.Request) bool {
	for resp := req.Response; resp != nil && resp.Request != nil; resp = resp.Request.Response {
		if retriedFromContext(resp.Request.Context()) {
			return true
		}
	}
	return false
}

// bindRequest records the request that was sent, so later redirect hops can see
// their chain even behind transports that leave Response.Request unset.
func bindRequest(resp *http.Response, sent *http.Request) {
	if resp != nil && resp.Request == nil {
		resp.Request = sent
	}
}

func closeRequestBody(r *http.Request) {
	if r != nil && r.Body != nil {
		_ = r.Body.Close()
	}
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, body, drainLimit)
	_ = body.Close()
}
