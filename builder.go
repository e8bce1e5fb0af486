package authpipe

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/authpipe/internal/audit"
	"github.com/MrEthical07/authpipe/internal/flows"
	"github.com/MrEthical07/authpipe/jwt"
	"github.com/MrEthical07/authpipe/refresh"
	"github.com/MrEthical07/authpipe/session"
	"github.com/sirupsen/logrus"
)

// Builder assembles a [Pipeline]. A builder can be used once.
type Builder struct {
	config Config

	transport   http.RoundTripper
	store       session.Store
	endpoint    refresh.Endpoint
	coordinator *refresh.Coordinator

	logger    logrus.FieldLogger
	notifier  Notifier
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithTransport sets the wrapped transport. Defaults to http.DefaultTransport.
func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.transport = rt
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithEndpoint sets the refresh endpoint the pipeline's own coordinator exchanges
// against. Mutually exclusive with WithCoordinator.
func (b *Builder) WithEndpoint(endpoint refresh.Endpoint) *Builder {
	b.endpoint = endpoint
	return b
}

// WithCoordinator shares an existing coordinator, typically taken from another
// pipeline's Coordinator(), so that every pipeline over one store refreshes
// through a single flight. The coordinator must use the same store.
func (b *Builder) WithCoordinator(c *refresh.Coordinator) *Builder {
	b.coordinator = c
	return b
}

// WithLogger sets the logger for best-effort failures and refresh outcomes.
// Defaults to logrus.StandardLogger().
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithNotifier sets the user-facing notifier. Defaults to a [LogNotifier].
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit sink. Audit must also be enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now for expiry checks and latency measurement.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.endpoint == nil && b.coordinator == nil {
		return nil, errors.New("refresh endpoint or coordinator required")
	}
	if b.endpoint != nil && b.coordinator != nil {
		return nil, errors.New("WithEndpoint and WithCoordinator are mutually exclusive")
	}

	transport := b.transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if _, ok := transport.(*Pipeline); ok {
		return nil, errors.New("transport must not be another pipeline")
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	p := &Pipeline{
		config:    cfg,
		transport: transport,
		store:     b.store,
		codec:     jwt.NewCodec(),
		logger:    logger,
		notifier:  notifier,
		metrics:   NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		now: now,
	}

	coordinator := b.coordinator
	if coordinator == nil {
		c, err := refresh.NewCoordinator(b.store, b.endpoint, refresh.Config{
			Timeout:  cfg.RefreshTimeout(),
			ExpiryOf: p.codec.ExpiresAt,
			Hooks:    p.episodeHooks(),
			Now:      now,
		})
		if err != nil {
			p.audit.Close()
			return nil, err
		}
		coordinator = c
	}
	p.coordinator = coordinator

	p.flows = flows.Deps{
		Attach: flows.AttachDeps{
			Store:            b.store,
			Refresher:        coordinator,
			IsExpiringSoon:   p.codec.IsExpiringSoon,
			Now:              now,
			Threshold:        cfg.Refresh.ProactiveThreshold,
			ProceedOnFailure: cfg.Refresh.ProceedOnProactiveFailure,
			Warn:             p.warnf,
		},
		Recover: flows.RecoverDeps{
			Store:     b.store,
			Refresher: coordinator,
			Warn:      p.warnf,
		},
	}

	p.client = &http.Client{
		Transport: p,
		Timeout:   cfg.Transport.RequestTimeout,
	}

	b.built = true

	return p, nil
}
