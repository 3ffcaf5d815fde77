// Package registry caches one tracking client per repository endpoint.
//
// An endpoint is identified by host, plain port and SSL port. The first Get for
// an endpoint builds the client through the registry's Factory; concurrent first
// callers share that one construction. Shutdown closes every cached client.
//
// Metrics:
//   - repotrack_registry_clients - number of cached clients
//   - repotrack_registry_client_creations_total{result} - factory calls by outcome
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/fyrsmithlabs/repotrack/internal/config"
	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
	"github.com/fyrsmithlabs/repotrack/internal/tracking"
	"github.com/fyrsmithlabs/repotrack/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Errors for registry operations.
var (
	ErrShutdown   = errors.New("registry is shut down")
	ErrNilFactory = errors.New("factory returned nil client")
)

// Endpoint identifies a repository.
type Endpoint struct {
	Host    string
	Port    int
	SSLPort int
}

// EndpointFor returns the endpoint identity of cfg.
func EndpointFor(cfg config.RepositoryConfig) Endpoint {
	return Endpoint{Host: cfg.Host, Port: cfg.Port, SSLPort: cfg.SSLPort}
}

// String formats the endpoint as host:port/sslPort.
func (e Endpoint) String() string {
	return e.Host + ":" + strconv.Itoa(e.Port) + "/" + strconv.Itoa(e.SSLPort)
}

// Factory builds the client for a repository.
type Factory func(ctx context.Context, cfg config.RepositoryConfig) (tracking.Client, error)

// HTTPFactory returns a Factory building HTTP clients with a pooled transport.
func HTTPFactory(tracker config.TrackerConfig, lookup dictionary.Lookup, logger *zap.Logger, metrics *tracking.Metrics) Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, cfg config.RepositoryConfig) (tracking.Client, error) {
		hc, err := transport.New(cfg, transport.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return tracking.NewHTTPClient(cfg.URL(), lookup,
			tracking.WithHTTPClient(hc),
			tracking.WithLogger(logger),
			tracking.WithMetrics(metrics),
			tracking.WithDiagnosticsWindow(tracker.DiagnosticsWindow),
		)
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRegisterer registers the registry metrics with reg. Without it the
// metrics are kept but not registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		r.registerer = reg
	}
}

type entry struct {
	once   sync.Once
	client tracking.Client
	err    error
}

// Registry caches clients by Endpoint. It is safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	entries    map[Endpoint]*entry
	factory    Factory
	shutdown   bool
	logger     *zap.Logger
	registerer prometheus.Registerer

	clients   prometheus.Gauge
	creations *prometheus.CounterVec
}

// New returns an empty registry using factory to build clients.
func New(factory Factory, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[Endpoint]*entry),
		factory: factory,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registerer)
	r.clients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: "repotrack",
		Subsystem: "registry",
		Name:      "clients",
		Help:      "Number of cached repository clients",
	})
	r.creations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repotrack",
		Subsystem: "registry",
		Name:      "client_creations_total",
		Help:      "Total number of client factory calls by result",
	}, []string{"result"})
	return r
}

// Get returns the client for cfg's endpoint, creating it on first use. A failed
// creation is not cached; the next Get tries again.
func (r *Registry) Get(ctx context.Context, cfg config.RepositoryConfig) (tracking.Client, error) {
	ep := EndpointFor(cfg)

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil, ErrShutdown
	}
	e, ok := r.entries[ep]
	if !ok {
		e = &entry{}
		r.entries[ep] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.client, e.err = r.create(ctx, ep, cfg)
	})
	if e.err != nil {
		r.mu.Lock()
		if r.entries[ep] == e {
			delete(r.entries, ep)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.client, nil
}

func (r *Registry) create(ctx context.Context, ep Endpoint, cfg config.RepositoryConfig) (tracking.Client, error) {
	client, err := r.factory(ctx, cfg)
	if err == nil && client == nil {
		err = ErrNilFactory
	}
	if err != nil {
		r.creations.WithLabelValues("error").Inc()
		r.logger.Warn("repository client creation failed",
			zap.Stringer("endpoint", ep),
			zap.Error(err),
		)
		return nil, fmt.Errorf("creating client for %s: %w", ep, err)
	}

	r.creations.WithLabelValues("ok").Inc()
	r.clients.Inc()
	r.logger.Info("repository client created",
		zap.Stringer("endpoint", ep),
		zap.String("url", cfg.URL()),
	)
	return client, nil
}

// Len returns the number of cached clients, counting ones still being created.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown closes every cached client and rejects later Get calls.
// Clients are closed even when ctx is already done; ctx.Err is then
// returned alongside the joined Close errors.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil
	}
	r.shutdown = true
	entries := r.entries
	r.entries = make(map[Endpoint]*entry)
	r.mu.Unlock()

	var errs []error
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	for ep, e := range entries {
		// waits for a creation still in flight
		e.once.Do(func() {})
		if e.client == nil {
			continue
		}
		if err := e.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing client for %s: %w", ep, err))
		}
		r.clients.Dec()
	}
	r.logger.Info("registry shut down", zap.Int("clients", len(entries)))
	return errors.Join(errs...)
}
