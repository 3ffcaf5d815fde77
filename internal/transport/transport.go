// Package transport builds the pooled HTTP client used to reach the repository.
//
// The client applies configured credentials (API key header, mutual TLS),
// tags each request with an X-Request-ID, optionally negotiates compressed
// responses and limits the outgoing request rate.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/config"
	"github.com/fyrsmithlabs/repotrack/internal/logging"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HeaderRequestID carries the per-request id.
const HeaderRequestID = "X-Request-ID"

// ErrTLSConfig is returned when the TLS material cannot be loaded.
var ErrTLSConfig = errors.New("invalid tls configuration")

// Option configures New.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	userAgent string
	base      http.RoundTripper
}

// WithLogger logs each request at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithBaseTransport replaces the pooled transport. Used by tests.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

// New returns an http.Client configured from cfg.
func New(cfg config.RepositoryConfig, opts ...Option) (*http.Client, error) {
	o := &options{logger: zap.NewNop(), userAgent: "repotrack"}
	for _, opt := range opts {
		opt(o)
	}

	timeout := cfg.SocketTimeout.Duration()
	rt := o.base
	if rt == nil {
		pooled, err := newPooledTransport(cfg, timeout)
		if err != nil {
			return nil, err
		}
		rt = pooled
	}
	pool := rt
	if cfg.Compression {
		rt = gzhttp.Transport(rt)
	}

	rt = &headerTransport{
		next:         rt,
		pool:         pool,
		apiKey:       cfg.APIKey.Value(),
		apiKeyHeader: cfg.APIKeyHeader,
		userAgent:    o.userAgent,
		logger:       o.logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		rt = &rateLimitTransport{next: rt, limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)}
	}

	return &http.Client{Transport: rt}, nil
}

func newPooledTransport(cfg config.RepositoryConfig, timeout time.Duration) (*http.Transport, error) {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxTotalConnections,
		MaxIdleConnsPerHost:   cfg.MaxHostConnections,
		MaxConnsPerHost:       cfg.MaxHostConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		// gzhttp negotiates compression when enabled
		DisableCompression: true,
	}
	if cfg.Secure() {
		tc, err := TLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		t.TLSClientConfig = tc
	}
	return t, nil
}

// TLSConfig loads the client certificate and CA bundle named by files.
func TLSConfig(files config.TLSFiles) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: files.InsecureSkipVerify, //nolint:gosec // operator opt-in
	}
	if files.CAFile != "" {
		pem, err := os.ReadFile(files.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading ca file: %v", ErrTLSConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrTLSConfig, files.CAFile)
		}
		tc.RootCAs = pool
	}
	if files.CertFile != "" || files.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client certificate: %v", ErrTLSConfig, err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

// headerTransport sets the credential, user agent and request id headers. The
// request id is the caller's header, the id in the request context, or a new
// UUID, in that order.
type headerTransport struct {
	next         http.RoundTripper
	pool         http.RoundTripper
	apiKey       string
	apiKeyHeader string
	userAgent    string
	logger       *zap.Logger
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get(HeaderRequestID) == "" {
		id := logging.RequestIDFromContext(req.Context())
		if id == "" {
			id = uuid.NewString()
		}
		req.Header.Set(HeaderRequestID, id)
	}
	if t.apiKey != "" && t.apiKeyHeader != "" {
		req.Header.Set(t.apiKeyHeader, t.apiKey)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug("repository request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("request_id", req.Header.Get(HeaderRequestID)),
			zap.Error(err),
		)
		return nil, err
	}
	t.logger.Debug("repository request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("request_id", req.Header.Get(HeaderRequestID)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// rateLimitTransport waits for the limiter before each request.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return t.next.RoundTrip(req)
}

// CloseIdleConnections releases idle pooled connections. http.Client.CloseIdleConnections
// calls it.
func (t *headerTransport) CloseIdleConnections() { closeIdle(t.pool) }

// CloseIdleConnections forwards to the wrapped transport.
func (t *rateLimitTransport) CloseIdleConnections() { closeIdle(t.next) }

func closeIdle(rt http.RoundTripper) {
	if c, ok := rt.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
