package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/config"
	"github.com/fyrsmithlabs/repotrack/internal/logging"
	"github.com/fyrsmithlabs/repotrack/internal/tracking"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// closingClient counts Close calls.
type closingClient struct {
	*tracking.MemoryRepository
	closes   atomic.Int32
	closeErr error
}

func (c *closingClient) Close() error {
	c.closes.Add(1)
	return c.closeErr
}

func repo(host string, port, sslPort int) config.RepositoryConfig {
	cfg := config.Default().Repository
	cfg.Host, cfg.Port, cfg.SSLPort = host, port, sslPort
	return cfg
}

func countingFactory(calls *atomic.Int32, made *[]*closingClient, mu *sync.Mutex) Factory {
	return func(context.Context, config.RepositoryConfig) (tracking.Client, error) {
		calls.Add(1)
		c := &closingClient{MemoryRepository: tracking.NewMemoryRepository(nil)}
		mu.Lock()
		*made = append(*made, c)
		mu.Unlock()
		return c, nil
	}
}

func TestEndpoint(t *testing.T) {
	cfg := repo("repo.internal", 8080, 8443)
	ep := EndpointFor(cfg)
	assert.Equal(t, Endpoint{Host: "repo.internal", Port: 8080, SSLPort: 8443}, ep)
	assert.Equal(t, "repo.internal:8080/8443", ep.String())

	// the base url and credentials are not part of the identity
	other := cfg
	other.BaseURL = "/other"
	other.APIKey = "k"
	assert.Equal(t, ep, EndpointFor(other))
}

func TestRegistry_GetCachesPerEndpoint(t *testing.T) {
	var calls atomic.Int32
	var made []*closingClient
	var mu sync.Mutex
	reg := prometheus.NewRegistry()
	r := New(countingFactory(&calls, &made, &mu), WithRegisterer(reg))
	ctx := context.Background()

	a1, err := r.Get(ctx, repo("a", 8080, 8443))
	require.NoError(t, err)
	a2, err := r.Get(ctx, repo("a", 8080, 8443))
	require.NoError(t, err)
	assert.Same(t, a1, a2)

	b, err := r.Get(ctx, repo("a", 8080, 9443))
	require.NoError(t, err)
	assert.NotSame(t, a1, b)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, float64(2), testutil.ToFloat64(r.clients))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.creations.WithLabelValues("ok")))

	count, err := testutil.GatherAndCount(reg, "repotrack_registry_clients", "repotrack_registry_client_creations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRegistry_ConcurrentFirstUse(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	r := New(func(context.Context, config.RepositoryConfig) (tracking.Client, error) {
		calls.Add(1)
		<-release
		return tracking.NewMemoryRepository(nil), nil
	})

	const workers = 16
	var wg sync.WaitGroup
	got := make([]tracking.Client, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.Get(context.Background(), repo("shared", 8080, 8443))
			assert.NoError(t, err)
			got[i] = c
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, c := range got {
		assert.Same(t, got[0], c)
	}
}

func TestRegistry_FailedCreationNotCached(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	logger := logging.NewTestLogger()
	r := New(func(context.Context, config.RepositoryConfig) (tracking.Client, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return tracking.NewMemoryRepository(nil), nil
	}, WithLogger(logger.Underlying()))

	_, err := r.Get(context.Background(), repo("flaky", 1, 2))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "flaky:1/2")
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(r.creations.WithLabelValues("error")))
	logger.AssertLogged(t, zapcore.WarnLevel, "repository client creation failed")

	c, err := r.Get(context.Background(), repo("flaky", 1, 2))
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, int32(2), calls.Load())
	logger.AssertField(t, "repository client created", "endpoint", "flaky:1/2")
}

func TestRegistry_NilClient(t *testing.T) {
	r := New(func(context.Context, config.RepositoryConfig) (tracking.Client, error) {
		return nil, nil
	})
	_, err := r.Get(context.Background(), repo("x", 1, 2))
	assert.ErrorIs(t, err, ErrNilFactory)
}

func TestRegistry_Shutdown(t *testing.T) {
	var calls atomic.Int32
	var made []*closingClient
	var mu sync.Mutex
	r := New(countingFactory(&calls, &made, &mu))
	ctx := context.Background()

	for port := range 3 {
		_, err := r.Get(ctx, repo("h", 8000+port, 8443))
		require.NoError(t, err)
	}
	made[1].closeErr = errors.New("close failed")

	err := r.Shutdown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close failed")
	for _, c := range made {
		assert.Equal(t, int32(1), c.closes.Load())
	}
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, float64(0), testutil.ToFloat64(r.clients))

	_, err = r.Get(ctx, repo("h", 8000, 8443))
	assert.ErrorIs(t, err, ErrShutdown)

	// second shutdown is a no-op
	require.NoError(t, r.Shutdown(ctx))
	for _, c := range made {
		assert.Equal(t, int32(1), c.closes.Load())
	}
}

func TestRegistry_ShutdownCanceled(t *testing.T) {
	var calls atomic.Int32
	var made []*closingClient
	var mu sync.Mutex
	r := New(countingFactory(&calls, &made, &mu))
	for port := range 3 {
		_, err := r.Get(context.Background(), repo("h", 1+port, 2))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.Canceled)

	require.Len(t, made, 3)
	for _, c := range made {
		assert.Equal(t, int32(1), c.closes.Load())
	}
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, float64(0), testutil.ToFloat64(r.clients))
}

func TestHTTPFactory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alfresco/service/api/solr/nextTransaction", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Alfresco-Search-Secret"))
		_, _ = w.Write([]byte(`{"nextTransactionCommitTimeMs":1234}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Repository.Host = u.Hostname()
	cfg.Repository.Port = port
	cfg.Repository.APIKey = "key"

	r := New(HTTPFactory(cfg.Tracker, nil, nil, nil))
	c, err := r.Get(context.Background(), cfg.Repository)
	require.NoError(t, err)
	require.IsType(t, &tracking.HTTPClient{}, c)
	assert.Equal(t, srv.URL+"/alfresco/service", c.(*tracking.HTTPClient).BaseURL())

	next, err := c.GetNextTxCommitTime(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), next)

	require.NoError(t, r.Shutdown(context.Background()))
	_, err = c.GetNextTxCommitTime(context.Background(), 1000)
	assert.ErrorIs(t, err, tracking.ErrClosed)
}

func TestHTTPFactory_TLSError(t *testing.T) {
	cfg := config.Default()
	cfg.Repository.SecureComms = "https"
	cfg.Repository.TLS.CAFile = "/does/not/exist.pem"

	r := New(HTTPFactory(cfg.Tracker, nil, nil, nil))
	_, err := r.Get(context.Background(), cfg.Repository)
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}
