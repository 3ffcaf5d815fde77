package transport

import (
	"context"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/repotrack/internal/config"
	"github.com/fyrsmithlabs/repotrack/internal/logging"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func repoConfig() config.RepositoryConfig {
	return config.Default().Repository
}

func TestNew_Headers(t *testing.T) {
	var mu sync.Mutex
	var seen []http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Clone())
		mu.Unlock()
	}))
	defer srv.Close()

	cfg := repoConfig()
	cfg.APIKey = "s3cr3t"
	c, err := New(cfg, WithUserAgent("repotrack-test"))
	require.NoError(t, err)

	for range 2 {
		resp, err := c.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "caller-id")
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, seen, 3)
	for _, h := range seen {
		assert.Equal(t, "s3cr3t", h.Get("X-Alfresco-Search-Secret"))
		assert.Equal(t, "repotrack-test", h.Get("User-Agent"))
	}
	first, err := uuid.Parse(seen[0].Get(HeaderRequestID))
	require.NoError(t, err)
	second, err := uuid.Parse(seen[1].Get(HeaderRequestID))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "caller-id", seen[2].Get(HeaderRequestID))

	// the caller's request is not modified
	assert.Empty(t, req.Header.Get("X-Alfresco-Search-Secret"))
}

func TestNew_RequestIDFromContext(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get(HeaderRequestID)
	}))
	defer srv.Close()

	c, err := New(repoConfig())
	require.NoError(t, err)

	ctx := logging.WithRequestID(context.Background(), "follow-7f3a")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "follow-7f3a", <-got)
}

func TestNew_NoAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Alfresco-Search-Secret"))
	}))
	defer srv.Close()

	c, err := New(repoConfig())
	require.NoError(t, err)
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestNew_Compression(t *testing.T) {
	text := strings.Repeat("extracted text ", 500)
	var acceptEncoding string
	srv := httptest.NewServer(gzhttp.GzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acceptEncoding = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, text)
	})))
	defer srv.Close()

	cfg := repoConfig()
	cfg.Compression = true
	c, err := New(cfg)
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, acceptEncoding, "gzip")
	assert.Equal(t, text, string(body))
}

func TestNew_CompressionOff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Accept-Encoding"))
	}))
	defer srv.Close()

	c, err := New(repoConfig())
	require.NoError(t, err)
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestNew_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := repoConfig()
	cfg.RateLimit = 0.5
	cfg.RateBurst = 1
	c, err := New(cfg)
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	// the next token is two seconds away
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = c.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestNew_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	c, err := New(repoConfig(), WithLogger(zap.New(core)))
	require.NoError(t, err)
	resp, err := c.Get(srv.URL + "/api/solr/acls")
	require.NoError(t, err)
	resp.Body.Close()

	entries := logs.FilterMessage("repository request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/solr/acls", fields["path"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestNew_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "secure")
	}))
	defer srv.Close()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(caFile, caPEM, 0600))

	cfg := repoConfig()
	cfg.SecureComms = "https"
	cfg.TLS.CAFile = caFile
	c, err := New(cfg)
	require.NoError(t, err)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "secure", string(body))

	// without the CA the server certificate is rejected
	cfg.TLS.CAFile = ""
	untrusted, err := New(cfg)
	require.NoError(t, err)
	_, err = untrusted.Get(srv.URL)
	assert.Error(t, err)
}

func TestTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a pem"), 0600))

	tests := []struct {
		name  string
		files config.TLSFiles
	}{
		{"missing ca", config.TLSFiles{CAFile: filepath.Join(dir, "missing.pem")}},
		{"empty ca", config.TLSFiles{CAFile: garbage}},
		{"bad key pair", config.TLSFiles{CertFile: garbage, KeyFile: garbage}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TLSConfig(tt.files)
			assert.ErrorIs(t, err, ErrTLSConfig)
		})
	}

	cfg := repoConfig()
	cfg.SecureComms = "https"
	cfg.TLS.CAFile = garbage
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrTLSConfig)
}

func TestNewPooledTransport(t *testing.T) {
	cfg := repoConfig()
	cfg.MaxTotalConnections = 10
	cfg.MaxHostConnections = 4
	cfg.SocketTimeout = config.Duration(5 * time.Second)

	tr, err := newPooledTransport(cfg, cfg.SocketTimeout.Duration())
	require.NoError(t, err)
	assert.Equal(t, 10, tr.MaxIdleConns)
	assert.Equal(t, 4, tr.MaxConnsPerHost)
	assert.Equal(t, 4, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 5*time.Second, tr.ResponseHeaderTimeout)
	assert.True(t, tr.DisableCompression)
	assert.Nil(t, tr.TLSClientConfig)
}

type countingRoundTripper struct {
	idleClosed int
}

func (c *countingRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: http.Header{}}, nil
}

func (c *countingRoundTripper) CloseIdleConnections() { c.idleClosed++ }

func TestNew_CloseIdleConnections(t *testing.T) {
	base := &countingRoundTripper{}
	cfg := repoConfig()
	cfg.Compression = true
	cfg.RateLimit = 100

	c, err := New(cfg, WithBaseTransport(base))
	require.NoError(t, err)
	c.CloseIdleConnections()
	assert.Equal(t, 1, base.idleClosed)
}
