package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgb-in/pkgvault/internal/cache"
	"github.com/pkgb-in/pkgvault/internal/upstream"
)

type fakeResolver struct {
	data      []byte
	fromCache bool
	err       error
	names     []string
	hosts     []string
}

func (f *fakeResolver) ResolveMetadata(ctx context.Context, name, scheme, host string) ([]byte, bool, error) {
	f.names = append(f.names, name)
	f.hosts = append(f.hosts, host)
	return f.data, f.fromCache, f.err
}

type fakeTarballServer struct {
	body  []byte
	err   error
	names []string
	paths []string
}

func (f *fakeTarballServer) ServeTarball(ctx context.Context, name, requestPath string, w io.Writer) (cache.DownloadResult, error) {
	f.names = append(f.names, name)
	f.paths = append(f.paths, requestPath)
	var sent int
	if len(f.body) > 0 {
		sent, _ = w.Write(f.body)
	}
	return cache.DownloadResult{Filename: cache.TarballFileName(requestPath), BytesSent: int64(sent)}, f.err
}

func proxyRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.NoRoute(h.Proxy)
	return r
}

func doGet(r *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = "cache.lan:8080"
	r.ServeHTTP(w, req)
	return w
}

func TestProxyMetadata(t *testing.T) {
	resolver := &fakeResolver{data: []byte(`{"name":"left-pad"}`)}
	h := &Handlers{Store: resolver, Log: zerolog.Nop()}
	r := proxyRouter(h)

	w := doGet(r, "/left-pad")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"name":"left-pad"}`, w.Body.String())
	assert.Empty(t, w.Header().Get("X-Cache-Status"))

	require.Len(t, resolver.names, 1)
	assert.Equal(t, "left-pad", resolver.names[0])
	assert.Equal(t, "cache.lan:8080", resolver.hosts[0])
}

func TestProxyMetadataScopedName(t *testing.T) {
	resolver := &fakeResolver{data: []byte(`{}`)}
	h := &Handlers{Store: resolver, Log: zerolog.Nop()}
	r := proxyRouter(h)

	// npm sends scoped names with the slash escaped.
	doGet(r, "/@types%2Fnode")
	doGet(r, "/@types/node")

	require.Len(t, resolver.names, 2)
	assert.Equal(t, "@types/node", resolver.names[0])
	assert.Equal(t, "@types/node", resolver.names[1])
}

func TestProxyMetadataStale(t *testing.T) {
	resolver := &fakeResolver{data: []byte(`{}`), fromCache: true}
	h := &Handlers{Store: resolver, Log: zerolog.Nop()}

	w := doGet(proxyRouter(h), "/left-pad")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "STALE", w.Header().Get("X-Cache-Status"))
}

func TestProxyMetadataErrors(t *testing.T) {
	notFound := &fakeResolver{err: fmt.Errorf("left-pad: %w (upstream: %w)", cache.ErrUpstreamUnavailable, upstream.ErrNotFound)}
	w := doGet(proxyRouter(&Handlers{Store: notFound, Log: zerolog.Nop()}), "/left-pad")
	assert.Equal(t, http.StatusNotFound, w.Code)

	unreachable := &fakeResolver{err: fmt.Errorf("left-pad: %w (upstream: %w)", cache.ErrUpstreamUnavailable, errors.New("connection refused"))}
	w = doGet(proxyRouter(&Handlers{Store: unreachable, Log: zerolog.Nop()}), "/left-pad")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestProxyTarball(t *testing.T) {
	downloads := &fakeTarballServer{body: []byte("tarball bytes")}
	h := &Handlers{Downloads: downloads, Log: zerolog.Nop()}

	w := doGet(proxyRouter(h), "/left-pad/-/left-pad-1.3.0.tgz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "tarball bytes", w.Body.String())

	require.Len(t, downloads.names, 1)
	assert.Equal(t, "left-pad", downloads.names[0])
	assert.Equal(t, "/left-pad/-/left-pad-1.3.0.tgz", downloads.paths[0])
}

func TestProxyTarballScopedPackage(t *testing.T) {
	downloads := &fakeTarballServer{body: []byte("x")}
	h := &Handlers{Downloads: downloads, Log: zerolog.Nop()}

	doGet(proxyRouter(h), "/@types/node/-/node-20.1.0.tgz")
	require.Len(t, downloads.names, 1)
	assert.Equal(t, "@types/node", downloads.names[0])
}

// Once tarball bytes are on the wire the status is already committed: a
// mid-stream failure aborts the body, it does not rewrite the status.
func TestProxyTarballAbortsAfterPartialWrite(t *testing.T) {
	broken := &fakeTarballServer{body: []byte("partial"), err: errors.New("upstream stream died")}
	w := doGet(proxyRouter(&Handlers{Downloads: broken, Log: zerolog.Nop()}), "/left-pad/-/left-pad-1.3.0.tgz")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "partial", w.Body.String())
}

func TestProxyTarballFailsBeforeFirstByte(t *testing.T) {
	threat := &fakeTarballServer{err: cache.ErrThreatDetected}
	w := doGet(proxyRouter(&Handlers{Downloads: threat, Log: zerolog.Nop()}), "/left-pad/-/left-pad-1.3.0.tgz")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "integrity")

	missing := &fakeTarballServer{err: upstream.ErrNotFound}
	w = doGet(proxyRouter(&Handlers{Downloads: missing, Log: zerolog.Nop()}), "/left-pad/-/left-pad-1.3.0.tgz")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxyRejectsNonGet(t *testing.T) {
	h := &Handlers{Log: zerolog.Nop()}
	r := proxyRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/left-pad", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
