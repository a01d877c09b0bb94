// Package upstream holds the outbound HTTP clients: the registry client here
// and its packument types in packument.go. Connections are pooled and every
// call carries a timeout. No retries happen at this layer.
package upstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when the registry answers 404 for a package or
// tarball.
var ErrNotFound = errors.New("upstream: not found")

const (
	metadataTimeout = 10 * time.Second
	tarballTimeout  = 60 * time.Second
	maxConns        = 50
)

// Client talks to the upstream registry over a pooled TLS transport.
type Client struct {
	base string
	meta *http.Client
	blob *http.Client
}

// New builds a registry client for the given base URL
// (e.g. https://registry.npmjs.org).
func New(base string) *Client {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		meta: &http.Client{Transport: transport, Timeout: metadataTimeout},
		// The blob client has no overall deadline: large tarballs may
		// legitimately take longer than any fixed budget. Stalls are bounded
		// by the header timeout plus the caller's context.
		blob: &http.Client{Transport: &http.Transport{
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			MaxIdleConns:          maxConns,
			MaxIdleConnsPerHost:   maxConns,
			MaxConnsPerHost:       maxConns,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: tarballTimeout,
		}},
	}
}

// encodePackageName percent-encodes the slash of a scoped name, as registry
// clients do.
func encodePackageName(name string) string {
	if strings.HasPrefix(name, "@") && strings.Contains(name, "/") {
		return strings.ReplaceAll(name, "/", "%2F")
	}
	return url.PathEscape(name)
}

// FetchMetadataRaw returns the packument exactly as the registry served it.
// The raw bytes are what the cache rewrites and persists, so unknown fields
// survive.
func (c *Client) FetchMetadataRaw(ctx context.Context, name string) ([]byte, error) {
	u := c.base + "/" + encodePackageName(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pkgvault")

	resp, err := c.meta.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("metadata for %s: %w", name, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("metadata for %s: upstream status %d", name, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FetchMetadata returns the typed packument, used by the verifier and the
// ingest pipeline.
func (c *Client) FetchMetadata(ctx context.Context, name string) (*Packument, error) {
	raw, err := c.FetchMetadataRaw(ctx, name)
	if err != nil {
		return nil, err
	}
	var doc Packument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing metadata for %s: %w", name, err)
	}
	return &doc, nil
}

// OpenTarball starts streaming the tarball at the given registry path
// (e.g. /left-pad/-/left-pad-1.3.0.tgz). The caller owns the body.
func (c *Client) OpenTarball(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	u := c.base + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "pkgvault")

	resp, err := c.blob.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching tarball %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("tarball %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("tarball %s: upstream status %d", path, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}
