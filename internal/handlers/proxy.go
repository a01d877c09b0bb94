package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pkgb-in/pkgvault/internal/cache"
	"github.com/pkgb-in/pkgvault/internal/upstream"
)

// Proxy is the NoRoute fallback covering the registry namespace:
//
//	GET /{package}              -> rewritten metadata document
//	GET /{package}/-/{filename} -> tarball bytes
//
// Scoped packages arrive as /@scope/name or with an escaped slash.
func (h *Handlers) Proxy(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	path := c.Request.URL.Path
	if name, ok := tarballRequest(path); ok {
		h.serveTarball(c, name, path)
		return
	}
	h.serveMetadata(c, packageNameFromPath(path))
}

// tarballRequest reports whether the path addresses a tarball and, if so,
// the package it belongs to.
func tarballRequest(path string) (string, bool) {
	if !strings.HasSuffix(path, ".tgz") || !strings.Contains(path, "/-/") {
		return "", false
	}
	name := packageNameFromPath(strings.SplitN(path, "/-/", 2)[0])
	return name, name != ""
}

func packageNameFromPath(path string) string {
	name := strings.Trim(path, "/")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name
}

func (h *Handlers) serveMetadata(c *gin.Context, name string) {
	if name == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	data, fromCache, err := h.Store.ResolveMetadata(c.Request.Context(), name, requestScheme(c), c.Request.Host)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, upstream.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.Log.Warn().Err(err).Str("package", name).Msg("metadata unavailable")
		c.JSON(status, gin.H{"error": "package metadata unavailable"})
		return
	}

	if fromCache {
		c.Header("X-Cache-Status", "STALE")
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (h *Handlers) serveTarball(c *gin.Context, name, path string) {
	c.Header("Content-Type", "application/octet-stream")
	// NoRoute pre-sets the pending status to 404; the first streamed byte
	// would flush it. Set 200 now, downgraded below if nothing got written.
	c.Status(http.StatusOK)

	result, err := h.Downloads.ServeTarball(c.Request.Context(), name, path, c.Writer)
	if err == nil {
		return
	}

	if result.BytesSent > 0 {
		// Partial bytes are already on the wire; the client sees its download
		// die mid-stream, which is the contract for both upstream failures
		// and integrity deletions. A retry triggers a fresh fetch.
		h.Log.Warn().Err(err).Str("file", result.Filename).Msg("tarball stream aborted after partial write")
		c.Abort()
		return
	}

	c.Header("Content-Type", "application/json")
	switch {
	case errors.Is(err, upstream.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "tarball not found upstream"})
	case errors.Is(err, cache.ErrThreatDetected):
		c.JSON(http.StatusBadGateway, gin.H{"error": "tarball failed integrity verification"})
	default:
		h.Log.Error().Err(err).Str("package", name).Msg("tarball download failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed"})
	}
}
