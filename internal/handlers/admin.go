package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pkgb-in/pkgvault/internal/cache"
	"github.com/pkgb-in/pkgvault/internal/stats"
	"github.com/pkgb-in/pkgvault/internal/upstream"
)

type precacheRequest struct {
	PackageName string `json:"packageName"`
	Version     string `json:"version"`
}

// Precache downloads, verifies and records a tarball without a client
// waiting on the bytes. Version defaults to the dist-tag "latest".
func (h *Handlers) Precache(c *gin.Context) {
	var req precacheRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PackageName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "packageName is required"})
		return
	}

	ctx := c.Request.Context()
	doc, err := h.Upstream.FetchMetadata(ctx, req.PackageName)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, upstream.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"success": false, "message": "upstream metadata unavailable"})
		return
	}

	version := req.Version
	if version == "" {
		latest, ok := doc.Latest()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "package has no latest dist-tag"})
			return
		}
		version = latest
	}

	entry, ok := doc.Versions[version]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "unknown version " + version})
		return
	}

	tarballURL, err := url.Parse(entry.Dist.Tarball)
	if err != nil || tarballURL.Path == "" {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "upstream declares no tarball for " + version})
		return
	}

	if h.CacheFiles.HasTarball(cache.TarballFileName(tarballURL.Path)) {
		c.JSON(http.StatusOK, gin.H{"success": true, "cached": true, "version": version})
		return
	}

	result, err := h.Downloads.ServeTarball(ctx, req.PackageName, tarballURL.Path, io.Discard)
	switch {
	case errors.Is(err, cache.ErrThreatDetected):
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "integrity verification failed; tarball discarded",
			"version": version,
		})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "download failed", "version": version})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "cached and verified " + req.PackageName + "@" + version,
			"version": version,
			"size":    stats.FormatBytes(result.Size),
		})
	}
}

// RebuildEmbeddings re-embeds the chunks of one package that are missing
// vectors.
func (h *Handlers) RebuildEmbeddings(c *gin.Context) {
	name := strings.Trim(c.Param("package"), "/")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "package is required"})
		return
	}

	updated, total, err := h.Ingestor.RebuildEmbeddings(c.Request.Context(), name)
	if err != nil {
		h.Log.Error().Err(err).Str("package", name).Msg("embedding rebuild failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated, "total": total})
}

// ForceScrape runs the documentation ingest synchronously.
func (h *Handlers) ForceScrape(c *gin.Context) {
	// Wildcard params keep scoped names (@scope/name) in one segment.
	name := strings.Trim(c.Param("package"), "/")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "package is required"})
		return
	}

	chars, err := h.Ingestor.IngestPackage(c.Request.Context(), name)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, upstream.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.Log.Warn().Err(err).Str("package", name).Msg("ingest failed")
		c.JSON(status, gin.H{"success": false, "error": "ingest failed", "package": name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chars": chars, "package": name})
}

type purgeRequest struct {
	Packages []string `json:"packages"`
}

// Purge removes cached tarballs by filename glob and their database records.
func (h *Handlers) Purge(c *gin.Context) {
	var req purgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}
	if len(req.Packages) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "No packages to purge"})
		return
	}

	deleted := []string{}
	for _, pattern := range req.Packages {
		removed, err := h.CacheFiles.RemoveByGlob(pattern)
		if err != nil {
			h.Log.Error().Err(err).Str("pattern", pattern).Msg("purge glob failed")
			continue
		}
		deleted = append(deleted, removed...)
	}

	if err := h.Packages.DeleteByNames(req.Packages); err != nil {
		h.Log.Error().Err(err).Msg("purge: database delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to delete package records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "packages purged",
		"deleted": deleted,
	})
}
