// Package handlers wires the cache, retrieval and audit subsystems into the
// HTTP surface: the npm-compatible proxy routes and the JSON API.
package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pkgb-in/pkgvault/db/models"
	"github.com/pkgb-in/pkgvault/db/repositories"
	"github.com/pkgb-in/pkgvault/internal/cache"
	"github.com/pkgb-in/pkgvault/internal/rag"
	"github.com/pkgb-in/pkgvault/internal/stats"
	"github.com/pkgb-in/pkgvault/internal/upstream"
)

// MetadataResolver serves (possibly cached) rewritten package metadata.
type MetadataResolver interface {
	ResolveMetadata(ctx context.Context, name, scheme, host string) ([]byte, bool, error)
}

// TarballServer satisfies tarball requests through the single-flight
// coordinator.
type TarballServer interface {
	ServeTarball(ctx context.Context, name, requestPath string, w io.Writer) (cache.DownloadResult, error)
}

// Searcher runs hybrid retrieval.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]rag.Match, error)
}

// Generator produces a chat completion.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ResponseCache memoizes chat answers.
type ResponseCache interface {
	Get(ctx context.Context, questionDigest string) (string, bool, error)
	Put(ctx context.Context, questionDigest, answer string, ttl time.Duration) error
}

// DocIngestor runs the documentation pipeline.
type DocIngestor interface {
	IngestPackage(ctx context.Context, name string) (int, error)
	RebuildEmbeddings(ctx context.Context, name string) (updated, total int, err error)
}

// PackumentSource fetches typed metadata, used by precache to pick versions.
type PackumentSource interface {
	FetchMetadata(ctx context.Context, name string) (*upstream.Packument, error)
}

// ChunkStats exposes the retrieval-store counters the stats routes report.
type ChunkStats interface {
	Count(ctx context.Context) (int64, error)
	CountEmbedded(ctx context.Context) (int64, error)
	DistinctPackages(ctx context.Context) ([]string, error)
}

// EntryCounter counts live (unexpired) cache entries.
type EntryCounter interface {
	Count(ctx context.Context) (int64, error)
}

// AuditReader serves the security stats route.
type AuditReader interface {
	Totals(ctx context.Context) (repositories.VerificationTotals, error)
	Recent(ctx context.Context, n int) ([]models.SecurityEvent, error)
}

// PackagePurger removes package records by name.
type PackagePurger interface {
	DeleteByNames(names []string) error
}

// Handlers bundles every route's dependencies.
type Handlers struct {
	Store           MetadataResolver
	Downloads       TarballServer
	Upstream        PackumentSource
	Engine          Searcher
	Ingestor        DocIngestor
	Generator       Generator
	Responses       ResponseCache
	Chunks          ChunkStats
	Embeddings      EntryCounter
	ResponseEntries EntryCounter
	Audit           AuditReader
	Packages        PackagePurger
	CacheFiles      *cache.Store
	CacheStats      *stats.CacheStats
	ResponseTTL     time.Duration
	VectorEnabled   bool
	Log             zerolog.Logger
}

// Register attaches every route. The proxy routes live on NoRoute so the
// registry namespace (which includes arbitrary package names) cannot collide
// with the API prefix.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	api.POST("/chat", h.Chat)
	api.POST("/hybrid-search", h.HybridSearch)
	api.GET("/stats", h.Stats)
	api.GET("/vector-stats", h.VectorStats)
	api.GET("/security-stats", h.SecurityStats)
	// Wildcard rather than a named param so scoped names keep their slash.
	api.POST("/rebuild-embeddings/*package", h.RebuildEmbeddings)
	api.POST("/precache", h.Precache)
	api.POST("/purge", h.Purge)

	r.GET("/force-scrape/*package", h.ForceScrape)

	r.NoRoute(h.Proxy)
}

// Ping is the liveness probe.
func (h *Handlers) Ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}

func requestScheme(c *gin.Context) string {
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}
