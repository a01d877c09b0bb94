package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pkgb-in/pkgvault/internal/stats"
)

// Stats reports the documentation store and cache directory counters.
func (h *Handlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	totalChunks, err := h.Chunks.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	packages, err := h.Chunks.DistinctPackages(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	cachedResponses, err := h.ResponseEntries.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	embeddingsCached, err := h.Embeddings.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}

	fileCount, totalSize, served, updatedAt := h.CacheStats.Get()

	c.JSON(http.StatusOK, gin.H{
		"totalChunks":      totalChunks,
		"cachedResponses":  cachedResponses,
		"embeddingsCached": embeddingsCached,
		"distinctPackages": len(packages),
		"packages":         packages,
		"cacheFiles":       fileCount,
		"cacheSize":        stats.FormatBytes(totalSize),
		"packagesServed":   served,
		"statsUpdatedAt":   updatedAt,
	})
}

// VectorStats reports embedding coverage of the chunk store.
func (h *Handlers) VectorStats(c *gin.Context) {
	ctx := c.Request.Context()

	totalChunks, err := h.Chunks.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	withEmbeddings, err := h.Chunks.CountEmbedded(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	embeddingsCached, err := h.Embeddings.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	responsesCached, err := h.ResponseEntries.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}

	coverage := 0.0
	if totalChunks > 0 {
		coverage = float64(withEmbeddings) / float64(totalChunks) * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"totalChunks":               totalChunks,
		"chunksWithEmbeddings":      withEmbeddings,
		"embeddingCoverage":         fmt.Sprintf("%.2f", coverage),
		"embeddingsCached":          embeddingsCached,
		"responsesCached":           responsesCached,
		"vectorOptimizationEnabled": h.VectorEnabled,
	})
}

// SecurityStats reports verification totals and the most recent audit
// events.
func (h *Handlers) SecurityStats(c *gin.Context) {
	ctx := c.Request.Context()

	totals, err := h.Audit.Totals(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}
	recent, err := h.Audit.Recent(ctx, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}

	successRate := "0.00"
	if totals.Total > 0 {
		successRate = fmt.Sprintf("%.2f", float64(totals.Success)/float64(totals.Total)*100)
	}

	c.JSON(http.StatusOK, gin.H{
		"totalVerifications": totals.Total,
		"successful":         totals.Success,
		"threatsDetected":    totals.Threats,
		"failures":           totals.Failures,
		"successRate":        successRate,
		"recentEvents":       recent,
	})
}
