package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const searchTopK = 5

type searchRequest struct {
	Query string `json:"query"`
}

type searchHit struct {
	PackageName  string  `json:"packageName"`
	ChunkIndex   int     `json:"chunkIndex"`
	Text         string  `json:"text"`
	VectorScore  float64 `json:"vectorScore"`
	LexicalScore float64 `json:"lexicalScore"`
	Combined     float64 `json:"combined"`
}

// HybridSearch exposes the retrieval engine directly.
func (h *Handlers) HybridSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	matches, err := h.Engine.Search(c.Request.Context(), req.Query, searchTopK)
	if err != nil {
		h.Log.Error().Err(err).Msg("hybrid search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}

	hits := make([]searchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, searchHit{
			PackageName:  m.Chunk.PackageName,
			ChunkIndex:   m.Chunk.ChunkIndex,
			Text:         m.Chunk.Text,
			VectorScore:  m.VectorScore,
			LexicalScore: m.LexicalScore,
			Combined:     m.Combined,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": hits, "count": len(hits)})
}
