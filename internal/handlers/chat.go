package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pkgb-in/pkgvault/internal/rag"
)

const (
	chatTopK     = 5
	noDocsAnswer = "I couldn't find any documentation relevant to that question. " +
		"Try /force-scrape/{package} to ingest a package's README first."
)

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer         string  `json:"answer"`
	Source         *string `json:"source"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
}

// Chat answers a question over the ingested READMEs. Cache first, then
// hybrid retrieval, then generation. LLM failures never surface as HTTP
// errors; the error text becomes the answer with a null source.
func (h *Handlers) Chat(c *gin.Context) {
	start := time.Now()

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		c.JSON(http.StatusOK, chatResponse{
			Answer:         noDocsAnswer,
			ResponseTimeMs: time.Since(start).Milliseconds(),
		})
		return
	}

	ctx := c.Request.Context()
	digest := rag.QuestionDigest(question)

	if answer, ok, err := h.Responses.Get(ctx, digest); err != nil {
		h.Log.Error().Err(err).Msg("response cache lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	} else if ok {
		source := "cache"
		c.JSON(http.StatusOK, chatResponse{
			Answer:         answer,
			Source:         &source,
			ResponseTimeMs: time.Since(start).Milliseconds(),
		})
		return
	}

	matches, err := h.Engine.Search(ctx, question, chatTopK)
	if err != nil {
		h.Log.Error().Err(err).Msg("retrieval failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
		return
	}

	if len(matches) == 0 {
		c.JSON(http.StatusOK, chatResponse{
			Answer:         noDocsAnswer,
			ResponseTimeMs: time.Since(start).Milliseconds(),
		})
		return
	}

	answer, err := h.Generator.Generate(ctx, buildPrompt(question, matches))
	if err != nil {
		h.Log.Warn().Err(err).Msg("generation failed")
		c.JSON(http.StatusOK, chatResponse{
			Answer:         "Sorry, I couldn't generate an answer: " + err.Error(),
			ResponseTimeMs: time.Since(start).Milliseconds(),
		})
		return
	}

	if err := h.Responses.Put(ctx, digest, answer, h.ResponseTTL); err != nil {
		h.Log.Error().Err(err).Msg("failed to cache answer")
	}

	source := matches[0].Chunk.PackageName
	c.JSON(http.StatusOK, chatResponse{
		Answer:         answer,
		Source:         &source,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	})
}

func buildPrompt(question string, matches []rag.Match) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the package documentation below. ")
	b.WriteString("If the documentation does not cover it, say so.\n\n")
	for _, m := range matches {
		b.WriteString("## ")
		b.WriteString(m.Chunk.PackageName)
		b.WriteString("\n")
		b.WriteString(m.Chunk.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
