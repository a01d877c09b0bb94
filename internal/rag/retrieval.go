package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkgb-in/pkgvault/db/models"
)

// EmbedFunc produces an embedding for text. The retrieval engine receives it
// as a dependency rather than importing the ai client, so the two packages
// stay decoupled.
type EmbedFunc func(ctx context.Context, text string) (models.Vector, error)

// ChunkSource is the slice of the chunk repository retrieval needs.
type ChunkSource interface {
	ListEmbedded(ctx context.Context) ([]models.Chunk, error)
	SearchText(ctx context.Context, tokens []string, limit int) ([]models.Chunk, error)
}

// EmbeddingCache memoizes vectors by text digest.
type EmbeddingCache interface {
	Get(ctx context.Context, textDigest string) (models.Vector, bool, error)
	Put(ctx context.Context, textDigest string, embedding models.Vector, ttl time.Duration) error
}

// CachedEmbedder wraps backend so repeated texts hit the cache instead of
// the model. Cache write failures are ignored; the vector is already in hand.
func CachedEmbedder(backend EmbedFunc, cache EmbeddingCache, ttl time.Duration) EmbedFunc {
	return func(ctx context.Context, text string) (models.Vector, error) {
		digest := TextDigest(text)
		if vec, ok, err := cache.Get(ctx, digest); err == nil && ok {
			return vec, nil
		}
		vec, err := backend(ctx, text)
		if err != nil {
			return nil, err
		}
		_ = cache.Put(ctx, digest, vec, ttl)
		return vec, nil
	}
}

// Options tunes the hybrid ranking.
type Options struct {
	MinSimilarity float64
	VectorWeight  float64
	LexicalWeight float64
}

// Match is one ranked retrieval result.
type Match struct {
	Chunk        models.Chunk `json:"chunk"`
	VectorScore  float64      `json:"vectorScore"`
	LexicalScore float64      `json:"lexicalScore"`
	Combined     float64      `json:"combined"`
}

// Engine ranks chunks by a weighted blend of cosine similarity and lexical
// token matching. When the embedding backend is down it degrades to the
// lexical pass alone.
type Engine struct {
	chunks ChunkSource
	embed  EmbedFunc
	opts   Options
	log    zerolog.Logger
}

func NewEngine(chunks ChunkSource, embed EmbedFunc, opts Options, log zerolog.Logger) *Engine {
	return &Engine{
		chunks: chunks,
		embed:  embed,
		opts:   opts,
		log:    log.With().Str("component", "retrieval").Logger(),
	}
}

// Search returns the topK best chunks for the query. An unavailable
// embedding backend is degraded operation, not an error: lexical matches
// still rank (with vectorScore 0) and an empty result is a valid answer.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return nil, nil
	}

	merged := make(map[string]*Match)

	if queryVec, err := e.embed(ctx, query); err != nil {
		e.log.Warn().Err(err).Msg("embedding unavailable, lexical-only retrieval")
	} else if err := e.semanticPass(ctx, queryVec, topK, merged); err != nil {
		return nil, err
	}

	if err := e.lexicalPass(ctx, query, topK, merged); err != nil {
		return nil, err
	}

	results := make([]Match, 0, len(merged))
	for _, m := range merged {
		m.Combined = e.opts.VectorWeight*m.VectorScore + e.opts.LexicalWeight*m.LexicalScore
		results = append(results, *m)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		if results[i].VectorScore != results[j].VectorScore {
			return results[i].VectorScore > results[j].VectorScore
		}
		return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// semanticPass scores every embedded chunk against the query vector and
// keeps the top 2K at or above the similarity floor.
func (e *Engine) semanticPass(ctx context.Context, queryVec models.Vector, topK int, merged map[string]*Match) error {
	chunks, err := e.chunks.ListEmbedded(ctx)
	if err != nil {
		return err
	}

	scored := make([]Match, 0, len(chunks))
	for _, chunk := range chunks {
		sim := Cosine(queryVec, chunk.Embedding)
		if sim < e.opts.MinSimilarity {
			continue
		}
		scored = append(scored, Match{Chunk: chunk, VectorScore: sim})
	}
	sort.Slice(scored, func(i, j int) bool {
		return scored[i].VectorScore > scored[j].VectorScore
	})
	if len(scored) > 2*topK {
		scored = scored[:2*topK]
	}

	for i := range scored {
		m := scored[i]
		merged[chunkKey(m.Chunk)] = &m
	}
	return nil
}

// lexicalPass unions in chunks matching any query token, marking them with
// lexicalScore 1.
func (e *Engine) lexicalPass(ctx context.Context, query string, topK int, merged map[string]*Match) error {
	tokens := Tokens(query)
	if len(tokens) == 0 {
		return nil
	}
	chunks, err := e.chunks.SearchText(ctx, tokens, 2*topK)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		key := chunkKey(chunk)
		if m, ok := merged[key]; ok {
			m.LexicalScore = 1
			continue
		}
		merged[key] = &Match{Chunk: chunk, LexicalScore: 1}
	}
	return nil
}

func chunkKey(c models.Chunk) string {
	return fmt.Sprintf("%s#%d", c.PackageName, c.ChunkIndex)
}

// Tokens extracts the lexical query terms: lower-cased words longer than
// three runes.
func Tokens(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '-' || r == '_')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) > 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Cosine is Σab / (‖a‖·‖b‖). Mismatched dimensions or a zero vector score 0
// rather than erroring, so junk embeddings degrade instead of failing.
func Cosine(a, b models.Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
