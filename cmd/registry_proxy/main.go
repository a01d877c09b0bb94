package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pkgb-in/pkgvault/config"
	"github.com/pkgb-in/pkgvault/db/repositories"
	"github.com/pkgb-in/pkgvault/initializers"
	"github.com/pkgb-in/pkgvault/internal/ai"
	"github.com/pkgb-in/pkgvault/internal/cache"
	"github.com/pkgb-in/pkgvault/internal/handlers"
	"github.com/pkgb-in/pkgvault/internal/rag"
	"github.com/pkgb-in/pkgvault/internal/stats"
	"github.com/pkgb-in/pkgvault/internal/upstream"
	"github.com/pkgb-in/pkgvault/internal/verify"
)

const (
	statsInterval  = 5 * time.Minute
	reaperInterval = 10 * time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := initializers.InitDatabase(cfg.Database.URL); err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	db := initializers.DB

	packages := repositories.NewPackageRepository(db)
	chunks := repositories.NewChunkRepository(db)
	responses := repositories.NewResponseCacheRepository(db)
	embeddings := repositories.NewEmbeddingCacheRepository(db)
	events := repositories.NewSecurityEventRepository(db)

	registry := upstream.New(cfg.Registry.Upstream)
	aiClient := ai.New(cfg.AI)

	store, err := cache.NewStore(cfg.Registry.CacheDir, registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("cache init failed")
	}
	if removed := store.Reclaim(packages); removed > 0 {
		log.Info().Int("removed", removed).Msg("startup reclamation complete")
	}

	verifier := verify.New(registry, events, log)
	downloads := cache.NewCoordinator(store, registry, verifier, packages, log)

	embed := rag.CachedEmbedder(aiClient.Embed, embeddings, cfg.RAG.EmbeddingTTL)
	engine := rag.NewEngine(chunks, embed, rag.Options{
		MinSimilarity: cfg.RAG.MinSimilarity,
		VectorWeight:  cfg.RAG.VectorWeight,
		LexicalWeight: cfg.RAG.LexicalWeight,
	}, log)
	ingestor := rag.NewIngestor(registry, chunks, embed, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, log)

	cacheStats := stats.New(cfg.Registry.CacheDir, packages, statsInterval, log)
	go runCacheReaper(responses, embeddings, log)

	h := &handlers.Handlers{
		Store:           store,
		Downloads:       downloads,
		Upstream:        registry,
		Engine:          engine,
		Ingestor:        ingestor,
		Generator:       aiClient,
		Responses:       responses,
		Chunks:          chunks,
		Embeddings:      embeddings,
		ResponseEntries: responses,
		Audit:           events,
		Packages:        packages,
		CacheFiles:      store,
		CacheStats:      cacheStats,
		ResponseTTL:     cfg.RAG.ResponseTTL,
		VectorEnabled:   cfg.RAG.VectorWeight > 0,
		Log:             log,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	h.Register(router)

	log.Info().
		Str("addr", cfg.ListenAddr()).
		Str("upstream", cfg.Registry.Upstream).
		Str("cache_dir", cfg.Registry.CacheDir).
		Msg("registry proxy started")
	if err := router.Run(cfg.ListenAddr()); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// runCacheReaper periodically deletes expired response and embedding cache
// rows. Expired entries are never returned anyway; this just reclaims space.
func runCacheReaper(responses *repositories.ResponseCacheRepository, embeddings *repositories.EmbeddingCacheRepository, log zerolog.Logger) {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		nr, err := responses.DeleteExpired(ctx)
		if err != nil {
			log.Error().Err(err).Msg("reaper: response cache sweep failed")
		}
		ne, err := embeddings.DeleteExpired(ctx)
		if err != nil {
			log.Error().Err(err).Msg("reaper: embedding cache sweep failed")
		}
		cancel()
		if nr+ne > 0 {
			log.Info().Int64("responses", nr).Int64("embeddings", ne).Msg("reaped expired cache entries")
		}
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
