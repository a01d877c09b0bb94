package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pkgb-in/pkgvault/db/models"
	"github.com/pkgb-in/pkgvault/internal/upstream"
)

// maxDocRunes caps how much README text is ingested per package.
const maxDocRunes = 5000

// embedWorkers bounds concurrent embedding calls during rebuilds.
const embedWorkers = 4

// MetadataSource fetches the packument whose README gets ingested.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, name string) (*upstream.Packument, error)
}

// ChunkWriter is the slice of the chunk repository the ingest pipeline uses.
type ChunkWriter interface {
	ReplaceSet(ctx context.Context, packageName string, chunks []models.Chunk) error
	ListByPackage(ctx context.Context, packageName string) ([]models.Chunk, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding models.Vector) error
}

// Ingestor runs scrape → chunk → embed → persist for one package at a time.
type Ingestor struct {
	metadata  MetadataSource
	chunks    ChunkWriter
	embed     EmbedFunc
	chunkSize int
	overlap   int
	log       zerolog.Logger
}

func NewIngestor(metadata MetadataSource, chunks ChunkWriter, embed EmbedFunc, chunkSize, overlap int, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		metadata:  metadata,
		chunks:    chunks,
		embed:     embed,
		chunkSize: chunkSize,
		overlap:   overlap,
		log:       log.With().Str("component", "ingest").Logger(),
	}
}

// IngestPackage pulls the package README (falling back to the description),
// chunks it, embeds what it can, and atomically replaces the package's chunk
// set. A dead embedding backend leaves embeddings absent; the chunks are
// still persisted and lexically searchable. Returns the ingested rune count.
func (i *Ingestor) IngestPackage(ctx context.Context, name string) (int, error) {
	doc, err := i.metadata.FetchMetadata(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("ingest %s: %w", name, err)
	}

	text := Truncate(doc.DocText(), maxDocRunes)
	pieces := SplitChunks(text, i.chunkSize, i.overlap)

	chunks := make([]models.Chunk, len(pieces))
	embedded := 0
	for idx, piece := range pieces {
		chunks[idx] = models.Chunk{
			PackageName: name,
			ChunkIndex:  idx,
			Text:        piece,
		}
		vec, err := i.embed(ctx, piece)
		if err != nil {
			i.log.Warn().Err(err).Str("package", name).Int("chunk", idx).
				Msg("embedding unavailable, chunk stored without vector")
			continue
		}
		chunks[idx].Embedding = vec
		embedded++
	}

	if err := i.chunks.ReplaceSet(ctx, name, chunks); err != nil {
		return 0, fmt.Errorf("ingest %s: persisting chunks: %w", name, err)
	}

	i.log.Info().Str("package", name).
		Int("chars", len([]rune(text))).
		Int("chunks", len(chunks)).
		Int("embedded", embedded).
		Msg("package ingested")
	return len([]rune(text)), nil
}

// RebuildEmbeddings re-embeds every chunk of a package that is missing a
// vector. Work fans out over a bounded errgroup; individual failures only
// reduce the updated count.
func (i *Ingestor) RebuildEmbeddings(ctx context.Context, name string) (updated, total int, err error) {
	chunks, err := i.chunks.ListByPackage(ctx, name)
	if err != nil {
		return 0, 0, err
	}
	total = len(chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	results := make(chan int64, total)

	for _, chunk := range chunks {
		if chunk.HasEmbedding() {
			continue
		}
		chunk := chunk
		g.Go(func() error {
			vec, err := i.embed(gctx, chunk.Text)
			if err != nil {
				i.log.Warn().Err(err).Str("package", name).Int("chunk", chunk.ChunkIndex).
					Msg("rebuild: embedding failed")
				return nil
			}
			if err := i.chunks.UpdateEmbedding(gctx, chunk.ID, vec); err != nil {
				return err
			}
			results <- chunk.ID
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, total, err
	}
	close(results)
	for range results {
		updated++
	}
	return updated, total, nil
}
