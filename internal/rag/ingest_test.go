package rag

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgb-in/pkgvault/db/models"
	"github.com/pkgb-in/pkgvault/internal/upstream"
)

type fakeMetaSource struct {
	doc *upstream.Packument
	err error
}

func (f *fakeMetaSource) FetchMetadata(ctx context.Context, name string) (*upstream.Packument, error) {
	return f.doc, f.err
}

type fakeChunkWriter struct {
	mu       sync.Mutex
	replaced map[string][]models.Chunk
	existing []models.Chunk
	updates  map[int64]models.Vector
}

func newFakeChunkWriter() *fakeChunkWriter {
	return &fakeChunkWriter{
		replaced: map[string][]models.Chunk{},
		updates:  map[int64]models.Vector{},
	}
}

func (f *fakeChunkWriter) ReplaceSet(ctx context.Context, packageName string, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced[packageName] = chunks
	return nil
}

func (f *fakeChunkWriter) ListByPackage(ctx context.Context, packageName string) ([]models.Chunk, error) {
	return f.existing, nil
}

func (f *fakeChunkWriter) UpdateEmbedding(ctx context.Context, id int64, embedding models.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = embedding
	return nil
}

func okEmbed(ctx context.Context, text string) (models.Vector, error) {
	return models.Vector{1, 0}, nil
}

func TestIngestPackage(t *testing.T) {
	readme := strings.Repeat("documentation text ", 60) // ~1140 runes, 2 chunks
	metadata := &fakeMetaSource{doc: &upstream.Packument{Name: "left-pad", Readme: readme}}
	writer := newFakeChunkWriter()
	ing := NewIngestor(metadata, writer, okEmbed, 800, 100, zerolog.Nop())

	chars, err := ing.IngestPackage(context.Background(), "left-pad")
	require.NoError(t, err)
	assert.Equal(t, len([]rune(readme)), chars)

	chunks := writer.replaced["left-pad"]
	require.Len(t, chunks, 2)
	for i, c := range chunks {
		assert.Equal(t, "left-pad", c.PackageName)
		assert.Equal(t, i, c.ChunkIndex)
		assert.True(t, c.HasEmbedding())
	}
}

func TestIngestPackageTruncatesLongDocs(t *testing.T) {
	metadata := &fakeMetaSource{doc: &upstream.Packument{Readme: strings.Repeat("x", 20_000)}}
	writer := newFakeChunkWriter()
	ing := NewIngestor(metadata, writer, okEmbed, 800, 100, zerolog.Nop())

	chars, err := ing.IngestPackage(context.Background(), "big")
	require.NoError(t, err)
	assert.Equal(t, 5000, chars)
}

// A dead embedding backend degrades ingest, it does not fail it: chunks land
// without vectors and remain lexically searchable.
func TestIngestPackageEmbeddingBackendDown(t *testing.T) {
	metadata := &fakeMetaSource{doc: &upstream.Packument{Readme: "short readme"}}
	writer := newFakeChunkWriter()
	ing := NewIngestor(metadata, writer, noEmbed, 800, 100, zerolog.Nop())

	_, err := ing.IngestPackage(context.Background(), "left-pad")
	require.NoError(t, err)

	chunks := writer.replaced["left-pad"]
	require.Len(t, chunks, 1)
	assert.False(t, chunks[0].HasEmbedding())
}

func TestIngestPackageFallsBackToDescription(t *testing.T) {
	metadata := &fakeMetaSource{doc: &upstream.Packument{Description: "just a description"}}
	writer := newFakeChunkWriter()
	ing := NewIngestor(metadata, writer, okEmbed, 800, 100, zerolog.Nop())

	chars, err := ing.IngestPackage(context.Background(), "terse")
	require.NoError(t, err)
	assert.Equal(t, len("just a description"), chars)
}

func TestRebuildEmbeddings(t *testing.T) {
	writer := newFakeChunkWriter()
	writer.existing = []models.Chunk{
		{ID: 1, PackageName: "pkg", ChunkIndex: 0, Text: "a", Embedding: models.Vector{1}},
		{ID: 2, PackageName: "pkg", ChunkIndex: 1, Text: "b"},
		{ID: 3, PackageName: "pkg", ChunkIndex: 2, Text: "c"},
	}
	ing := NewIngestor(&fakeMetaSource{}, writer, okEmbed, 800, 100, zerolog.Nop())

	updated, total, err := ing.RebuildEmbeddings(context.Background(), "pkg")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, updated)

	// Only the vectorless chunks were touched.
	assert.NotContains(t, writer.updates, int64(1))
	assert.Contains(t, writer.updates, int64(2))
	assert.Contains(t, writer.updates, int64(3))
}

func TestRebuildEmbeddingsBackendDown(t *testing.T) {
	writer := newFakeChunkWriter()
	writer.existing = []models.Chunk{{ID: 1, PackageName: "pkg", Text: "a"}}
	ing := NewIngestor(&fakeMetaSource{}, writer, noEmbed, 800, 100, zerolog.Nop())

	updated, total, err := ing.RebuildEmbeddings(context.Background(), "pkg")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Zero(t, updated)
}
