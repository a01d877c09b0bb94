package repositories

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/pkgb-in/pkgvault/db/models"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceSet atomically swaps the chunk set for a package: old rows are
// deleted and the new ones inserted inside one transaction, so readers never
// observe a mixed generation.
func (r *ChunkRepository) ReplaceSet(ctx context.Context, packageName string, chunks []models.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("package_name = ?", packageName).Delete(&models.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.Create(&chunks).Error
	})
}

// ListEmbedded returns every chunk that carries an embedding, for the
// semantic pass.
func (r *ChunkRepository) ListEmbedded(ctx context.Context) ([]models.Chunk, error) {
	var chunks []models.Chunk
	err := r.db.WithContext(ctx).
		Where("embedding IS NOT NULL").
		Order("package_name, chunk_index").
		Find(&chunks).Error
	return chunks, err
}

// SearchText returns chunks whose text matches any of the tokens,
// case-insensitively, up to limit rows.
func (r *ChunkRepository) SearchText(ctx context.Context, tokens []string, limit int) ([]models.Chunk, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).Model(&models.Chunk{})
	conditions := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens))
	for _, tok := range tokens {
		conditions = append(conditions, "text ILIKE ?")
		args = append(args, "%"+tok+"%")
	}
	var chunks []models.Chunk
	err := query.Where(strings.Join(conditions, " OR "), args...).
		Order("package_name, chunk_index").
		Limit(limit).
		Find(&chunks).Error
	return chunks, err
}

// ListByPackage returns a package's chunks ordered by index.
func (r *ChunkRepository) ListByPackage(ctx context.Context, packageName string) ([]models.Chunk, error) {
	var chunks []models.Chunk
	err := r.db.WithContext(ctx).
		Where("package_name = ?", packageName).
		Order("chunk_index").
		Find(&chunks).Error
	return chunks, err
}

// UpdateEmbedding sets the embedding of a single chunk in place.
func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, id int64, embedding models.Vector) error {
	return r.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("id = ?", id).
		Update("embedding", embedding).Error
}

func (r *ChunkRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Chunk{}).Count(&total).Error
	return total, err
}

func (r *ChunkRepository) CountEmbedded(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("embedding IS NOT NULL").
		Count(&total).Error
	return total, err
}

// DistinctPackages lists the package names that currently have chunks.
func (r *ChunkRepository) DistinctPackages(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&models.Chunk{}).
		Distinct("package_name").
		Order("package_name").
		Pluck("package_name", &names).Error
	return names, err
}
