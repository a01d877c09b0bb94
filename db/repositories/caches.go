package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pkgb-in/pkgvault/db/models"
)

// ResponseCacheRepository memoizes chat answers. Entries are keyed by a
// digest of the question and expire 24h after creation (configurable).
type ResponseCacheRepository struct {
	db *gorm.DB
}

func NewResponseCacheRepository(db *gorm.DB) *ResponseCacheRepository {
	return &ResponseCacheRepository{db: db}
}

// Get returns the cached answer for the digest, or ok=false when absent or
// expired. Expired rows are left for the reaper.
func (r *ResponseCacheRepository) Get(ctx context.Context, questionDigest string) (string, bool, error) {
	var entry models.CachedResponse
	err := r.db.WithContext(ctx).
		Where("question_digest = ? AND expires_at > ?", questionDigest, time.Now()).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Answer, true, nil
}

// Put upserts the answer with a fresh expiry.
func (r *ResponseCacheRepository) Put(ctx context.Context, questionDigest, answer string, ttl time.Duration) error {
	entry := models.CachedResponse{
		QuestionDigest: questionDigest,
		Answer:         answer,
		ExpiresAt:      time.Now().Add(ttl),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "question_digest"}},
		DoUpdates: clause.AssignmentColumns([]string{"answer", "expires_at"}),
	}).Create(&entry).Error
}

func (r *ResponseCacheRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.CachedResponse{}).
		Where("expires_at > ?", time.Now()).
		Count(&total).Error
	return total, err
}

// DeleteExpired reclaims expired rows and returns how many were removed.
func (r *ResponseCacheRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.CachedResponse{})
	return result.RowsAffected, result.Error
}

// EmbeddingCacheRepository memoizes embedding vectors keyed by a digest of
// the embedded text, with a short TTL (1h nominal). It never derives
// content; it only stores vectors it was given.
type EmbeddingCacheRepository struct {
	db *gorm.DB
}

func NewEmbeddingCacheRepository(db *gorm.DB) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{db: db}
}

func (r *EmbeddingCacheRepository) Get(ctx context.Context, textDigest string) (models.Vector, bool, error) {
	var entry models.CachedEmbedding
	err := r.db.WithContext(ctx).
		Where("text_digest = ? AND expires_at > ?", textDigest, time.Now()).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Embedding, true, nil
}

func (r *EmbeddingCacheRepository) Put(ctx context.Context, textDigest string, embedding models.Vector, ttl time.Duration) error {
	entry := models.CachedEmbedding{
		TextDigest: textDigest,
		Embedding:  embedding,
		ExpiresAt:  time.Now().Add(ttl),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "text_digest"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding", "expires_at"}),
	}).Create(&entry).Error
}

func (r *EmbeddingCacheRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.CachedEmbedding{}).
		Where("expires_at > ?", time.Now()).
		Count(&total).Error
	return total, err
}

func (r *EmbeddingCacheRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.CachedEmbedding{})
	return result.RowsAffected, result.Error
}
