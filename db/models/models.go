package models

import (
	"time"
)

// Security event kinds. Every completed verification attempt writes exactly
// one event with one of these kinds.
const (
	EventSuccess        = "success"
	EventThreatDetected = "threat_detected"
	EventFailure        = "failure"
)

// Package records one tarball download and its verification outcome.
// Verified=true means the on-disk digest equalled the upstream-declared
// integrity at VerifiedAt.
type Package struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name" gorm:"uniqueIndex:idx_packages_name_version,priority:1;index"`
	Version    string    `db:"version" json:"version" gorm:"uniqueIndex:idx_packages_name_version,priority:2"`
	Integrity  string    `db:"integrity" json:"integrity"`
	Algorithm  string    `db:"algorithm" json:"algorithm"`
	CachedPath string    `db:"cached_path" json:"cachedPath"`
	Verified   bool      `db:"verified" json:"verified"`
	VerifiedAt time.Time `db:"verified_at" json:"verifiedAt"`
	CacheHit   int64     `db:"cache_hit" json:"cacheHit"`
	CacheMiss  int64     `db:"cache_miss" json:"cacheMiss"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Chunk is one retrieval unit of a package's README. (PackageName,
// ChunkIndex) is unique; re-ingest replaces the whole set for a package.
type Chunk struct {
	ID          int64     `db:"id" json:"id"`
	PackageName string    `db:"package_name" json:"packageName" gorm:"uniqueIndex:idx_chunks_pkg_idx,priority:1;index"`
	ChunkIndex  int       `db:"chunk_index" json:"chunkIndex" gorm:"uniqueIndex:idx_chunks_pkg_idx,priority:2"`
	Text        string    `db:"text" json:"text"`
	Embedding   Vector    `db:"embedding" json:"embedding,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// HasEmbedding reports whether the chunk can take part in the semantic pass.
func (c Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// CachedResponse memoizes a chat answer keyed by a digest of the question.
type CachedResponse struct {
	ID             int64     `db:"id" json:"id"`
	QuestionDigest string    `db:"question_digest" json:"questionDigest" gorm:"uniqueIndex"`
	Answer         string    `db:"answer" json:"answer"`
	ExpiresAt      time.Time `db:"expires_at" json:"expiresAt" gorm:"index"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// CachedEmbedding memoizes an embedding vector keyed by a digest of the
// embedded text.
type CachedEmbedding struct {
	ID         int64     `db:"id" json:"id"`
	TextDigest string    `db:"text_digest" json:"textDigest" gorm:"uniqueIndex"`
	Embedding  Vector    `db:"embedding" json:"embedding"`
	ExpiresAt  time.Time `db:"expires_at" json:"expiresAt" gorm:"index"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// SecurityEvent is an append-only audit record of a verification attempt.
type SecurityEvent struct {
	ID             int64     `db:"id" json:"id"`
	PackageName    string    `db:"package_name" json:"packageName" gorm:"index"`
	Version        string    `db:"version" json:"version"`
	Kind           string    `db:"kind" json:"kind" gorm:"index"`
	ObservedDigest string    `db:"observed_digest" json:"observedDigest"`
	ExpectedDigest string    `db:"expected_digest" json:"expectedDigest"`
	Details        string    `db:"details" json:"details"`
	CreatedAt      time.Time `db:"created_at" json:"at" gorm:"index"`
}
