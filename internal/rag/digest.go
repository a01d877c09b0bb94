package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// TextDigest is the content address for the embedding cache: FNV-1a 64,
// fast and collision-tolerant enough for a short-TTL memoization key.
func TextDigest(text string) string {
	h := fnv.New64a()
	h.Write([]byte(text))
	return fmt.Sprintf("%016x", h.Sum64())
}

// QuestionDigest keys the response cache. Answers live for a day, so a
// cryptographic hash keeps unrelated questions from ever aliasing.
func QuestionDigest(question string) string {
	sum := sha256.Sum256([]byte(question))
	return hex.EncodeToString(sum[:])
}
