// Package hashing computes registry-style integrity strings
// ("<algo>-<base64>") over byte streams.
package hashing

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// DefaultAlgorithm matches what the npm registry publishes in dist.integrity.
const DefaultAlgorithm = "sha512"

func newHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("hashing: unsupported algorithm %q", algorithm)
	}
}

// FileDigest streams the file at path through the named hash and returns the
// integrity string. Memory use is bounded regardless of file size.
func FileDigest(path, algorithm string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()
	return Digest(f, algorithm)
}

// Digest consumes r and returns "<algo>-<base64>".
func Digest(r io.Reader, algorithm string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing stream: %w", err)
	}
	return Format(algorithm, h.Sum(nil)), nil
}

// Format encodes a raw digest as an integrity string.
func Format(algorithm string, sum []byte) string {
	return strings.ToLower(algorithm) + "-" + base64.StdEncoding.EncodeToString(sum)
}

// Algorithm extracts the algorithm prefix of an integrity string, falling
// back to DefaultAlgorithm when the string is empty or has no prefix.
func Algorithm(integrity string) string {
	if i := strings.IndexByte(integrity, '-'); i > 0 {
		return strings.ToLower(integrity[:i])
	}
	return DefaultAlgorithm
}

// Canonical lower-cases the algorithm prefix so two integrity strings can be
// compared as opaque strings.
func Canonical(integrity string) string {
	i := strings.IndexByte(integrity, '-')
	if i <= 0 {
		return integrity
	}
	return strings.ToLower(integrity[:i]) + integrity[i:]
}
