// Package cache owns the on-disk tarball and metadata store and the
// download coordination on top of it. Layout is flat: "<filename>.tgz"
// tarballs next to "<package>.json" rewritten metadata documents.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ErrUpstreamUnavailable means the registry could not be reached and no
// cached copy exists. The proxy surfaces it as 502.
var ErrUpstreamUnavailable = errors.New("upstream unreachable and no cached copy")

// MetadataClient is the slice of the upstream client the store needs.
type MetadataClient interface {
	FetchMetadataRaw(ctx context.Context, name string) ([]byte, error)
}

// Store is the package cache: rewritten metadata documents and verified
// tarballs on disk.
type Store struct {
	dir      string
	upstream MetadataClient
	log      zerolog.Logger
}

func NewStore(dir string, upstream MetadataClient, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Store{
		dir:      dir,
		upstream: upstream,
		log:      log.With().Str("component", "cache").Logger(),
	}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string { return s.dir }

// TarballPath maps a cache filename to its on-disk location.
func (s *Store) TarballPath(filename string) string {
	return filepath.Join(s.dir, filepath.Base(filename))
}

// HasTarball reports whether a fully written tarball exists. Partial
// downloads live under a ".tmp" suffix and are renamed only after close, so
// a positive answer here never exposes a truncated file.
func (s *Store) HasTarball(filename string) bool {
	stat, err := os.Stat(s.TarballPath(filename))
	return err == nil && stat.Size() > 0
}

func (s *Store) metadataPath(name string) string {
	return filepath.Join(s.dir, MetadataFileName(name))
}

// ResolveMetadata returns the package metadata with every tarball URL
// rewritten against the requesting host. Fresh upstream metadata is
// persisted for offline use; when upstream is unreachable the persisted copy
// is re-rewritten against the current host, because the server's advertised
// address may have changed since the last online run.
func (s *Store) ResolveMetadata(ctx context.Context, name, scheme, host string) ([]byte, bool, error) {
	raw, upstreamErr := s.upstream.FetchMetadataRaw(ctx, name)
	if upstreamErr == nil {
		rewritten, err := s.rewrite(raw, scheme, host)
		if err != nil {
			return nil, false, err
		}
		if err := os.WriteFile(s.metadataPath(name), rewritten, 0o644); err != nil {
			// Losing the offline copy is not fatal to this request.
			s.log.Error().Err(err).Str("package", name).Msg("failed to persist metadata")
		}
		return rewritten, false, nil
	}

	cached, err := os.ReadFile(s.metadataPath(name))
	if err != nil {
		// Both sentinels stay inspectable: 404-with-no-cache and
		// unreachable-with-no-cache surface differently.
		return nil, false, fmt.Errorf("%s: %w (upstream: %w)", name, ErrUpstreamUnavailable, upstreamErr)
	}

	s.log.Warn().Err(upstreamErr).Str("package", name).Msg("serving cached metadata, upstream unreachable")
	rewritten, err := s.rewrite(cached, scheme, host)
	if err != nil {
		return nil, false, err
	}
	return rewritten, true, nil
}

func (s *Store) rewrite(raw []byte, scheme, host string) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing metadata document: %w", err)
	}
	RewriteTarballs(doc, scheme, host)
	return json.Marshal(doc)
}

// RemoveByGlob deletes cached tarballs matching the pattern. Used by purge.
func (s *Store) RemoveByGlob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, filepath.Base(pattern)))
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(matches))
	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			s.log.Error().Err(err).Str("path", match).Msg("failed to remove cache file")
			continue
		}
		removed = append(removed, filepath.Base(match))
	}
	return removed, nil
}
