package cache

import (
	"os"
	"path/filepath"
	"strings"
)

// VerifiedIndex answers whether a cached path has a verified Package record.
type VerifiedIndex interface {
	HasVerified(cachedPath string) (bool, error)
}

// Reclaim sweeps the cache directory on startup. Leftover ".tmp" partials
// from an interrupted shutdown are always deleted; tarballs without a
// verified Package record are deleted too, since their integrity was never
// established.
func (s *Store) Reclaim(index VerifiedIndex) (removed int) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error().Err(err).Msg("reclaim: cannot read cache dir")
		return 0
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(s.dir, name)

		switch {
		case strings.HasSuffix(name, ".tmp"):
			if err := os.Remove(path); err == nil {
				removed++
				s.log.Info().Str("file", name).Msg("reclaimed partial download")
			}
		case strings.HasSuffix(name, ".tgz"):
			ok, err := index.HasVerified(path)
			if err != nil {
				s.log.Error().Err(err).Str("file", name).Msg("reclaim: record lookup failed")
				continue
			}
			if !ok {
				if err := os.Remove(path); err == nil {
					removed++
					s.log.Info().Str("file", name).Msg("reclaimed unverified tarball")
				}
			}
		}
	}
	return removed
}
