package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServedCounter reports how many package downloads the proxy has served.
type ServedCounter interface {
	TotalServed() (int64, error)
}

// CacheStats holds periodically refreshed statistics about the cache
// directory and the database.
type CacheStats struct {
	cacheDir string
	served   ServedCounter
	log      zerolog.Logger

	mu             sync.RWMutex
	fileCount      int64
	totalSizeBytes int64
	packagesServed int64
	lastUpdated    time.Time
}

// New builds the stats collector and starts the background refresh ticker.
func New(cacheDir string, served ServedCounter, updateInterval time.Duration, log zerolog.Logger) *CacheStats {
	s := &CacheStats{
		cacheDir: cacheDir,
		served:   served,
		log:      log.With().Str("component", "stats").Logger(),
	}

	s.update()

	go func() {
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()
		for range ticker.C {
			s.update()
		}
	}()

	s.log.Info().Dur("interval", updateInterval).Msg("cache stats initialized")
	return s
}

func (s *CacheStats) update() {
	fileCount, totalSize := s.walkCacheDir()

	packagesServed := int64(0)
	if s.served != nil {
		total, err := s.served.TotalServed()
		if err != nil {
			s.log.Error().Err(err).Msg("failed to count served packages")
		} else {
			packagesServed = total
		}
	}

	s.mu.Lock()
	s.fileCount = fileCount
	s.totalSizeBytes = totalSize
	s.packagesServed = packagesServed
	s.lastUpdated = time.Now()
	s.mu.Unlock()
}

// Get returns the current cached statistics.
func (s *CacheStats) Get() (fileCount, totalSizeBytes, packagesServed int64, lastUpdated time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileCount, s.totalSizeBytes, s.packagesServed, s.lastUpdated
}

func (s *CacheStats) walkCacheDir() (fileCount, totalSize int64) {
	err := filepath.Walk(s.cacheDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			fileCount++
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("dir", s.cacheDir).Msg("failed to walk cache directory")
	}
	return fileCount, totalSize
}

// FormatBytes converts bytes to human-readable form.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
