package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkgb-in/pkgvault/db/models"
	"github.com/pkgb-in/pkgvault/internal/verify"
)

// ErrThreatDetected means the downloaded tarball failed integrity
// verification and was deleted.
var ErrThreatDetected = errors.New("tarball failed integrity verification")

// TarballClient streams tarball bytes from the registry.
type TarballClient interface {
	OpenTarball(ctx context.Context, path string) (io.ReadCloser, int64, error)
}

// TarballVerifier checks a completed download against upstream integrity.
type TarballVerifier interface {
	VerifyTarball(ctx context.Context, name, version, path string) verify.Result
}

// RecordStore persists Package records and access counters.
type RecordStore interface {
	Upsert(pkg *models.Package) error
	RecordAccess(name, version string, hit bool) error
}

// flight is one in-progress download. Waiters block on done and then
// re-check the disk; err tells the owner's client what happened but waiters
// decide for themselves (a failed peer attempt makes them retry).
type flight struct {
	done chan struct{}
	err  error
}

// Coordinator guarantees at most one upstream fetch per tarball filename.
// Concurrent requesters for the same file wait for the owner and are then
// served from disk.
type Coordinator struct {
	store    *Store
	client   TarballClient
	verifier TarballVerifier
	records  RecordStore

	mu       sync.Mutex
	inflight map[string]*flight

	log zerolog.Logger
}

func NewCoordinator(store *Store, client TarballClient, verifier TarballVerifier, records RecordStore, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		client:   client,
		verifier: verifier,
		records:  records,
		inflight: make(map[string]*flight),
		log:      log.With().Str("component", "download").Logger(),
	}
}

// DownloadResult describes how a tarball request was satisfied.
type DownloadResult struct {
	Filename  string
	FromCache bool
	BytesSent int64
	Size      int64
	Verify    verify.Result
}

// ServeTarball satisfies one tarball request: disk first, then wait on any
// in-progress peer download, then download ourselves. w receives the bytes
// as they arrive (pass io.Discard to only warm the cache).
func (c *Coordinator) ServeTarball(ctx context.Context, name, requestPath string, w io.Writer) (DownloadResult, error) {
	filename := TarballFileName(requestPath)

	for {
		if c.store.HasTarball(filename) {
			return c.serveFromDisk(name, filename, w)
		}

		c.mu.Lock()
		if peer, ok := c.inflight[filename]; ok {
			c.mu.Unlock()
			select {
			case <-peer.done:
				// Peer finished. If it succeeded the file is on disk and the
				// next iteration streams it; if it failed we fall through and
				// attempt our own download.
				continue
			case <-ctx.Done():
				return DownloadResult{Filename: filename}, ctx.Err()
			}
		}

		f := &flight{done: make(chan struct{})}
		c.inflight[filename] = f
		c.mu.Unlock()

		result, err := c.download(ctx, name, filename, requestPath, w)

		c.mu.Lock()
		delete(c.inflight, filename)
		c.mu.Unlock()
		f.err = err
		close(f.done)

		return result, err
	}
}

func (c *Coordinator) serveFromDisk(name, filename string, w io.Writer) (DownloadResult, error) {
	path := c.store.TarballPath(filename)
	file, err := os.Open(path)
	if err != nil {
		return DownloadResult{Filename: filename}, fmt.Errorf("opening cached tarball: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return DownloadResult{Filename: filename}, err
	}

	if version, ok := VersionFromFileName(filename); ok {
		if err := c.records.RecordAccess(name, version, true); err != nil {
			c.log.Error().Err(err).Str("file", filename).Msg("failed to record cache hit")
		}
	}

	sent, err := io.Copy(w, file)
	return DownloadResult{
		Filename:  filename,
		FromCache: true,
		BytesSent: sent,
		Size:      stat.Size(),
	}, err
}

// download streams the upstream body to the client and a temp file at once.
// The disk sink always wins: a client write failure stops client writes but
// the download continues, since the cache benefit outlives one request. For
// the same reason the upstream fetch runs on a context detached from the
// request, so a client disconnect does not abort it.
func (c *Coordinator) download(ctx context.Context, name, filename, requestPath string, w io.Writer) (DownloadResult, error) {
	result := DownloadResult{Filename: filename}
	fetchCtx := context.WithoutCancel(ctx)

	body, size, err := c.client.OpenTarball(fetchCtx, requestPath)
	if err != nil {
		return result, err
	}
	defer body.Close()
	result.Size = size

	finalPath := c.store.TarballPath(filename)
	tempPath := finalPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return result, fmt.Errorf("creating temp file: %w", err)
	}

	buf := make([]byte, 32*1024)
	clientOK := w != nil
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				os.Remove(tempPath)
				return result, fmt.Errorf("writing tarball to disk: %w", werr)
			}
			if clientOK {
				if m, werr := w.Write(buf[:n]); werr != nil {
					// Partial bytes are already out; the connection just dies.
					clientOK = false
					c.log.Debug().Err(werr).Str("file", filename).Msg("client gone, download continues")
				} else {
					result.BytesSent += int64(m)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			os.Remove(tempPath)
			return result, fmt.Errorf("upstream stream for %s: %w", filename, rerr)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return result, fmt.Errorf("closing temp file: %w", err)
	}
	// Readers only ever see fully written files.
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return result, fmt.Errorf("promoting temp file: %w", err)
	}

	version, ok := VersionFromFileName(filename)
	if !ok {
		c.log.Warn().Str("file", filename).Msg("no resolvable version, skipping verification")
		return result, nil
	}

	result.Verify = c.verifier.VerifyTarball(fetchCtx, name, version, finalPath)
	c.writeRecord(name, version, filename, finalPath, result.Verify)

	if result.Verify.Threat {
		return result, fmt.Errorf("%s@%s: %w", name, version, ErrThreatDetected)
	}
	return result, nil
}

// writeRecord persists the download outcome. Threats leave no record: the
// file is gone, only the audit event remains.
func (c *Coordinator) writeRecord(name, version, filename, path string, res verify.Result) {
	if res.Threat {
		return
	}
	pkg := &models.Package{
		Name:       name,
		Version:    version,
		Integrity:  res.Digest,
		Algorithm:  res.Algorithm,
		CachedPath: path,
		Verified:   res.Verified,
	}
	if res.Verified {
		pkg.VerifiedAt = time.Now()
	}
	if err := c.records.Upsert(pkg); err != nil {
		c.log.Error().Err(err).Str("file", filename).Msg("failed to persist package record")
		return
	}
	if err := c.records.RecordAccess(name, version, false); err != nil {
		c.log.Error().Err(err).Str("file", filename).Msg("failed to record cache miss")
	}
}
