// Package verify compares a cached tarball's digest against the integrity
// string the upstream registry declares for that version.
package verify

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkgb-in/pkgvault/db/models"
	"github.com/pkgb-in/pkgvault/internal/hashing"
	"github.com/pkgb-in/pkgvault/internal/upstream"
)

// MetadataSource supplies the upstream-declared integrity for a version.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, name string) (*upstream.Packument, error)
}

// AuditLog receives exactly one event per verification attempt.
type AuditLog interface {
	Append(ctx context.Context, event *models.SecurityEvent) error
}

// Result is the outcome of one verification attempt. It is a value, not an
// error: the caller decides how each outcome surfaces.
type Result struct {
	Verified  bool
	Threat    bool
	Digest    string
	Expected  string
	Algorithm string
	ElapsedMs int64
	Err       error
}

type Verifier struct {
	metadata MetadataSource
	audit    AuditLog
	log      zerolog.Logger
}

func New(metadata MetadataSource, audit AuditLog, log zerolog.Logger) *Verifier {
	return &Verifier{
		metadata: metadata,
		audit:    audit,
		log:      log.With().Str("component", "verify").Logger(),
	}
}

// VerifyTarball checks the file at path against the integrity upstream
// declares for (name, version). On mismatch the file is deleted and the
// result marks a threat. Every path through here records one audit event.
func (v *Verifier) VerifyTarball(ctx context.Context, name, version, path string) Result {
	start := time.Now()

	doc, err := v.metadata.FetchMetadata(ctx, name)
	if err != nil {
		return v.failure(ctx, name, version, fmt.Errorf("fetching upstream integrity: %w", err))
	}

	expected, ok := doc.Integrity(version)
	if !ok {
		return v.failure(ctx, name, version,
			fmt.Errorf("upstream declares no integrity for %s@%s", name, version))
	}

	algorithm := hashing.Algorithm(expected)
	observed, err := hashing.FileDigest(path, algorithm)
	if err != nil {
		return v.failure(ctx, name, version, err)
	}

	expected = hashing.Canonical(expected)
	elapsed := time.Since(start).Milliseconds()

	if observed != expected {
		if err := os.Remove(path); err != nil {
			v.log.Error().Err(err).Str("path", path).Msg("failed to delete corrupt tarball")
		}
		v.record(ctx, &models.SecurityEvent{
			PackageName:    name,
			Version:        version,
			Kind:           models.EventThreatDetected,
			ObservedDigest: observed,
			ExpectedDigest: expected,
			Details:        "computed digest does not match upstream integrity; file deleted",
		})
		v.log.Warn().
			Str("package", name).
			Str("version", version).
			Str("observed", observed).
			Str("expected", expected).
			Msg("integrity mismatch, tarball removed")
		return Result{Threat: true, Digest: observed, Expected: expected, Algorithm: algorithm, ElapsedMs: elapsed}
	}

	v.record(ctx, &models.SecurityEvent{
		PackageName:    name,
		Version:        version,
		Kind:           models.EventSuccess,
		ObservedDigest: observed,
		ExpectedDigest: expected,
	})
	return Result{Verified: true, Digest: observed, Expected: expected, Algorithm: algorithm, ElapsedMs: elapsed}
}

// failure covers transport, protocol and local I/O problems. These are not
// threats: the file stays on disk and the event kind says "failure".
func (v *Verifier) failure(ctx context.Context, name, version string, err error) Result {
	v.record(ctx, &models.SecurityEvent{
		PackageName: name,
		Version:     version,
		Kind:        models.EventFailure,
		Details:     err.Error(),
	})
	v.log.Warn().Err(err).Str("package", name).Str("version", version).Msg("verification failed")
	return Result{Err: err}
}

func (v *Verifier) record(ctx context.Context, event *models.SecurityEvent) {
	if err := v.audit.Append(ctx, event); err != nil {
		// The audit write failing must not swallow the verification outcome.
		v.log.Error().Err(err).Str("package", event.PackageName).Msg("failed to append security event")
	}
}
