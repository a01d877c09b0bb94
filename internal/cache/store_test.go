package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgb-in/pkgvault/internal/upstream"
)

type fakeMetadataClient struct {
	payload []byte
	err     error
	calls   int
}

func (f *fakeMetadataClient) FetchMetadataRaw(ctx context.Context, name string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

const rawPackument = `{
	"name": "left-pad",
	"dist-tags": {"latest": "1.3.0"},
	"versions": {
		"1.3.0": {
			"dist": {
				"tarball": "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz",
				"integrity": "sha512-abc"
			}
		}
	}
}`

func tarballURL(t *testing.T, data []byte) string {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return tarballOf(t, doc)
}

func TestResolveMetadataOnline(t *testing.T) {
	client := &fakeMetadataClient{payload: []byte(rawPackument)}
	store, err := NewStore(t.TempDir(), client, zerolog.Nop())
	require.NoError(t, err)

	data, fromCache, err := store.ResolveMetadata(context.Background(), "left-pad", "http", "cache.lan:8080")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "http://cache.lan:8080/left-pad/-/left-pad-1.3.0.tgz", tarballURL(t, data))

	// The document is persisted for offline use.
	persisted, err := os.ReadFile(filepath.Join(store.Dir(), "left-pad.json"))
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(persisted))
}

func TestResolveMetadataOfflineRewritesAgainstCurrentHost(t *testing.T) {
	client := &fakeMetadataClient{payload: []byte(rawPackument)}
	store, err := NewStore(t.TempDir(), client, zerolog.Nop())
	require.NoError(t, err)

	_, _, err = store.ResolveMetadata(context.Background(), "left-pad", "http", "old-host:8080")
	require.NoError(t, err)

	client.err = errors.New("connection refused")
	data, fromCache, err := store.ResolveMetadata(context.Background(), "left-pad", "http", "new-host:9090")
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "http://new-host:9090/left-pad/-/left-pad-1.3.0.tgz", tarballURL(t, data))
}

func TestResolveMetadataNoCache(t *testing.T) {
	client := &fakeMetadataClient{err: upstream.ErrNotFound}
	store, err := NewStore(t.TempDir(), client, zerolog.Nop())
	require.NoError(t, err)

	_, _, err = store.ResolveMetadata(context.Background(), "ghost", "http", "h")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, upstream.ErrNotFound)
}

type fakeVerifiedIndex map[string]bool

func (f fakeVerifiedIndex) HasVerified(cachedPath string) (bool, error) {
	return f[filepath.Base(cachedPath)], nil
}

func TestReclaim(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"partial.tgz.tmp", "verified-1.0.0.tgz", "orphan-2.0.0.tgz", "left-pad.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	store, err := NewStore(dir, nil, zerolog.Nop())
	require.NoError(t, err)

	removed := store.Reclaim(fakeVerifiedIndex{"verified-1.0.0.tgz": true})
	assert.Equal(t, 2, removed)

	assert.True(t, store.HasTarball("verified-1.0.0.tgz"))
	assert.False(t, store.HasTarball("orphan-2.0.0.tgz"))
	assert.NoFileExists(t, filepath.Join(dir, "partial.tgz.tmp"))
	// Metadata documents are untouched.
	assert.FileExists(t, filepath.Join(dir, "left-pad.json"))
}
