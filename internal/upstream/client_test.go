package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "pkgvault", r.Header.Get("User-Agent"))
		w.Write([]byte(`{
			"name": "left-pad",
			"dist-tags": {"latest": "1.3.0"},
			"versions": {"1.3.0": {"dist": {"integrity": "sha512-abc", "tarball": "https://x/y.tgz"}}}
		}`))
	}))
	defer srv.Close()

	doc, err := New(srv.URL).FetchMetadata(context.Background(), "left-pad")
	require.NoError(t, err)
	assert.Equal(t, "left-pad", doc.Name)

	latest, ok := doc.Latest()
	require.True(t, ok)
	assert.Equal(t, "1.3.0", latest)

	integrity, ok := doc.Integrity("1.3.0")
	require.True(t, ok)
	assert.Equal(t, "sha512-abc", integrity)

	_, ok = doc.Integrity("9.9.9")
	assert.False(t, ok)
}

func TestFetchMetadataNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchMetadataRaw(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchMetadataScopedNameEncoding(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchMetadataRaw(context.Background(), "@types/node")
	require.NoError(t, err)
	assert.Equal(t, "/@types%2Fnode", gotURI)
}

func TestOpenTarball(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/left-pad/-/left-pad-1.3.0.tgz", r.URL.Path)
		w.Write([]byte("tarball bytes"))
	}))
	defer srv.Close()

	body, size, err := New(srv.URL).OpenTarball(context.Background(), "/left-pad/-/left-pad-1.3.0.tgz")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "tarball bytes", string(data))
	assert.Equal(t, int64(len(data)), size)
}

func TestOpenTarballNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := New(srv.URL).OpenTarball(context.Background(), "/ghost/-/ghost-1.0.0.tgz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocText(t *testing.T) {
	withReadme := &Packument{Readme: "the readme", Description: "short"}
	assert.Equal(t, "the readme", withReadme.DocText())

	descriptionOnly := &Packument{Description: "short"}
	assert.Equal(t, "short", descriptionOnly.DocText())
}
