package hashing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestKnownVectors(t *testing.T) {
	// echo -n "hello" | openssl dgst -sha512 -binary | base64
	got, err := Digest(strings.NewReader("hello"), "sha512")
	require.NoError(t, err)
	assert.Equal(t, "sha512-m3HSJL1i83hdltRq0+o9czGb+8KJDKra4t/3JRlnPKcjI8PZm6XBHXx6zG4UuMXaDEZjR1wuXDre9G9zvN7AQw==", got)

	got, err = Digest(strings.NewReader("hello"), "sha256")
	require.NoError(t, err)
	assert.Equal(t, "sha256-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=", got)
}

func TestDigestUnsupportedAlgorithm(t *testing.T) {
	_, err := Digest(strings.NewReader("x"), "md5")
	assert.Error(t, err)
}

func TestFileDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	fromFile, err := FileDigest(path, "sha512")
	require.NoError(t, err)
	fromStream, err := Digest(strings.NewReader("hello"), "sha512")
	require.NoError(t, err)
	assert.Equal(t, fromStream, fromFile)

	_, err = FileDigest(filepath.Join(t.TempDir(), "missing"), "sha512")
	assert.Error(t, err)
}

func TestAlgorithm(t *testing.T) {
	assert.Equal(t, "sha1", Algorithm("sha1-abc"))
	assert.Equal(t, "sha512", Algorithm("SHA512-abc"))
	assert.Equal(t, DefaultAlgorithm, Algorithm(""))
	assert.Equal(t, DefaultAlgorithm, Algorithm("nodash"))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "sha512-AbC==", Canonical("SHA512-AbC=="))
	// The base64 payload is case-sensitive and must stay untouched.
	assert.Equal(t, "sha256-QUJD", Canonical("sha256-QUJD"))
	assert.Equal(t, "nodash", Canonical("nodash"))
}
