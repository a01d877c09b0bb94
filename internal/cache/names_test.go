package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTarballFileName(t *testing.T) {
	cases := []struct {
		path, want string
	}{
		{"/left-pad/-/left-pad-1.3.0.tgz", "left-pad-1.3.0.tgz"},
		{"/@types/node/-/node-20.1.0.tgz", "@types__node-20.1.0.tgz"},
		{"/@babel/core/-/core-7.24.0.tgz", "@babel__core-7.24.0.tgz"},
		{"express/-/express-4.18.2.tgz", "express-4.18.2.tgz"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TarballFileName(tc.path), tc.path)
	}
}

func TestMetadataFileName(t *testing.T) {
	assert.Equal(t, "express.json", MetadataFileName("express"))
	assert.Equal(t, "@types__node.json", MetadataFileName("@types/node"))
}

func TestVersionFromFileName(t *testing.T) {
	cases := []struct {
		filename string
		want     string
		ok       bool
	}{
		{"left-pad-1.3.0.tgz", "1.3.0", true},
		{"express-4.18.2.tgz", "4.18.2", true},
		{"foo-2.0.0-beta.1.tgz", "2.0.0-beta.1", true},
		{"foo-2.0.0-beta-1.tgz", "2.0.0-beta-1", true},
		{"@types__node-20.1.0.tgz", "20.1.0", true},
		{"pkg-1.2.3-rc.1+build.5.tgz", "1.2.3-rc.1+build.5", true},
		{"no-version.tgz", "", false},
		{"left-pad-1.3.tgz", "", false},
	}
	for _, tc := range cases {
		got, ok := VersionFromFileName(tc.filename)
		assert.Equal(t, tc.ok, ok, tc.filename)
		assert.Equal(t, tc.want, got, tc.filename)
	}
}
