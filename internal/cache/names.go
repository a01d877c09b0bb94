package cache

import (
	"path/filepath"
	"regexp"
	"strings"
)

// TarballFileName flattens a registry tarball request path into a single
// cache filename. Scoped packages keep their scope so two packages with the
// same basename cannot collide:
//
//	/@types/node/-/node-20.1.0.tgz -> @types__node-20.1.0.tgz
//	/left-pad/-/left-pad-1.3.0.tgz -> left-pad-1.3.0.tgz
func TarballFileName(urlPath string) string {
	urlPath = strings.TrimPrefix(urlPath, "/")

	if strings.HasPrefix(urlPath, "@") {
		parts := strings.Split(urlPath, "/-/")
		if len(parts) == 2 {
			scope := strings.SplitN(parts[0], "/", 2)[0]
			return scope + "__" + filepath.Base(parts[1])
		}
	}
	return filepath.Base(urlPath)
}

// MetadataFileName maps a package name to its on-disk metadata document.
func MetadataFileName(name string) string {
	return strings.ReplaceAll(name, "/", "__") + ".json"
}

// versionPattern captures the semver suffix of a tarball filename, before
// ".tgz". The version is the first "-<digits>.<digits>.<digits>" group with
// an optional pre-release/build tail (which may itself contain hyphens), so
// hyphenated package names ("left-pad-1.3.0.tgz") and pre-releases
// ("foo-2.0.0-beta-1.tgz") both resolve; a filename with no such suffix has
// no resolvable version.
var versionPattern = regexp.MustCompile(`-(\d+\.\d+\.\d+(?:-[0-9A-Za-z.+-]+)?)\.tgz$`)

// VersionFromFileName extracts the version encoded in a tarball filename.
func VersionFromFileName(filename string) (string, bool) {
	m := versionPattern.FindStringSubmatch(filename)
	if m == nil {
		return "", false
	}
	return m[1], true
}
