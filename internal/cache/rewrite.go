package cache

import (
	"fmt"
	"net/url"
)

// RewriteTarballs replaces the scheme and authority of every
// versions[*].dist.tarball URL in the packument with the given ones, keeping
// the path. Clients then come back to this server for the tarball bytes.
// The substitution is idempotent: rewriting an already-rewritten document
// against the same host is a no-op.
func RewriteTarballs(doc map[string]any, scheme, host string) bool {
	versions, ok := doc["versions"].(map[string]any)
	if !ok {
		return false
	}

	rewrote := false
	for _, v := range versions {
		info, ok := v.(map[string]any)
		if !ok {
			continue
		}
		dist, ok := info["dist"].(map[string]any)
		if !ok {
			continue
		}
		tarball, ok := dist["tarball"].(string)
		if !ok || tarball == "" {
			continue
		}
		parsed, err := url.Parse(tarball)
		if err != nil || parsed.Path == "" {
			continue
		}
		dist["tarball"] = fmt.Sprintf("%s://%s%s", scheme, host, parsed.Path)
		rewrote = true
	}
	return rewrote
}
