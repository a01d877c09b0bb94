package upstream

// Packument is the typed view of a registry metadata document. Only the
// fields the verifier and the ingest pipeline read are declared; the cache
// works on the raw bytes instead so nothing is dropped.
type Packument struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Readme      string                    `json:"readme"`
	DistTags    map[string]string         `json:"dist-tags"`
	Versions    map[string]PackageVersion `json:"versions"`
}

// PackageVersion is one entry of the versions map.
type PackageVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dist    Dist   `json:"dist"`
}

// Dist carries the upstream-declared download location and integrity.
type Dist struct {
	Integrity string `json:"integrity"`
	Shasum    string `json:"shasum"`
	Tarball   string `json:"tarball"`
}

// Latest resolves the version to use when the caller did not pin one.
func (p *Packument) Latest() (string, bool) {
	v, ok := p.DistTags["latest"]
	return v, ok
}

// Integrity returns the declared integrity string for a version, or ok=false
// when the version or its integrity is absent. Absence is a verification
// failure, not a threat.
func (p *Packument) Integrity(version string) (string, bool) {
	v, ok := p.Versions[version]
	if !ok || v.Dist.Integrity == "" {
		return "", false
	}
	return v.Dist.Integrity, true
}

// DocText returns the text the ingest pipeline chunks: the README, falling
// back to the short description.
func (p *Packument) DocText() string {
	if p.Readme != "" {
		return p.Readme
	}
	return p.Description
}
