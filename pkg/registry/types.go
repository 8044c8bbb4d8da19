package registry

import (
	"context"
	"fmt"
)

// PackageKey identifies one package version across the whole audit run. It is
// used directly as a map key; no delimiter-joined string keys.
type PackageKey struct {
	ID      string
	Version string
}

func (k PackageKey) String() string {
	return k.ID + " " + k.Version
}

// Dependency is one edge of a package's dependency graph.
type Dependency struct {
	ID    string `json:"id"`
	Range string `json:"range,omitempty"`
}

// DependencyGroup lists a package's dependencies for one target framework.
type DependencyGroup struct {
	TargetFramework string       `json:"targetFramework,omitempty"`
	Dependencies    []Dependency `json:"dependencies,omitempty"`
}

// PackageMetadata is the enrichment record for one (id, version) pair.
// PackageURL is always populated, even for fallback records.
type PackageMetadata struct {
	PackageURL       string            `json:"packageUrl"`
	ProjectURL       string            `json:"projectUrl,omitempty"`
	DependencyGroups []DependencyGroup `json:"dependencyGroups"`
}

// MetadataSource fetches registry metadata for one package version. The fetch
// pipeline is the sole caller.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, key PackageKey) (*PackageMetadata, error)
}

// PackageURL builds the deterministic gallery URL for a package version.
func PackageURL(key PackageKey) string {
	return fmt.Sprintf("https://www.nuget.org/packages/%s/%s", key.ID, key.Version)
}

// FallbackMetadata is the minimal record substituted when a fetch fails: the
// templated gallery URL and no dependency groups.
func FallbackMetadata(key PackageKey) *PackageMetadata {
	return &PackageMetadata{
		PackageURL:       PackageURL(key),
		DependencyGroups: []DependencyGroup{},
	}
}
