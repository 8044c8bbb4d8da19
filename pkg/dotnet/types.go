package dotnet

// Types mirroring the machine-readable output of
// `dotnet list package --format json` (output version 1).

// ListingMode selects which report `dotnet list package` produces.
type ListingMode int

const (
	// ModeBaseline lists the packages currently referenced, with no
	// outdated/deprecated/vulnerable cross-check.
	ModeBaseline ListingMode = iota
	ModeOutdated
	ModeDeprecated
	ModeVulnerable
)

// String returns the mode name used in logs.
func (m ListingMode) String() string {
	switch m {
	case ModeOutdated:
		return "outdated"
	case ModeDeprecated:
		return "deprecated"
	case ModeVulnerable:
		return "vulnerable"
	default:
		return "baseline"
	}
}

// cliFlag returns the `dotnet list package` flag for the mode, or "" for the
// baseline listing.
func (m ListingMode) cliFlag() string {
	switch m {
	case ModeOutdated:
		return "--outdated"
	case ModeDeprecated:
		return "--deprecated"
	case ModeVulnerable:
		return "--vulnerable"
	default:
		return ""
	}
}

// Report is the root of one listing invocation's JSON output.
type Report struct {
	Version    int       `json:"version"`
	Parameters string    `json:"parameters"`
	Problems   []Problem `json:"problems,omitempty"`
	Sources    []string  `json:"sources,omitempty"`
	Projects   []Project `json:"projects"`
}

// Problem is a diagnostic the CLI attaches to the report, e.g. a project that
// has not been restored.
type Problem struct {
	Project string `json:"project,omitempty"`
	Level   string `json:"level,omitempty"`
	Text    string `json:"text"`
}

// Project is one project of the solution with its per-framework package lists.
type Project struct {
	Path       string      `json:"path"`
	Frameworks []Framework `json:"frameworks,omitempty"`
}

// Framework is one target framework's dependency graph slice. Within one
// report there is at most one entry per (project, framework) pair.
type Framework struct {
	Framework          string             `json:"framework"`
	TopLevelPackages   []PackageReference `json:"topLevelPackages,omitempty"`
	TransitivePackages []PackageReference `json:"transitivePackages,omitempty"`
}

// PackageReference is a single package row. RequestedVersion is only present
// for top-level packages; LatestVersion only in the outdated listing;
// DeprecationReasons/AlternativePackage only in the deprecated listing;
// Vulnerabilities only in the vulnerable listing.
type PackageReference struct {
	ID                 string              `json:"id"`
	RequestedVersion   string              `json:"requestedVersion,omitempty"`
	ResolvedVersion    string              `json:"resolvedVersion"`
	LatestVersion      string              `json:"latestVersion,omitempty"`
	DeprecationReasons []string            `json:"deprecationReasons,omitempty"`
	AlternativePackage *AlternativePackage `json:"alternativePackage,omitempty"`
	Vulnerabilities    []Vulnerability     `json:"vulnerabilities,omitempty"`
}

// AlternativePackage is the maintainer-suggested replacement for a deprecated
// package.
type AlternativePackage struct {
	ID           string `json:"id"`
	VersionRange string `json:"versionRange,omitempty"`
}

// Vulnerability is one advisory reported against a package version.
type Vulnerability struct {
	Severity    string `json:"severity"`
	AdvisoryURL string `json:"advisoryurl"`
}

// FindFramework returns the framework entry for the given (project path,
// framework moniker) pair, or nil if the report does not contain it. A nil
// report is treated as containing nothing.
func (r *Report) FindFramework(projectPath, framework string) *Framework {
	if r == nil {
		return nil
	}
	for i := range r.Projects {
		if r.Projects[i].Path != projectPath {
			continue
		}
		for j := range r.Projects[i].Frameworks {
			if r.Projects[i].Frameworks[j].Framework == framework {
				return &r.Projects[i].Frameworks[j]
			}
		}
	}
	return nil
}
