package output

import (
	"encoding/json"
	"sort"

	"github.com/sambabib/nuget-audit/pkg/audit"
	"github.com/sambabib/nuget-audit/pkg/registry"
)

// jsonReport is the root of the JSON rendering. Sections are sorted so the
// document is deterministic for identical inputs.
type jsonReport struct {
	Projects []jsonProjectSection `json:"projects"`
	Metadata []jsonMetadataEntry  `json:"metadata"`
}

type jsonProjectSection struct {
	Project   string                 `json:"project"`
	Framework string                 `json:"framework"`
	Packages  []*audit.MergedPackage `json:"packages"`
}

type jsonMetadataEntry struct {
	ID       string                    `json:"id"`
	Version  string                    `json:"version"`
	Metadata *registry.PackageMetadata `json:"metadata"`
}

// GenerateJSONReport serializes the merged result and metadata mapping.
func GenerateJSONReport(result audit.Result, metadata map[registry.PackageKey]*registry.PackageMetadata) ([]byte, error) {
	report := jsonReport{
		Projects: make([]jsonProjectSection, 0, len(result)),
		Metadata: make([]jsonMetadataEntry, 0, len(metadata)),
	}

	for _, pf := range result.SortedPairs() {
		section := jsonProjectSection{
			Project:   pf.Project,
			Framework: pf.Framework,
			Packages:  make([]*audit.MergedPackage, 0, len(result[pf])),
		}
		for _, id := range audit.SortedIDs(result[pf]) {
			section.Packages = append(section.Packages, result[pf][id])
		}
		report.Projects = append(report.Projects, section)
	}

	for _, key := range sortedMetadataKeys(metadata) {
		report.Metadata = append(report.Metadata, jsonMetadataEntry{
			ID:       key.ID,
			Version:  key.Version,
			Metadata: metadata[key],
		})
	}

	return json.MarshalIndent(report, "", "  ")
}

func sortedMetadataKeys(metadata map[registry.PackageKey]*registry.PackageMetadata) []registry.PackageKey {
	keys := make([]registry.PackageKey, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ID != keys[j].ID {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].Version < keys[j].Version
	})
	return keys
}
