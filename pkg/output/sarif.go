package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sambabib/nuget-audit/pkg/audit"
)

// SARIF format specification: https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html

// SarifReport represents the top-level SARIF report structure
type SarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []SarifRun `json:"runs"`
}

// SarifRun represents a single run of the analysis tool
type SarifRun struct {
	Tool        SarifTool         `json:"tool"`
	Results     []SarifResult     `json:"results"`
	Invocations []SarifInvocation `json:"invocations"`
}

// SarifTool represents the tool that performed the analysis
type SarifTool struct {
	Driver SarifDriver `json:"driver"`
}

// SarifDriver represents the driver of the tool
type SarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []SarifRule `json:"rules"`
}

// SarifRule represents a rule that was evaluated during the analysis
type SarifRule struct {
	ID               string            `json:"id"`
	ShortDescription SarifMessage      `json:"shortDescription"`
	FullDescription  SarifMessage      `json:"fullDescription"`
	Help             SarifMessage      `json:"help"`
	Properties       map[string]string `json:"properties,omitempty"`
}

// SarifResult represents a result of the analysis
type SarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   SarifMessage    `json:"message"`
	Locations []SarifLocation `json:"locations"`
}

// SarifMessage represents a message in the SARIF report
type SarifMessage struct {
	Text string `json:"text"`
}

// SarifLocation represents a location in the code
type SarifLocation struct {
	PhysicalLocation SarifPhysicalLocation `json:"physicalLocation"`
}

// SarifPhysicalLocation represents a physical location in the code
type SarifPhysicalLocation struct {
	ArtifactLocation SarifArtifactLocation `json:"artifactLocation"`
}

// SarifArtifactLocation represents the location of an artifact
type SarifArtifactLocation struct {
	URI string `json:"uri"`
}

// SarifInvocation represents an invocation of the tool
type SarifInvocation struct {
	ExecutionSuccessful bool   `json:"executionSuccessful"`
	StartTimeUtc        string `json:"startTimeUtc"`
	EndTimeUtc          string `json:"endTimeUtc"`
}

// GenerateSarifReport converts the merged audit result to SARIF format. Only
// packages with a finding (outdated, deprecated or vulnerable) produce
// results; clean packages are omitted.
func GenerateSarifReport(result audit.Result, toolVersion string) ([]byte, error) {
	rules := []SarifRule{
		{
			ID:               "outdated",
			ShortDescription: SarifMessage{Text: "Outdated dependency"},
			FullDescription:  SarifMessage{Text: "A newer version of this package is available in the registry."},
			Help:             SarifMessage{Text: "Consider updating the package reference and reviewing the changelog."},
		},
		{
			ID:               "deprecated",
			ShortDescription: SarifMessage{Text: "Deprecated dependency"},
			FullDescription:  SarifMessage{Text: "This package version is marked as deprecated by its maintainers."},
			Help:             SarifMessage{Text: "Switch to the suggested alternative package if one is provided."},
		},
		{
			ID:               "vulnerable",
			ShortDescription: SarifMessage{Text: "Vulnerable dependency"},
			FullDescription:  SarifMessage{Text: "This package version has known security advisories."},
			Help:             SarifMessage{Text: "Update to a patched version as soon as possible."},
		},
	}

	var results []SarifResult
	for _, pf := range result.SortedPairs() {
		pkgs := result[pf]
		location := []SarifLocation{
			{PhysicalLocation: SarifPhysicalLocation{ArtifactLocation: SarifArtifactLocation{URI: pf.Project}}},
		}

		for _, id := range audit.SortedIDs(pkgs) {
			pkg := pkgs[id]

			if len(pkg.Vulnerabilities) > 0 {
				advisories := make([]string, 0, len(pkg.Vulnerabilities))
				worst := "note"
				for _, v := range pkg.Vulnerabilities {
					advisories = append(advisories, v.AdvisoryURL)
					if lvl := severityLevel(v.Severity); levelRank(lvl) > levelRank(worst) {
						worst = lvl
					}
				}
				results = append(results, SarifResult{
					RuleID: "vulnerable",
					Level:  worst,
					Message: SarifMessage{Text: fmt.Sprintf("%s %s (%s) has %d known advisory(ies): %s",
						pkg.ID, pkg.ResolvedVersion, pf.Framework, len(pkg.Vulnerabilities), strings.Join(advisories, ", "))},
					Locations: location,
				})
			}

			if pkg.IsDeprecated {
				text := fmt.Sprintf("%s %s (%s) is deprecated", pkg.ID, pkg.ResolvedVersion, pf.Framework)
				if len(pkg.DeprecationReasons) > 0 {
					text += fmt.Sprintf(" (%s)", strings.Join(pkg.DeprecationReasons, ", "))
				}
				if pkg.Alternative != nil {
					text += fmt.Sprintf("; consider %s %s", pkg.Alternative.ID, pkg.Alternative.VersionRange)
				}
				results = append(results, SarifResult{
					RuleID:    "deprecated",
					Level:     "warning",
					Message:   SarifMessage{Text: text},
					Locations: location,
				})
			}

			if pkg.IsOutdated {
				results = append(results, SarifResult{
					RuleID: "outdated",
					Level:  "note",
					Message: SarifMessage{Text: fmt.Sprintf("%s (%s): resolved %s, latest %s",
						pkg.ID, pf.Framework, pkg.ResolvedVersion, pkg.LatestVersion)},
					Locations: location,
				})
			}
		}
	}
	if results == nil {
		results = []SarifResult{}
	}

	now := time.Now().UTC()
	report := SarifReport{
		Schema:  "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json",
		Version: "2.1.0",
		Runs: []SarifRun{
			{
				Tool: SarifTool{
					Driver: SarifDriver{
						Name:           "nuget-audit",
						Version:        toolVersion,
						InformationURI: "https://github.com/sambabib/nuget-audit",
						Rules:          rules,
					},
				},
				Results: results,
				Invocations: []SarifInvocation{
					{
						ExecutionSuccessful: true,
						StartTimeUtc:        now.Add(-time.Second).Format(time.RFC3339),
						EndTimeUtc:          now.Format(time.RFC3339),
					},
				},
			},
		},
	}

	return json.MarshalIndent(report, "", "  ")
}

// severityLevel maps a NuGet advisory severity to a SARIF level.
func severityLevel(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return "error"
	case "moderate", "medium":
		return "warning"
	default:
		return "note"
	}
}

func levelRank(level string) int {
	switch level {
	case "error":
		return 3
	case "warning":
		return 2
	default:
		return 1
	}
}
