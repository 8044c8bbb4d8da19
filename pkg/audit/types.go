// Package audit reconciles the four dotnet listing reports into one canonical
// record per package and applies the user-selected filters.
package audit

import (
	"sort"

	"github.com/sambabib/nuget-audit/pkg/dotnet"
)

// ProjectFramework identifies one dependency graph slice: a project file plus
// a target framework moniker.
type ProjectFramework struct {
	Project   string
	Framework string
}

// MergedPackage is the canonical per-package record within one
// ProjectFramework scope. It is built once by Merge and never mutated
// afterwards; Filter returns new mappings over the same records.
type MergedPackage struct {
	ID               string `json:"id"`
	RequestedVersion string `json:"requestedVersion,omitempty"`
	ResolvedVersion  string `json:"resolvedVersion"`
	// LatestVersion is empty when the outdated listing did not report the
	// package at all, i.e. "not checked" rather than "current".
	LatestVersion string `json:"latestVersion,omitempty"`
	TopLevel      bool   `json:"topLevel"`
	IsOutdated    bool   `json:"isOutdated"`
	IsDeprecated  bool   `json:"isDeprecated"`

	DeprecationReasons []string                   `json:"deprecationReasons,omitempty"`
	Alternative        *dotnet.AlternativePackage `json:"alternative,omitempty"`
	Vulnerabilities    []dotnet.Vulnerability     `json:"vulnerabilities,omitempty"`
}

// Result maps every (project, framework) pair found in the listings to its
// merged package mapping.
type Result map[ProjectFramework]map[string]*MergedPackage

// SkipCounter tallies malformed listing entries that were skipped rather than
// merged.
type SkipCounter struct {
	Projects   int
	Frameworks int
}

// Total returns the number of skipped entries.
func (c SkipCounter) Total() int {
	return c.Projects + c.Frameworks
}

// SortedIDs returns the package ids of a merged mapping in lexical order, for
// order-sensitive rendering.
func SortedIDs(pkgs map[string]*MergedPackage) []string {
	ids := make([]string, 0, len(pkgs))
	for id := range pkgs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedPairs returns the (project, framework) keys of a result in lexical
// order.
func (r Result) SortedPairs() []ProjectFramework {
	pairs := make([]ProjectFramework, 0, len(r))
	for pf := range r {
		pairs = append(pairs, pf)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Project != pairs[j].Project {
			return pairs[i].Project < pairs[j].Project
		}
		return pairs[i].Framework < pairs[j].Framework
	})
	return pairs
}
