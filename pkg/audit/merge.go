package audit

import (
	"github.com/sambabib/nuget-audit/pkg/dotnet"
	"github.com/sambabib/nuget-audit/pkg/logger"
)

// Merge combines the four listing reports for one (project, framework) pair
// into a mapping from package id to MergedPackage.
//
// The outdated listing is authoritative for requested/resolved/latest
// versions. Packages only present in the baseline listing are added with
// IsOutdated=false and no LatestVersion ("not checked"). The deprecated and
// vulnerable listings only contribute their respective flags; a pair missing
// from either is treated as "no matches", never as an error. Any of the four
// reports may be nil.
func Merge(baseline, outdated, deprecated, vulnerable *dotnet.Report, project, framework string) map[string]*MergedPackage {
	merged := make(map[string]*MergedPackage)

	addFrom := func(fw *dotnet.Framework, fromOutdated bool) {
		if fw == nil {
			return
		}
		add := func(refs []dotnet.PackageReference, topLevel bool) {
			for _, ref := range refs {
				if ref.ID == "" {
					continue
				}
				if _, ok := merged[ref.ID]; ok {
					continue
				}
				pkg := &MergedPackage{
					ID:               ref.ID,
					RequestedVersion: ref.RequestedVersion,
					ResolvedVersion:  ref.ResolvedVersion,
					TopLevel:         topLevel,
				}
				if fromOutdated {
					pkg.LatestVersion = ref.LatestVersion
					pkg.IsOutdated = ref.LatestVersion != "" && ref.LatestVersion != ref.ResolvedVersion
				}
				merged[ref.ID] = pkg
			}
		}
		add(fw.TopLevelPackages, true)
		add(fw.TransitivePackages, false)
	}

	addFrom(outdated.FindFramework(project, framework), true)
	addFrom(baseline.FindFramework(project, framework), false)

	if fw := deprecated.FindFramework(project, framework); fw != nil {
		for _, ref := range indexPackages(fw) {
			pkg, ok := merged[ref.ID]
			if !ok {
				continue
			}
			pkg.IsDeprecated = true
			pkg.DeprecationReasons = append([]string(nil), ref.DeprecationReasons...)
			pkg.Alternative = ref.AlternativePackage
		}
	}

	if fw := vulnerable.FindFramework(project, framework); fw != nil {
		for _, ref := range indexPackages(fw) {
			pkg, ok := merged[ref.ID]
			if !ok {
				continue
			}
			// Presence in the vulnerable listing always yields a list,
			// even an empty one, so callers can tell "checked" apart
			// from "no data".
			pkg.Vulnerabilities = append([]dotnet.Vulnerability{}, ref.Vulnerabilities...)
		}
	}

	return merged
}

// indexPackages flattens a framework's top-level and transitive entries into
// one id-keyed view.
func indexPackages(fw *dotnet.Framework) map[string]dotnet.PackageReference {
	idx := make(map[string]dotnet.PackageReference, len(fw.TopLevelPackages)+len(fw.TransitivePackages))
	for _, ref := range fw.TopLevelPackages {
		if ref.ID != "" {
			idx[ref.ID] = ref
		}
	}
	for _, ref := range fw.TransitivePackages {
		if ref.ID != "" {
			if _, ok := idx[ref.ID]; !ok {
				idx[ref.ID] = ref
			}
		}
	}
	return idx
}

// MergeAll enumerates every well-formed (project, framework) pair across the
// outdated and baseline listings and merges each one. Malformed entries
// (missing project path or framework moniker) are skipped and counted, never
// fatal.
func MergeAll(baseline, outdated, deprecated, vulnerable *dotnet.Report) (Result, SkipCounter) {
	result := make(Result)
	var skipped SkipCounter

	collect := func(r *dotnet.Report) {
		if r == nil {
			return
		}
		for _, project := range r.Projects {
			if project.Path == "" {
				skipped.Projects++
				logger.Warnf("merge: skipping project entry with empty path")
				continue
			}
			for _, fw := range project.Frameworks {
				if fw.Framework == "" {
					skipped.Frameworks++
					logger.Warnf("merge: skipping framework entry with empty moniker in %s", project.Path)
					continue
				}
				pf := ProjectFramework{Project: project.Path, Framework: fw.Framework}
				if _, ok := result[pf]; ok {
					continue
				}
				result[pf] = Merge(baseline, outdated, deprecated, vulnerable, pf.Project, pf.Framework)
			}
		}
	}

	// The outdated listing drives enumeration; the baseline fills in pairs
	// the outdated query did not cover.
	collect(outdated)
	collect(baseline)

	return result, skipped
}
