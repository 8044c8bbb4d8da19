package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sambabib/nuget-audit/pkg/audit"
	"github.com/sambabib/nuget-audit/pkg/registry"
)

// WriteTextReport renders one table per (project, framework) pair, followed
// by the enrichment metadata for every distinct package version.
func WriteTextReport(w io.Writer, result audit.Result, metadata map[registry.PackageKey]*registry.PackageMetadata) {
	for _, pf := range result.SortedPairs() {
		pkgs := result[pf]
		fmt.Fprintf(w, "%s (%s)\n", pf.Project, pf.Framework)
		if len(pkgs) == 0 {
			fmt.Fprintln(w, "  no matching packages")
			fmt.Fprintln(w)
			continue
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  PACKAGE\tREQUESTED\tRESOLVED\tLATEST\tFLAGS\tVULNS")
		fmt.Fprintln(tw, "  -------\t---------\t--------\t------\t-----\t-----")

		for _, id := range audit.SortedIDs(pkgs) {
			pkg := pkgs[id]
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%d\n",
				pkg.ID,
				dash(pkg.RequestedVersion),
				pkg.ResolvedVersion,
				dash(pkg.LatestVersion), // "-" means the outdated listing did not check it
				flags(pkg),
				len(pkg.Vulnerabilities),
			)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(metadata) == 0 {
		return
	}

	fmt.Fprintln(w, "Package metadata")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PACKAGE\tVERSION\tGALLERY\tPROJECT URL")
	for _, key := range sortedMetadataKeys(metadata) {
		meta := metadata[key]
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", key.ID, key.Version, meta.PackageURL, dash(meta.ProjectURL))
	}
	tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func flags(pkg *audit.MergedPackage) string {
	var parts []string
	if pkg.IsOutdated {
		parts = append(parts, "outdated")
	}
	if pkg.IsDeprecated {
		parts = append(parts, "deprecated")
	}
	if len(pkg.Vulnerabilities) > 0 {
		parts = append(parts, "vulnerable")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
