package audit

// FilterOptions are the user-selected inclusion predicates. When several are
// set they combine with OR semantics: a package is retained if it matches any
// active predicate.
type FilterOptions struct {
	OnlyOutdated   bool
	OnlyDeprecated bool
	OnlyVulnerable bool
}

// Any reports whether at least one predicate is active.
func (o FilterOptions) Any() bool {
	return o.OnlyOutdated || o.OnlyDeprecated || o.OnlyVulnerable
}

// matches reports whether a package satisfies at least one active predicate.
func (o FilterOptions) matches(pkg *MergedPackage) bool {
	if o.OnlyOutdated && pkg.IsOutdated {
		return true
	}
	if o.OnlyDeprecated && pkg.IsDeprecated {
		return true
	}
	if o.OnlyVulnerable && len(pkg.Vulnerabilities) > 0 {
		return true
	}
	return false
}

// Filter narrows a merged mapping to the packages matching the options. With
// no active predicate the input is returned unchanged. Zero matches is a
// valid, non-error result.
func Filter(pkgs map[string]*MergedPackage, opts FilterOptions) map[string]*MergedPackage {
	if !opts.Any() {
		return pkgs
	}
	filtered := make(map[string]*MergedPackage)
	for id, pkg := range pkgs {
		if opts.matches(pkg) {
			filtered[id] = pkg
		}
	}
	return filtered
}

// FilterAll applies Filter to every (project, framework) mapping of a result.
func FilterAll(result Result, opts FilterOptions) Result {
	if !opts.Any() {
		return result
	}
	filtered := make(Result, len(result))
	for pf, pkgs := range result {
		filtered[pf] = Filter(pkgs, opts)
	}
	return filtered
}
