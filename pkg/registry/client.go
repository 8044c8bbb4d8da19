// Package registry is a client for the NuGet v3 registry API: service index
// discovery, registration index traversal, and per-version catalog metadata.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/sambabib/nuget-audit/pkg/logger"
	"github.com/sambabib/nuget-audit/pkg/retry"
)

// DefaultServiceIndexURL is the public NuGet v3 service index.
const DefaultServiceIndexURL = "https://api.nuget.org/v3/index.json"

// ErrNotFound is returned when the registry has no registration for a package
// or no catalog entry for the requested version. It is definitive: callers
// must not retry it.
var ErrNotFound = errors.New("package not found in registry")

// serviceIndex is the /v3/index.json response.
type serviceIndex struct {
	Resources []serviceResource `json:"resources"`
}

type serviceResource struct {
	ID   string `json:"@id"`
	Type string `json:"@type"` // e.g. "RegistrationsBaseUrl/3.6.0"
}

// registrationIndex is the per-package registration document.
type registrationIndex struct {
	Items []registrationPage `json:"items"`
}

// registrationPage holds leaves inline or, for heavily-versioned packages,
// points at a remote page document via @id.
type registrationPage struct {
	ID    string             `json:"@id,omitempty"`
	Items []registrationLeaf `json:"items,omitempty"`
	Lower string             `json:"lower,omitempty"`
	Upper string             `json:"upper,omitempty"`
	Count int                `json:"count,omitempty"`
}

type registrationLeaf struct {
	CatalogEntry catalogEntry `json:"catalogEntry"`
}

type catalogEntry struct {
	ID               string            `json:"id"`
	Version          string            `json:"version"`
	ProjectURL       string            `json:"projectUrl,omitempty"`
	DependencyGroups []dependencyGroup `json:"dependencyGroups,omitempty"`
	Listed           *bool             `json:"listed,omitempty"`
}

type dependencyGroup struct {
	TargetFramework string            `json:"targetFramework,omitempty"`
	Dependencies    []dependencyEntry `json:"dependencies,omitempty"`
}

type dependencyEntry struct {
	ID    string `json:"id"`
	Range string `json:"range,omitempty"`
}

// Client fetches package metadata from a NuGet v3 registry. All requests go
// through the retry policy; the registrations base URL is resolved once per
// run and shared across concurrent fetches.
type Client struct {
	ServiceIndexURL string
	HTTPClient      *http.Client
	Policy          retry.Policy

	mu                sync.Mutex
	registrationsBase string
}

// NewClient builds a Client with an explicitly constructed HTTP client; there
// is no ambient/global transport state.
func NewClient(serviceIndexURL string, timeout time.Duration, policy retry.Policy) *Client {
	if serviceIndexURL == "" {
		serviceIndexURL = DefaultServiceIndexURL
	}
	return &Client{
		ServiceIndexURL: serviceIndexURL,
		HTTPClient:      &http.Client{Timeout: timeout},
		Policy:          policy,
	}
}

// FetchMetadata returns the catalog metadata for one package version, or
// ErrNotFound when the registry does not know it.
func (c *Client) FetchMetadata(ctx context.Context, key PackageKey) (*PackageMetadata, error) {
	base, err := c.registrationsBaseURL(ctx)
	if err != nil {
		return nil, err
	}

	// Package ids are case-insensitive in the registry.
	indexURL := fmt.Sprintf("%s%s/index.json", base, strings.ToLower(key.ID))
	var regIndex registrationIndex
	if err := c.getJSON(ctx, indexURL, &regIndex); err != nil {
		return nil, fmt.Errorf("fetching registration for %s: %w", key.ID, err)
	}

	wanted, parseErr := semver.NewVersion(key.Version)

	for _, page := range regIndex.Items {
		if parseErr == nil && !pageMayContain(page, wanted) {
			continue
		}

		leaves := page.Items
		if len(leaves) == 0 && page.ID != "" {
			// Large packages keep their leaves in remote page documents.
			var remote registrationPage
			if err := c.getJSON(ctx, page.ID, &remote); err != nil {
				return nil, fmt.Errorf("fetching registration page for %s: %w", key.ID, err)
			}
			leaves = remote.Items
		}

		for _, leaf := range leaves {
			if !versionEqual(leaf.CatalogEntry.Version, key.Version, wanted, parseErr == nil) {
				continue
			}
			return &PackageMetadata{
				PackageURL:       PackageURL(key),
				ProjectURL:       leaf.CatalogEntry.ProjectURL,
				DependencyGroups: convertDependencyGroups(leaf.CatalogEntry.DependencyGroups),
			}, nil
		}
	}

	return nil, fmt.Errorf("%s %s: %w", key.ID, key.Version, ErrNotFound)
}

// pageMayContain checks a page's lower/upper version bounds so pages that
// cannot hold the wanted version are skipped without fetching them.
func pageMayContain(page registrationPage, wanted *semver.Version) bool {
	if page.Lower != "" {
		if lower, err := semver.NewVersion(page.Lower); err == nil && wanted.LessThan(lower) {
			return false
		}
	}
	if page.Upper != "" {
		if upper, err := semver.NewVersion(page.Upper); err == nil && wanted.GreaterThan(upper) {
			return false
		}
	}
	return true
}

// versionEqual compares a catalog version against the resolved version,
// semver-aware when possible ("1.0" == "1.0.0"), falling back to a
// case-insensitive string compare for versions semver cannot parse.
func versionEqual(catalogVersion, rawWanted string, wanted *semver.Version, parsed bool) bool {
	if parsed {
		if v, err := semver.NewVersion(catalogVersion); err == nil {
			return v.Equal(wanted)
		}
	}
	return strings.EqualFold(catalogVersion, rawWanted)
}

func convertDependencyGroups(groups []dependencyGroup) []DependencyGroup {
	out := make([]DependencyGroup, 0, len(groups))
	for _, g := range groups {
		cg := DependencyGroup{TargetFramework: g.TargetFramework}
		for _, d := range g.Dependencies {
			cg.Dependencies = append(cg.Dependencies, Dependency{ID: d.ID, Range: d.Range})
		}
		out = append(out, cg)
	}
	return out
}

// registrationsBaseURL resolves and memoizes the RegistrationsBaseUrl
// resource from the service index.
func (c *Client) registrationsBaseURL(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registrationsBase != "" {
		return c.registrationsBase, nil
	}

	var index serviceIndex
	if err := c.getJSON(ctx, c.ServiceIndexURL, &index); err != nil {
		return "", fmt.Errorf("fetching service index from %s: %w", c.ServiceIndexURL, err)
	}

	for _, resource := range index.Resources {
		if strings.HasPrefix(resource.Type, "RegistrationsBaseUrl") {
			c.registrationsBase = resource.ID
			if !strings.HasSuffix(c.registrationsBase, "/") {
				c.registrationsBase += "/"
			}
			logger.Debugf("registry: using RegistrationsBaseUrl %s", c.registrationsBase)
			return c.registrationsBase, nil
		}
	}
	return "", fmt.Errorf("no RegistrationsBaseUrl resource in service index at %s", c.ServiceIndexURL)
}

// getJSON performs a GET with the retry policy applied: transient network
// errors, 429 and 5xx responses are retried with backoff; 404 maps to
// ErrNotFound and other 4xx codes fail immediately.
func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			logger.Debugf("registry: retry %d for %s after %v", attempt, url, lastErr)
			if err := c.Policy.Sleep(ctx, attempt-1); err != nil {
				return err
			}
		}

		lastErr = c.getJSONOnce(ctx, url, v)
		if lastErr == nil {
			return nil
		}
		var transient *transientError
		if !errors.As(lastErr, &transient) {
			return lastErr
		}
		if attempt >= c.Policy.MaxAttempts {
			return fmt.Errorf("giving up after %d attempt(s): %w", attempt+1, transient.err)
		}
	}
}

// transientError marks failures the retry loop may try again.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (c *Client) getJSONOnce(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &transientError{err: fmt.Errorf("request to %s failed: %w", url, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decoding response from %s: %w", url, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", url, ErrNotFound)
	case retry.RetryableStatus(resp.StatusCode):
		return &transientError{err: fmt.Errorf("%s returned status %s", url, resp.Status)}
	default:
		return fmt.Errorf("%s returned status %s", url, resp.Status)
	}
}
