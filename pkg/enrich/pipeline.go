// Package enrich fetches registry metadata for every distinct package version
// of an audit run under a bounded concurrency limit.
package enrich

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sambabib/nuget-audit/pkg/audit"
	"github.com/sambabib/nuget-audit/pkg/logger"
	"github.com/sambabib/nuget-audit/pkg/registry"
)

// Dedupe collects the distinct (id, resolvedVersion) pairs across all merged
// mappings. The same package version referenced by several projects or
// frameworks is fetched once. Entries with an empty id or version are
// excluded. The result is sorted so fan-out order is deterministic.
func Dedupe(result audit.Result) []registry.PackageKey {
	seen := make(map[registry.PackageKey]struct{})
	for _, pkgs := range result {
		for _, pkg := range pkgs {
			if pkg.ID == "" || pkg.ResolvedVersion == "" {
				continue
			}
			seen[registry.PackageKey{ID: pkg.ID, Version: pkg.ResolvedVersion}] = struct{}{}
		}
	}

	keys := make([]registry.PackageKey, 0, len(seen))
	for key := range seen {
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

// Pipeline fetches metadata with at most Limit requests in flight.
type Pipeline struct {
	Source registry.MetadataSource
	Limit  int

	fallbacks atomic.Int64
}

// New builds a pipeline. Limit must already be validated (1-20).
func New(source registry.MetadataSource, limit int) *Pipeline {
	return &Pipeline{Source: source, Limit: limit}
}

// FallbackCount reports how many packages received fallback metadata during
// the last Fetch.
func (p *Pipeline) FallbackCount() int {
	return int(p.fallbacks.Load())
}

// Fetch enriches every key and returns a mapping that covers each input key
// exactly once. A failed fetch degrades to registry.FallbackMetadata for that
// key only. Cancellation is different: it aborts the whole run and returns
// the context error with no partial result, so callers can tell "degraded"
// from "abandoned".
func (p *Pipeline) Fetch(ctx context.Context, keys []registry.PackageKey) (map[registry.PackageKey]*registry.PackageMetadata, error) {
	p.fallbacks.Store(0)

	// Keys are deduplicated up front, so every worker owns exactly one
	// result slot and no two workers ever write the same key.
	slots := make([]*registry.PackageMetadata, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Limit)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			meta, err := p.Source.FetchMetadata(gctx, key)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Debugf("enrich: falling back for %s: %v", key, err)
				p.fallbacks.Add(1)
				meta = registry.FallbackMetadata(key)
			}
			slots[i] = meta
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[registry.PackageKey]*registry.PackageMetadata, len(keys))
	for i, key := range keys {
		results[key] = slots[i]
	}
	if n := p.FallbackCount(); n > 0 {
		logger.Infof("enrich: %d of %d package(s) using fallback metadata", n, len(keys))
	}
	return results, nil
}
