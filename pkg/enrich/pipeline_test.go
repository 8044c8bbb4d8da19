package enrich

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambabib/nuget-audit/pkg/audit"
	"github.com/sambabib/nuget-audit/pkg/registry"
)

// fakeSource is a scriptable MetadataSource that records its calls.
type fakeSource struct {
	mu       sync.Mutex
	calls    map[registry.PackageKey]int
	delay    time.Duration
	failAll  bool
	failKeys map[registry.PackageKey]bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:    make(map[registry.PackageKey]int),
		failKeys: make(map[registry.PackageKey]bool),
	}
}

func (s *fakeSource) FetchMetadata(ctx context.Context, key registry.PackageKey) (*registry.PackageMetadata, error) {
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxInFlight.Load()
		if current <= max || s.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}

	s.mu.Lock()
	s.calls[key]++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.failAll || s.failKeys[key] {
		return nil, errors.New("simulated fetch failure")
	}
	return &registry.PackageMetadata{
		PackageURL:       registry.PackageURL(key),
		ProjectURL:       "https://example.test/" + key.ID,
		DependencyGroups: []registry.DependencyGroup{},
	}, nil
}

func (s *fakeSource) callCount(key registry.PackageKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func mergedMapping(ids ...string) map[string]*audit.MergedPackage {
	pkgs := make(map[string]*audit.MergedPackage)
	for _, id := range ids {
		pkgs[id] = &audit.MergedPackage{ID: id, ResolvedVersion: "1.0.0"}
	}
	return pkgs
}

func TestDedupe_SharedAcrossProjects(t *testing.T) {
	// The same (id, version) referenced by five different (project,
	// framework) slices collapses to one key.
	result := make(audit.Result)
	for _, pf := range []audit.ProjectFramework{
		{Project: "a.csproj", Framework: "net8.0"},
		{Project: "a.csproj", Framework: "net6.0"},
		{Project: "b.csproj", Framework: "net8.0"},
		{Project: "c.csproj", Framework: "net8.0"},
		{Project: "d.csproj", Framework: "net8.0"},
	} {
		result[pf] = mergedMapping("Shared.Pkg")
	}

	keys := Dedupe(result)
	require.Len(t, keys, 1)
	assert.Equal(t, registry.PackageKey{ID: "Shared.Pkg", Version: "1.0.0"}, keys[0])
}

func TestDedupe_ExcludesEmptyComponents(t *testing.T) {
	result := audit.Result{
		{Project: "a.csproj", Framework: "net8.0"}: {
			"Good.Pkg":  {ID: "Good.Pkg", ResolvedVersion: "1.0.0"},
			"NoVersion": {ID: "NoVersion", ResolvedVersion: ""},
			"":          {ID: "", ResolvedVersion: "1.0.0"},
		},
	}

	keys := Dedupe(result)
	require.Len(t, keys, 1)
	assert.Equal(t, "Good.Pkg", keys[0].ID)
}

func TestDedupe_SortedOutput(t *testing.T) {
	result := audit.Result{
		{Project: "a.csproj", Framework: "net8.0"}: {
			"Zeta": {ID: "Zeta", ResolvedVersion: "1.0.0"},
			"Alfa": {ID: "Alfa", ResolvedVersion: "2.0.0"},
		},
	}
	keys := Dedupe(result)
	require.Len(t, keys, 2)
	assert.Equal(t, "Alfa", keys[0].ID)
	assert.Equal(t, "Zeta", keys[1].ID)
}

func TestPipeline_FetchesEachKeyOnce(t *testing.T) {
	source := newFakeSource()
	result := make(audit.Result)
	for _, project := range []string{"a", "b", "c", "d", "e"} {
		result[audit.ProjectFramework{Project: project + ".csproj", Framework: "net8.0"}] = mergedMapping("Shared.Pkg")
	}
	keys := Dedupe(result)

	pipeline := New(source, 5)
	metadata, err := pipeline.Fetch(context.Background(), keys)
	require.NoError(t, err)

	key := registry.PackageKey{ID: "Shared.Pkg", Version: "1.0.0"}
	assert.Equal(t, 1, source.callCount(key), "shared package version must be fetched exactly once")

	// Every consuming site resolves to the identical metadata value.
	meta := metadata[key]
	require.NotNil(t, meta)
	for _, pkgs := range result {
		for _, pkg := range pkgs {
			assert.Same(t, meta, metadata[registry.PackageKey{ID: pkg.ID, Version: pkg.ResolvedVersion}])
		}
	}
}

func TestPipeline_FallbackCompleteness(t *testing.T) {
	source := newFakeSource()
	source.failAll = true

	keys := []registry.PackageKey{{ID: "Foo", Version: "1.0.0"}}
	pipeline := New(source, 5)

	metadata, err := pipeline.Fetch(context.Background(), keys)
	require.NoError(t, err, "per-item failures must not fail the pipeline")
	require.Len(t, metadata, 1)

	meta := metadata[registry.PackageKey{ID: "Foo", Version: "1.0.0"}]
	require.NotNil(t, meta, "the pipeline never drops a requested key")
	assert.Equal(t, "https://www.nuget.org/packages/Foo/1.0.0", meta.PackageURL)
	assert.Empty(t, meta.DependencyGroups)
	assert.Equal(t, 1, pipeline.FallbackCount())
}

func TestPipeline_MixedFailures(t *testing.T) {
	source := newFakeSource()
	bad := registry.PackageKey{ID: "Bad", Version: "1.0.0"}
	good := registry.PackageKey{ID: "Good", Version: "2.0.0"}
	source.failKeys[bad] = true

	pipeline := New(source, 2)
	metadata, err := pipeline.Fetch(context.Background(), []registry.PackageKey{bad, good})
	require.NoError(t, err)
	require.Len(t, metadata, 2)

	assert.Empty(t, metadata[bad].ProjectURL, "failed key degrades to fallback")
	assert.Equal(t, "https://example.test/Good", metadata[good].ProjectURL)
	assert.Equal(t, 1, pipeline.FallbackCount())
}

func TestPipeline_ConcurrencyBound(t *testing.T) {
	source := newFakeSource()
	source.delay = 30 * time.Millisecond

	keys := make([]registry.PackageKey, 10)
	for i := range keys {
		keys[i] = registry.PackageKey{ID: string(rune('A' + i)), Version: "1.0.0"}
	}

	pipeline := New(source, 2)
	_, err := pipeline.Fetch(context.Background(), keys)
	require.NoError(t, err)

	assert.LessOrEqual(t, source.maxInFlight.Load(), int32(2),
		"no more than maxConcurrentRequests fetches may be in flight")
}

func TestPipeline_Cancellation(t *testing.T) {
	source := newFakeSource()
	source.delay = time.Second

	keys := make([]registry.PackageKey, 6)
	for i := range keys {
		keys[i] = registry.PackageKey{ID: string(rune('A' + i)), Version: "1.0.0"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	pipeline := New(source, 2)
	start := time.Now()
	metadata, err := pipeline.Fetch(ctx, keys)

	// Cancellation is a distinct terminal outcome: no partial result, no
	// fallback records.
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, metadata)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "in-flight fetches must be abandoned promptly")
}

func TestPipeline_EmptyKeySet(t *testing.T) {
	pipeline := New(newFakeSource(), 5)
	metadata, err := pipeline.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, metadata)
}
