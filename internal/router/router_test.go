package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conn-castle/patchmirror/internal/version"
)

func mustParse(t *testing.T, paths map[string]string) *Router {
	t.Helper()
	r, err := Parse(paths)
	require.NoError(t, err)
	return r
}

// Routes (9.1, 9.2, A) and (9.2, none, B) with resolve(9.15) = A only hold
// when 9.15 sorts before 9.2; patch numbers compare per component, so the
// upper bound here is 9.20.
func TestResolveScenario(t *testing.T) {
	r := mustParse(t, map[string]string{
		"9.1-9.20": "A",
		"9.20-":    "B",
	})

	loc, ok := r.Resolve(version.MustParse("9.15"))
	require.True(t, ok)
	assert.Equal(t, "A", loc)

	loc, ok = r.Resolve(version.MustParse("9.20"))
	require.True(t, ok)
	assert.Equal(t, "B", loc)

	loc, ok = r.Resolve(version.MustParse("9.1"))
	require.True(t, ok)
	assert.Equal(t, "A", loc)

	_, ok = r.Resolve(version.MustParse("9.0"))
	assert.False(t, ok)
}

func TestResolveComponentOrdering(t *testing.T) {
	r := mustParse(t, map[string]string{
		"9.1-9.2": "A",
		"9.2-":    "B",
	})
	loc, ok := r.Resolve(version.MustParse("9.1"))
	require.True(t, ok)
	assert.Equal(t, "A", loc)

	loc, ok = r.Resolve(version.MustParse("9.2"))
	require.True(t, ok)
	assert.Equal(t, "B", loc)

	// 9.15 is the fifteenth patch of season 9, after 9.2.
	loc, ok = r.Resolve(version.MustParse("9.15"))
	require.True(t, ok)
	assert.Equal(t, "B", loc)
}

func TestResolveSingleAndGaps(t *testing.T) {
	r := mustParse(t, map[string]string{
		"8.24":    "old",
		"9.1-9.5": "A",
		"9.10-":   "live",
		"pbe":     "preview",
	})

	loc, ok := r.Resolve(version.MustParse("8.24"))
	require.True(t, ok)
	assert.Equal(t, "old", loc)

	_, ok = r.Resolve(version.MustParse("8.23"))
	assert.False(t, ok)

	_, ok = r.Resolve(version.MustParse("9.7"))
	assert.False(t, ok, "gap between routes is not an error")

	loc, ok = r.Resolve(version.PBE)
	require.True(t, ok)
	assert.Equal(t, "preview", loc)

	assert.True(t, r.IsBaseline(version.MustParse("8.24")))
	assert.True(t, r.IsBaseline(version.MustParse("9.10")))
	assert.False(t, r.IsBaseline(version.MustParse("9.11")))
}

func TestResolvePBEUnconfigured(t *testing.T) {
	r := mustParse(t, map[string]string{"10.1-": "live"})
	_, ok := r.Resolve(version.PBE)
	assert.False(t, ok)
	assert.False(t, r.PBEEnabled())

	_, err := r.ResolveForBranch(version.BranchPBE)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageUnconfigured))

	loc, err := r.ResolveForBranch(version.BranchLive)
	require.NoError(t, err)
	assert.Equal(t, "live", loc)
}

func TestParseRejectsInvalidRoutes(t *testing.T) {
	tests := []struct {
		name  string
		paths map[string]string
	}{
		{name: "no open range", paths: map[string]string{"9.1-9.2": "A"}},
		{name: "two open ranges", paths: map[string]string{"9.1-": "A", "9.5-": "B"}},
		{name: "overlapping closed", paths: map[string]string{"9.1-9.5": "A", "9.3-9.8": "B", "9.8-": "C"}},
		{name: "closed inside open", paths: map[string]string{"9.1-": "A", "9.3-9.8": "B"}},
		{name: "single inside range", paths: map[string]string{"9.1-": "A", "9.4": "B"}},
		{name: "duplicate range spelling", paths: map[string]string{"9.1-9.2": "A", "9.1.0-9.2": "B", "9.2-": "C"}},
		{name: "empty range", paths: map[string]string{"9.2-9.2": "A", "9.3-": "B"}},
		{name: "bad key", paths: map[string]string{"latest": "A", "9.3-": "B"}},
		{name: "pbe bound", paths: map[string]string{"9.1-pbe": "A", "9.3-": "B"}},
		{name: "empty location", paths: map[string]string{"9.3-": " "}},
		{name: "duplicate pbe", paths: map[string]string{"pbe": "A", "PBE": "B", "9.3-": "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.paths)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRoutes), "got %v", err)
		})
	}
}

func TestAdjacentRoutesDoNotOverlap(t *testing.T) {
	r := mustParse(t, map[string]string{
		"9.1-9.5":  "A",
		"9.5-9.10": "B",
		"9.10-":    "C",
	})
	routes := r.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "9.1-9.5", routes[0].Key)
	assert.True(t, routes[2].Unbounded())
}
