// Package router maps patch versions and branch names to the storage
// location that owns them.
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/version"
)

// PBEKey is the storage_paths key of the PBE storage.
const PBEKey = "pbe"

// ErrStorageUnconfigured is returned when an explicitly requested branch has
// no storage configured.
var ErrStorageUnconfigured = errors.New(messages.RouterStorageUnconfigured)

// ErrInvalidRoutes wraps every storage_paths validation failure.
var ErrInvalidRoutes = errors.New(messages.RouterInvalidRoutes)

// Route is one storage_paths entry covering a numeric version interval.
type Route struct {
	// Key is the storage_paths key the route was parsed from.
	Key string
	// Lower is the inclusive lower bound; it is a full baseline version.
	Lower version.Version
	// Upper is the exclusive upper bound. The zero value means unbounded.
	Upper version.Version
	// Single marks a key naming exactly one version.
	Single   bool
	Location string
}

// Unbounded reports whether the route has no upper end.
func (r Route) Unbounded() bool {
	return !r.Single && r.Upper.IsZero()
}

// Contains reports whether v falls inside the route.
func (r Route) Contains(v version.Version) bool {
	if v.IsPBE() || v.IsZero() {
		return false
	}
	if r.Single {
		return v.Equal(r.Lower)
	}
	if v.Less(r.Lower) {
		return false
	}
	return r.Unbounded() || v.Less(r.Upper)
}

func (r Route) overlaps(o Route) bool {
	switch {
	case r.Single:
		return o.Contains(r.Lower)
	case o.Single:
		return r.Contains(o.Lower)
	}
	// [a, b) and [c, d) overlap iff a < d and c < b.
	return (o.Unbounded() || r.Lower.Less(o.Upper)) && (r.Unbounded() || o.Lower.Less(r.Upper))
}

// Router resolves versions to storage locations. It is immutable once built.
type Router struct {
	routes []Route
	pbe    string
}

// Parse builds a Router from storage_paths entries and validates them:
// exactly one open range, no overlapping ranges, well-formed keys.
func Parse(paths map[string]string) (*Router, error) {
	r := &Router{}
	keys := make([]string, 0, len(paths))
	for key := range paths {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		location := strings.TrimSpace(paths[key])
		if location == "" {
			return nil, fmt.Errorf("%w: "+messages.RouterEmptyLocationFmt, ErrInvalidRoutes, key)
		}
		if strings.EqualFold(strings.TrimSpace(key), PBEKey) {
			if r.pbe != "" {
				return nil, fmt.Errorf("%w: "+messages.RouterDuplicatePBEFmt, ErrInvalidRoutes, key)
			}
			r.pbe = location
			continue
		}
		route, err := parseRouteKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRoutes, err)
		}
		route.Location = location
		r.routes = append(r.routes, route)
	}

	open := 0
	for i, route := range r.routes {
		if route.Unbounded() {
			open++
		}
		for _, other := range r.routes[:i] {
			if route.overlaps(other) {
				return nil, fmt.Errorf("%w: "+messages.RouterOverlapFmt, ErrInvalidRoutes, other.Key, route.Key)
			}
		}
	}
	if open != 1 {
		return nil, fmt.Errorf("%w: "+messages.RouterOpenRangeCountFmt, ErrInvalidRoutes, open)
	}
	sort.Slice(r.routes, func(i, j int) bool { return r.routes[i].Lower.Less(r.routes[j].Lower) })
	return r, nil
}

// parseRouteKey reads "X.Y", "X.Y-A.B" or "X.Y-".
func parseRouteKey(key string) (Route, error) {
	trimmed := strings.TrimSpace(key)
	lowerRaw, upperRaw, isRange := strings.Cut(trimmed, "-")
	lower, err := version.Parse(lowerRaw)
	if err != nil || lower.IsPBE() {
		return Route{}, fmt.Errorf(messages.RouterInvalidKeyFmt, key)
	}
	route := Route{Key: key, Lower: lower}
	if !isRange {
		route.Single = true
		return route, nil
	}
	if strings.TrimSpace(upperRaw) == "" {
		return route, nil
	}
	upper, err := version.Parse(upperRaw)
	if err != nil || upper.IsPBE() {
		return Route{}, fmt.Errorf(messages.RouterInvalidKeyFmt, key)
	}
	if !lower.Less(upper) {
		return Route{}, fmt.Errorf(messages.RouterEmptyRangeFmt, key)
	}
	route.Upper = upper
	return route, nil
}

// Resolve returns the storage location owning v. The boolean is false when
// v is intentionally not mirrored, or when v is PBE and PBE is unconfigured.
func (r *Router) Resolve(v version.Version) (string, bool) {
	if v.IsPBE() {
		return r.pbe, r.pbe != ""
	}
	for _, route := range r.routes {
		if route.Contains(v) {
			return route.Location, true
		}
	}
	return "", false
}

// ResolveForBranch returns the storage location of a branch. Unlike Resolve
// it fails when the storage is missing, since branch operations are explicit.
func (r *Router) ResolveForBranch(branch version.Branch) (string, error) {
	switch branch {
	case version.BranchPBE:
		if r.pbe == "" {
			return "", fmt.Errorf("%w: %s", ErrStorageUnconfigured, branch)
		}
		return r.pbe, nil
	case version.BranchLive:
		for _, route := range r.routes {
			if route.Unbounded() {
				return route.Location, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrStorageUnconfigured, branch)
}

// IsBaseline reports whether v is the lower bound of a configured route.
func (r *Router) IsBaseline(v version.Version) bool {
	for _, route := range r.routes {
		if route.Lower.Equal(v) {
			return true
		}
	}
	return false
}

// PBEEnabled reports whether a PBE storage is configured.
func (r *Router) PBEEnabled() bool {
	return r.pbe != ""
}

// Routes returns the numeric routes ordered by lower bound.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}
