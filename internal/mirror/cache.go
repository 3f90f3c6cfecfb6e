package mirror

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/router"
	"github.com/conn-castle/patchmirror/internal/storage"
	"github.com/conn-castle/patchmirror/internal/version"
)

// StorageCache memoizes the storage serving each location for one run. It
// belongs to a Mirror; nothing about it is process-wide.
type StorageCache struct {
	fs      afero.Fs
	router  *router.Router
	resolve func(location string) string
	byPath  map[string]*storage.Storage
}

// NewStorageCache returns a cache resolving routed locations with resolve.
func NewStorageCache(fs afero.Fs, r *router.Router, resolve func(string) string) *StorageCache {
	return &StorageCache{fs: fs, router: r, resolve: resolve, byPath: make(map[string]*storage.Storage)}
}

// ForVersion returns the storage owning v, or false when v is not mirrored.
func (c *StorageCache) ForVersion(v version.Version) (*storage.Storage, bool) {
	location, ok := c.router.Resolve(v)
	if !ok {
		return nil, false
	}
	return c.get(location), true
}

// ForBranch returns the storage of branch and fails when it is unconfigured.
func (c *StorageCache) ForBranch(branch version.Branch) (*storage.Storage, error) {
	location, err := c.router.ResolveForBranch(branch)
	if err != nil {
		return nil, err
	}
	return c.get(location), nil
}

// MustForVersion is ForVersion for versions that are being explicitly worked
// on: a version without storage is a configuration error.
func (c *StorageCache) MustForVersion(v version.Version) (*storage.Storage, error) {
	st, ok := c.ForVersion(v)
	if !ok {
		return nil, fmt.Errorf("%w: "+messages.MirrorVersionUnroutedFmt, router.ErrStorageUnconfigured, v)
	}
	return st, nil
}

func (c *StorageCache) get(location string) *storage.Storage {
	path := c.resolve(location)
	if st, ok := c.byPath[path]; ok {
		return st
	}
	st := storage.New(c.fs, path)
	c.byPath[path] = st
	return st
}
