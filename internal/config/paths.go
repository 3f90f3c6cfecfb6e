package config

import (
	"path/filepath"

	"github.com/conn-castle/patchmirror/internal/version"
)

// Paths holds the resolved locations of persisted state.
type Paths struct {
	Base       string
	ExportRoot string
	HashesDir  string
	LockFile   string
}

// Paths resolves the state locations of c.
func (c *Config) Paths() Paths {
	return Paths{
		Base:       c.BasePath,
		ExportRoot: c.Resolve(c.ExportPath),
		HashesDir:  filepath.Join(c.BasePath, "hashes"),
		LockFile:   filepath.Join(c.BasePath, "update.lock"),
	}
}

// Ledger returns the ledger file of branch.
func (p Paths) Ledger(branch version.Branch) string {
	return filepath.Join(p.Base, "last-versions."+string(branch)+".txt")
}

// ExportDir returns the export directory of v.
func (p Paths) ExportDir(v version.Version) string {
	return filepath.Join(p.ExportRoot, v.String())
}

// Resolve returns path relative to the base path unless it is absolute.
func (c *Config) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.BasePath, path)
}
