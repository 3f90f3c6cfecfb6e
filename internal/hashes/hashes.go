// Package hashes stores the known path of every resolved content hash, for
// the client ("lcu") and game naming schemes.
package hashes

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"

	"github.com/conn-castle/patchmirror/internal/fsutil"
	"github.com/conn-castle/patchmirror/internal/messages"
)

// Kind names a hash naming scheme.
type Kind string

const (
	// KindClient is the naming scheme of client (launcher) archives.
	KindClient Kind = "lcu"
	// KindGame is the naming scheme of game archives.
	KindGame Kind = "game"
)

// Hash computes the content identifier of path.
func Hash(path string) uint64 {
	return xxhash.Sum64String(strings.ToLower(path))
}

// Format renders h as the fixed-width hexadecimal form used on disk.
func Format(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// ParseHash reads a hexadecimal hash.
func ParseHash(raw string) (uint64, error) {
	h, err := strconv.ParseUint(strings.TrimSpace(raw), 16, 64)
	if err != nil {
		return 0, fmt.Errorf(messages.HashesInvalidHashFmt, raw)
	}
	return h, nil
}

// Table maps hashes to known paths for one naming scheme.
type Table struct {
	Kind  Kind
	paths map[uint64]string
}

// NewTable returns an empty table.
func NewTable(kind Kind) *Table {
	return &Table{Kind: kind, paths: make(map[uint64]string)}
}

// Get returns the path of h.
func (t *Table) Get(h uint64) (string, bool) {
	p, ok := t.paths[h]
	return p, ok
}

// Has reports whether h is resolved.
func (t *Table) Has(h uint64) bool {
	_, ok := t.paths[h]
	return ok
}

// Add records path and returns its hash. Paths are stored lower-cased.
func (t *Table) Add(path string) uint64 {
	lower := strings.ToLower(path)
	h := Hash(lower)
	t.paths[h] = lower
	return h
}

// Len returns the number of known hashes.
func (t *Table) Len() int {
	return len(t.paths)
}

// Known returns a snapshot of the resolved hashes.
func (t *Table) Known() Set {
	out := make(Set, len(t.paths))
	for h := range t.paths {
		out[h] = struct{}{}
	}
	return out
}

// Paths returns every known path, sorted.
func (t *Table) Paths() []string {
	out := make([]string, 0, len(t.paths))
	for _, p := range t.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FileName returns the table file name inside the hashes directory.
func FileName(kind Kind) string {
	return fmt.Sprintf("hashes.%s.txt", kind)
}

// Load reads the table of kind from dir. A missing file is an empty table.
func Load(fs afero.Fs, dir string, kind Kind) (*Table, error) {
	t := NewTable(kind)
	path := filepath.Join(dir, FileName(kind))
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf(messages.HashesLoadFmt, path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rawHash, name, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf(messages.HashesLineErrorFmt, path, lineNo)
		}
		h, err := ParseHash(rawHash)
		if err != nil {
			return nil, fmt.Errorf(messages.HashesLineErrorFmt, path, lineNo)
		}
		t.paths[h] = strings.TrimSpace(name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf(messages.HashesLoadFmt, path, err)
	}
	return t, nil
}

// Save atomically writes the table into dir, sorted by path.
func (t *Table) Save(fs afero.Fs, dir string) error {
	type row struct {
		h    uint64
		path string
	}
	rows := make([]row, 0, len(t.paths))
	for h, p := range t.paths {
		rows = append(rows, row{h, p})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].path < rows[j].path })

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s\n", Format(r.h), r.path)
	}
	path := filepath.Join(dir, FileName(t.Kind))
	if err := fsutil.WriteFileAtomic(fs, path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf(messages.HashesSaveFmt, path, err)
	}
	return nil
}

// Tables bundles the client and game tables.
type Tables struct {
	Client *Table
	Game   *Table
}

// LoadTables reads both tables from dir.
func LoadTables(fs afero.Fs, dir string) (*Tables, error) {
	client, err := Load(fs, dir, KindClient)
	if err != nil {
		return nil, err
	}
	game, err := Load(fs, dir, KindGame)
	if err != nil {
		return nil, err
	}
	return &Tables{Client: client, Game: game}, nil
}

// For returns the table of kind.
func (t *Tables) For(kind Kind) *Table {
	if kind == KindClient {
		return t.Client
	}
	return t.Game
}

// Known returns the union of resolved hashes across both tables.
func (t *Tables) Known() Set {
	return t.Client.Known().Union(t.Game.Known())
}

// Save writes both tables into dir.
func (t *Tables) Save(fs afero.Fs, dir string) error {
	if err := t.Client.Save(fs, dir); err != nil {
		return err
	}
	return t.Game.Save(fs, dir)
}
