package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conn-castle/patchmirror/internal/hashes"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/storage"
	"github.com/conn-castle/patchmirror/internal/testutil"
	"github.com/conn-castle/patchmirror/internal/version"
)

type fixture struct {
	fs      afero.Fs
	st      *storage.Storage
	tables  *hashes.Tables
	exports string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	fs := afero.NewOsFs()
	tables := &hashes.Tables{Client: hashes.NewTable(hashes.KindClient), Game: hashes.NewTable(hashes.KindGame)}
	return &fixture{
		fs:      fs,
		st:      storage.New(fs, filepath.Join(root, "live")),
		tables:  tables,
		exports: filepath.Join(root, "export"),
	}
}

// release writes archives for a patch of version v backed by release.
func (f *fixture) release(t *testing.T, v, release string, client, game map[string][]byte) *patch.Patch {
	t.Helper()
	p := &patch.Patch{
		Version: version.MustParse(v),
		Release: release,
		Elements: []patch.Element{
			testutil.Element(patch.ElementClient, "client", 1),
			testutil.Element(patch.ElementGame, "champion", 1),
		},
	}
	write := func(element, name string, files map[string][]byte) {
		path := filepath.Join(f.st.ElementDir(release, element), name)
		require.NoError(t, f.fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(f.fs, path, testutil.WAD(t, files), 0o644))
	}
	write(patch.ElementClient, "Plugins/default-assets.wad", client)
	write(patch.ElementGame, "DATA/FINAL/Champions/Annie.wad.client", game)
	return p
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExportNamesKnownEntriesAndRecordsUnknown(t *testing.T) {
	f := newFixture(t)
	f.tables.Client.Add("plugins/rcp-fe-lol-home/index.js")
	f.tables.Game.Add("data/characters/annie/annie.bin")
	p := f.release(t, "14.1", "rel-1",
		map[string][]byte{"plugins/rcp-fe-lol-home/index.js": []byte("js"), "plugins/secret.json": []byte("{}")},
		map[string][]byte{"data/characters/annie/annie.bin": []byte("bin")})

	dir := filepath.Join(f.exports, "14.1")
	res, err := New(f.fs, f.tables, nil).Export(Target{Dir: dir, Patch: p, Storage: f.st}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Written)

	assert.Equal(t, "js", readString(t, filepath.Join(dir, "plugins/rcp-fe-lol-home/index.js")))
	assert.Equal(t, "bin", readString(t, filepath.Join(dir, "game/data/characters/annie/annie.bin")))
	secret := hashes.Hash("plugins/secret.json")
	assert.Equal(t, "{}", readString(t, filepath.Join(dir, "unknown", hashes.Format(secret)+".bin")))

	unknown, err := hashes.LoadSet(f.fs, UnknownPath(dir))
	require.NoError(t, err)
	assert.Equal(t, hashes.NewSet(secret), unknown)
}

func TestExportDifferentialLinksUnchangedEntries(t *testing.T) {
	f := newFixture(t)
	f.tables.Game.Add("a.bin")
	f.tables.Game.Add("b.bin")
	prev := f.release(t, "14.1", "rel-1", map[string][]byte{}, map[string][]byte{"a.bin": []byte("same"), "b.bin": []byte("old")})
	next := f.release(t, "14.2", "rel-2", map[string][]byte{}, map[string][]byte{"a.bin": []byte("same"), "b.bin": []byte("new")})

	x := New(f.fs, f.tables, nil)
	prevDir := filepath.Join(f.exports, "14.1")
	_, err := x.Export(Target{Dir: prevDir, Patch: prev, Storage: f.st}, true)
	require.NoError(t, err)

	nextDir := filepath.Join(f.exports, "14.2")
	res, err := x.Export(Target{Dir: nextDir, Patch: next, Storage: f.st, Previous: prev, PreviousDir: prevDir, Symlinks: true}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Linked)
	assert.Equal(t, 1, res.Written)

	target, err := os.Readlink(filepath.Join(nextDir, "game/a.bin"))
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(filepath.Join(prevDir, "game/a.bin"))
	require.NoError(t, err)
	assert.Equal(t, want, target)
	assert.Equal(t, "new", readString(t, filepath.Join(nextDir, "game/b.bin")))
}

func TestExportDifferentialCopiesWithoutSymlinks(t *testing.T) {
	f := newFixture(t)
	f.tables.Game.Add("a.bin")
	prev := f.release(t, "14.1", "rel-1", map[string][]byte{}, map[string][]byte{"a.bin": []byte("same")})
	next := f.release(t, "14.2", "rel-2", map[string][]byte{}, map[string][]byte{"a.bin": []byte("same")})

	x := New(f.fs, f.tables, nil)
	prevDir := filepath.Join(f.exports, "14.1")
	_, err := x.Export(Target{Dir: prevDir, Patch: prev, Storage: f.st}, true)
	require.NoError(t, err)

	nextDir := filepath.Join(f.exports, "14.2")
	res, err := x.Export(Target{Dir: nextDir, Patch: next, Storage: f.st, Previous: prev, PreviousDir: prevDir}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copied)

	info, err := os.Lstat(filepath.Join(nextDir, "game/a.bin"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.Equal(t, "same", readString(t, filepath.Join(nextDir, "game/a.bin")))
}

func TestExportWithoutOverwriteOnlyFillsMissingFiles(t *testing.T) {
	f := newFixture(t)
	f.tables.Client.Add("plugins/a.js")
	p := f.release(t, "14.1", "rel-1",
		map[string][]byte{"plugins/a.js": []byte("a"), "plugins/b.js": []byte("b")}, map[string][]byte{})

	x := New(f.fs, f.tables, nil)
	dir := filepath.Join(f.exports, "14.1")
	_, err := x.Export(Target{Dir: dir, Patch: p, Storage: f.st}, true)
	require.NoError(t, err)

	// Simulate a file whose bytes must survive the refresh untouched.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugins/a.js"), []byte("edited"), 0o644))
	staleUnknown := filepath.Join(dir, "unknown", hashes.Format(hashes.Hash("plugins/b.js"))+".bin")

	f.tables.Client.Add("plugins/b.js")
	res, err := x.Export(Target{Dir: dir, Patch: p, Storage: f.st}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)

	assert.Equal(t, "edited", readString(t, filepath.Join(dir, "plugins/a.js")))
	assert.Equal(t, "b", readString(t, filepath.Join(dir, "plugins/b.js")))
	assert.Equal(t, "b", readString(t, staleUnknown), "previous outputs are never erased")

	unknown, err := hashes.LoadSet(f.fs, UnknownPath(dir))
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestExportIntoPreviousDirKeepsUnchangedFiles(t *testing.T) {
	f := newFixture(t)
	f.tables.Game.Add("a.bin")
	f.tables.Game.Add("b.bin")
	prev := f.release(t, "pbe", "rel-1", map[string][]byte{}, map[string][]byte{"a.bin": []byte("same"), "b.bin": []byte("old")})
	next := f.release(t, "pbe", "rel-2", map[string][]byte{}, map[string][]byte{"a.bin": []byte("same"), "b.bin": []byte("new")})

	x := New(f.fs, f.tables, nil)
	dir := filepath.Join(f.exports, "pbe")
	_, err := x.Export(Target{Dir: dir, Patch: prev, Storage: f.st}, true)
	require.NoError(t, err)

	res, err := x.Export(Target{Dir: dir, Patch: next, Storage: f.st, Previous: prev, PreviousDir: dir}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Kept)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, "new", readString(t, filepath.Join(dir, "game/b.bin")))
}

func TestUpdateLatest(t *testing.T) {
	fs := afero.NewOsFs()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "14.1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "14.2"), 0o755))

	require.NoError(t, UpdateLatest(fs, root, version.MustParse("14.1")))
	target, err := os.Readlink(filepath.Join(root, LatestLink))
	require.NoError(t, err)
	assert.Equal(t, "14.1", target)

	require.NoError(t, UpdateLatest(fs, root, version.MustParse("14.2")))
	target, err = os.Readlink(filepath.Join(root, LatestLink))
	require.NoError(t, err)
	assert.Equal(t, "14.2", target)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"14.1", "14.2", LatestLink}, names)
}

func TestUpdateLatestNeedsSymlinkSupport(t *testing.T) {
	err := UpdateLatest(afero.NewMemMapFs(), "/export", version.MustParse("14.1"))
	require.Error(t, err)
}
