// Package export materializes the archives of a stored patch as a tree of
// named files, optionally reusing an earlier export for unchanged entries.
package export

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/otiai10/copy"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/conn-castle/patchmirror/internal/fsutil"
	"github.com/conn-castle/patchmirror/internal/hashes"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/storage"
	"github.com/conn-castle/patchmirror/internal/version"
	"github.com/conn-castle/patchmirror/internal/wad"
)

const (
	// UnknownHashesFile lists, inside an export directory, the hashes that
	// could not be named.
	UnknownHashesFile = "unknown-hashes.txt"
	// LatestLink is the shortcut to the most recent numbered export.
	LatestLink = "latest"

	gameSubdir    = "game"
	unknownSubdir = "unknown"
)

// Target describes one export: where it goes, what it is made of and what it
// may be derived from.
type Target struct {
	Dir     string
	Patch   *patch.Patch
	Storage *storage.Storage
	// Previous is the patch unchanged entries are taken from. When nil,
	// every entry is decoded.
	Previous *patch.Patch
	// PreviousDir holds the export of Previous. It may equal Dir.
	PreviousDir string
	// Symlinks links unchanged files to PreviousDir instead of copying them.
	Symlinks bool
}

// Result summarizes an export.
type Result struct {
	Written int
	Linked  int
	Copied  int
	Kept    int
	Unknown hashes.Set
}

// Exporter writes exports on fs, naming entries with the known hash tables.
// Symlinks and copies of unchanged files need fs to be the OS filesystem.
type Exporter struct {
	fs     afero.Fs
	tables *hashes.Tables
	logger *zap.Logger
}

// New returns an exporter. A nil logger disables logging.
func New(fs afero.Fs, tables *hashes.Tables, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{fs: fs, tables: tables, logger: logger}
}

// Export writes target. With overwrite unset, existing outputs are never
// touched and only missing ones are written. The unknown-hash set is
// persisted last.
func (x *Exporter) Export(target Target, overwrite bool) (*Result, error) {
	res := &Result{Unknown: make(hashes.Set)}
	for _, el := range []struct {
		element string
		kind    hashes.Kind
		subdir  string
	}{
		{patch.ElementClient, hashes.KindClient, ""},
		{patch.ElementGame, hashes.KindGame, gameSubdir},
	} {
		if _, ok := target.Patch.Element(el.element); !ok {
			continue
		}
		if err := x.exportElement(target, el.element, el.kind, el.subdir, overwrite, res); err != nil {
			return nil, err
		}
	}

	if err := hashes.SaveSet(x.fs, UnknownPath(target.Dir), res.Unknown); err != nil {
		return nil, err
	}
	x.logger.Info("export finished",
		zap.Stringer("version", target.Patch.Version),
		zap.String("dir", target.Dir),
		zap.Int("written", res.Written),
		zap.Int("linked", res.Linked),
		zap.Int("copied", res.Copied),
		zap.Int("kept", res.Kept),
		zap.Int("unknown", len(res.Unknown)))
	return res, nil
}

// UnknownPath returns the unknown-hash file of the export in dir.
func UnknownPath(dir string) string {
	return filepath.Join(dir, UnknownHashesFile)
}

func (x *Exporter) exportElement(target Target, element string, kind hashes.Kind, subdir string, overwrite bool, res *Result) error {
	st := target.Storage
	root := st.ElementDir(target.Patch.Release, element)
	archives, err := st.Archives(target.Patch.Release, element)
	if err != nil {
		return fmt.Errorf(messages.ExportElementFmt, element, target.Patch.Version, err)
	}
	var prevRoot string
	if target.Previous != nil {
		prevRoot = st.ElementDir(target.Previous.Release, element)
	}
	table := x.tables.For(kind)
	for _, archivePath := range archives {
		rel, err := filepath.Rel(root, archivePath)
		if err != nil {
			return err
		}
		var prev map[uint64]uint64
		if prevRoot != "" {
			prev = x.previousChecksums(st.Fs(), filepath.Join(prevRoot, rel))
		}
		if err := x.exportArchive(target, st.Fs(), archivePath, table, subdir, prev, overwrite, res); err != nil {
			return err
		}
	}
	return nil
}

// previousChecksums maps the entries of the predecessor archive to their
// checksum. A missing or unreadable predecessor archive yields nil, and
// every entry is then decoded.
func (x *Exporter) previousChecksums(fs afero.Fs, archivePath string) map[uint64]uint64 {
	a, err := wad.Open(fs, archivePath)
	if err != nil {
		x.logger.Debug("no predecessor archive", zap.String("path", archivePath), zap.Error(err))
		return nil
	}
	defer func() { _ = a.Close() }()
	out := make(map[uint64]uint64, len(a.Entries))
	for _, e := range a.Entries {
		out[e.Hash] = e.Checksum
	}
	return out
}

func (x *Exporter) exportArchive(target Target, fs afero.Fs, archivePath string, table *hashes.Table, subdir string, prev map[uint64]uint64, overwrite bool, res *Result) error {
	a, err := wad.Open(fs, archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	for _, e := range a.Entries {
		if e.Type == wad.TypeRedirection {
			continue
		}
		rel, known := outputName(table, subdir, e.Hash)
		if !known {
			res.Unknown[e.Hash] = struct{}{}
		}
		out := filepath.Join(target.Dir, rel)

		exists, err := lexists(x.fs, out)
		if err != nil {
			return err
		}
		if exists && !overwrite {
			res.Kept++
			continue
		}

		if sum, ok := prev[e.Hash]; ok && sum == e.Checksum && target.PreviousDir != "" {
			done, err := x.reuse(target, rel, out, exists, res)
			if err != nil {
				return err
			}
			if done {
				continue
			}
		}

		data, err := a.Read(e)
		if err != nil {
			if errors.Is(err, wad.ErrRedirection) {
				continue
			}
			return err
		}
		if err := fsutil.WriteFileAtomic(x.fs, out, data, 0o644); err != nil {
			return fmt.Errorf(messages.ExportWriteFmt, out, err)
		}
		res.Written++
	}
	return nil
}

// reuse satisfies an unchanged entry from the predecessor export. It
// reports false when the predecessor has no such file and the entry must be
// decoded.
func (x *Exporter) reuse(target Target, rel, out string, exists bool, res *Result) (bool, error) {
	if filepath.Clean(target.PreviousDir) == filepath.Clean(target.Dir) {
		if exists {
			res.Kept++
			return true, nil
		}
		return false, nil
	}

	src := filepath.Join(target.PreviousDir, rel)
	ok, err := lexists(x.fs, src)
	if err != nil || !ok {
		return false, err
	}
	if exists {
		if err := x.fs.Remove(out); err != nil {
			return false, fmt.Errorf(messages.ExportWriteFmt, out, err)
		}
	}
	if err := x.fs.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false, fmt.Errorf(messages.ExportWriteFmt, out, err)
	}

	if linker, ok := x.fs.(afero.Linker); ok && target.Symlinks {
		// Link to the final file rather than to another link.
		if resolved, err := filepath.EvalSymlinks(src); err == nil {
			src = resolved
		}
		if err := linker.SymlinkIfPossible(src, out); err != nil {
			return false, fmt.Errorf(messages.ExportLinkFmt, out, src, err)
		}
		res.Linked++
		return true, nil
	}

	if err := copy.Copy(src, out, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Deep },
	}); err != nil {
		return false, fmt.Errorf(messages.ExportCopyFmt, src, out, err)
	}
	res.Copied++
	return true, nil
}

// outputName returns the path of an entry relative to the export directory
// and whether the entry could be named.
func outputName(table *hashes.Table, subdir string, h uint64) (string, bool) {
	if name, ok := table.Get(h); ok {
		return filepath.Join(subdir, filepath.FromSlash(path.Clean("/" + name))[1:]), true
	}
	return filepath.Join(subdir, unknownSubdir, hashes.Format(h)+".bin"), false
}

func lexists(fs afero.Fs, p string) (bool, error) {
	var err error
	if lstater, ok := fs.(afero.Lstater); ok {
		_, _, err = lstater.LstatIfPossible(p)
	} else {
		_, err = fs.Stat(p)
	}
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// UpdateLatest repoints the latest shortcut of exportRoot to the export of
// v. The new link is created under a temporary name and renamed over the
// old one, so latest is never missing.
func UpdateLatest(fs afero.Fs, exportRoot string, v version.Version) error {
	linker, ok := fs.(afero.Linker)
	if !ok {
		return fmt.Errorf(messages.ExportLatestFmt, v, errors.New(messages.ExportNoSymlinks))
	}
	latest := filepath.Join(exportRoot, LatestLink)
	tmp := filepath.Join(exportRoot, fmt.Sprintf(".%s.tmp-%d", LatestLink, os.Getpid()))
	if err := fs.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf(messages.ExportLatestFmt, v, err)
	}
	if err := linker.SymlinkIfPossible(v.String(), tmp); err != nil {
		return fmt.Errorf(messages.ExportLatestFmt, v, err)
	}
	if err := fs.Rename(tmp, latest); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf(messages.ExportLatestFmt, v, err)
	}
	return nil
}
