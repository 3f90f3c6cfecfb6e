// Package storage keeps downloaded upstream data for one storage location:
// manifests, content bundles, extracted element files, stored patch
// descriptors and element records.
package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/conn-castle/patchmirror/internal/fsutil"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/patcher"
	"github.com/conn-castle/patchmirror/internal/version"
)

type errString string

func (e errString) Error() string { return string(e) }

// ErrNotFound is returned when a stored object does not exist.
const ErrNotFound errString = messages.StorageNotFound

const (
	manifestsDir = "manifests"
	bundlesDir   = "bundles"
	filesDir     = "files"
	patchesDir   = "patches"
	releasesDir  = "releases"

	manifestExt = ".manifest"
	bundleExt   = ".bundle"
	patchExt    = ".json"
)

// Storage is one storage location rooted at a directory.
type Storage struct {
	root string
	fs   afero.Fs
}

// New returns the storage rooted at root on fs.
func New(fs afero.Fs, root string) *Storage {
	return &Storage{root: root, fs: fs}
}

// Root returns the storage directory.
func (s *Storage) Root() string { return s.root }

// Fs returns the filesystem backing the storage.
func (s *Storage) Fs() afero.Fs { return s.fs }

// ManifestPath returns where manifest id is stored.
func (s *Storage) ManifestPath(id string) string {
	return filepath.Join(s.root, manifestsDir, id+manifestExt)
}

// BundlePath returns where bundle id is stored.
func (s *Storage) BundlePath(id uint64) string {
	return filepath.Join(s.root, bundlesDir, BundleFileName(id))
}

// ReleaseDir returns the extracted-files directory of an upstream release.
func (s *Storage) ReleaseDir(release string) string {
	return filepath.Join(s.root, filesDir, release)
}

// ElementDir returns the directory holding the extracted files of element
// for release.
func (s *Storage) ElementDir(release, element string) string {
	return filepath.Join(s.ReleaseDir(release), element)
}

func (s *Storage) patchPath(v version.Version) string {
	return filepath.Join(s.root, patchesDir, v.String()+patchExt)
}

func (s *Storage) elementRecordDir(channel string, channelRelease int) string {
	return filepath.Join(s.root, releasesDir, channel, strconv.Itoa(channelRelease))
}

// SavePatch persists p so that it can be replayed later.
func (s *Storage) SavePatch(p *patch.Patch) error {
	data, err := patch.Encode(p)
	if err != nil {
		return err
	}
	path := s.patchPath(p.Version)
	if err := fsutil.WriteFileAtomic(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf(messages.StorageSavePatchFmt, p.Version, err)
	}
	p.Stored = true
	return nil
}

// LoadPatch returns the stored patch of v.
func (s *Storage) LoadPatch(v version.Version) (*patch.Patch, error) {
	path := s.patchPath(v)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf(messages.StorageLoadPatchFmt, v, err)
	}
	p, err := patch.Decode(data)
	if err != nil {
		return nil, fmt.Errorf(messages.StorageLoadPatchFmt, v, err)
	}
	p.Stored = true
	return p, nil
}

// Versions returns the versions of stored patches in ascending order.
func (s *Storage) Versions() ([]version.Version, error) {
	names, err := s.list(filepath.Join(s.root, patchesDir), false)
	if err != nil {
		return nil, err
	}
	var out []version.Version
	for _, name := range names {
		if !strings.HasSuffix(name, patchExt) {
			continue
		}
		v, err := version.Parse(strings.TrimSuffix(name, patchExt))
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	version.Sort(out)
	return out, nil
}

// PreviousPatch returns the stored numbered patch immediately preceding v.
func (s *Storage) PreviousPatch(v version.Version) (*patch.Patch, error) {
	versions, err := s.Versions()
	if err != nil {
		return nil, err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		candidate := versions[i]
		if candidate.IsPBE() || !candidate.Less(v) {
			continue
		}
		return s.LoadPatch(candidate)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(messages.StorageNoPreviousFmt, v))
}

// ElementRecord remembers which upstream release an element belonged to
// when its channel release was recorded.
type ElementRecord struct {
	Release string        `json:"release"`
	Element patch.Element `json:"element"`
}

// SaveElement records element e of upstream release.
func (s *Storage) SaveElement(release string, e patch.Element) error {
	data, err := json.MarshalIndent(ElementRecord{Release: release, Element: e}, "", "  ")
	if err != nil {
		return fmt.Errorf(messages.StorageSaveElementFmt, e.Name, err)
	}
	path := filepath.Join(s.elementRecordDir(e.Channel, e.Release), e.Name+".json")
	if err := fsutil.WriteFileAtomic(s.fs, path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf(messages.StorageSaveElementFmt, e.Name, err)
	}
	return nil
}

// LoadElements returns the element records of channel at channelRelease,
// sorted by element name.
func (s *Storage) LoadElements(channel string, channelRelease int) ([]ElementRecord, error) {
	dir := s.elementRecordDir(channel, channelRelease)
	names, err := s.list(dir, false)
	if err != nil {
		return nil, err
	}
	var out []ElementRecord
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf(messages.StorageLoadElementFmt, name, err)
		}
		var rec ElementRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf(messages.StorageLoadElementFmt, name, err)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Element.Name < out[j].Element.Name })
	return out, nil
}

// LoadManifest reads and parses stored manifest id.
func (s *Storage) LoadManifest(id string) (*Manifest, error) {
	path := s.ManifestPath(id)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf(messages.StorageReadManifestFmt, id, err)
	}
	return ParseManifest(data)
}

// Download fetches the manifests and bundles of every element of p, then
// extracts the files selected by langs. Data already present is reused, so
// an interrupted download resumes where it stopped. The patch descriptor is
// stored last.
func (s *Storage) Download(ctx context.Context, client patcher.Client, p *patch.Patch, langs []string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for _, e := range p.Elements {
		m, err := s.fetchManifest(ctx, client, e)
		if err != nil {
			return err
		}
		files := m.FilesFor(langs)
		if err := s.fetchBundles(ctx, client, files); err != nil {
			return err
		}
		dir := s.ElementDir(p.Release, e.Name)
		for _, f := range files {
			if err := s.extract(dir, f); err != nil {
				return err
			}
		}
	}
	return s.SavePatch(p)
}

func (s *Storage) fetchManifest(ctx context.Context, client patcher.Client, e patch.Element) (*Manifest, error) {
	path := s.ManifestPath(e.Manifest)
	data, err := afero.ReadFile(s.fs, path)
	if err == nil {
		return ParseManifest(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf(messages.StorageReadManifestFmt, e.Manifest, err)
	}
	data, err = client.FetchManifest(ctx, e)
	if err != nil {
		return nil, fmt.Errorf(messages.StorageFetchManifestFmt, e.Name, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(s.fs, path, data, 0o644); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Storage) fetchBundles(ctx context.Context, client patcher.Client, files []ManifestFile) error {
	needed := (&Manifest{Files: files}).Bundles()
	for _, id := range needed {
		path := s.BundlePath(id)
		ok, err := fsutil.Exists(s.fs, path)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		data, err := client.FetchBundle(ctx, id)
		if err != nil {
			return fmt.Errorf(messages.StorageFetchBundleFmt, id, err)
		}
		if err := fsutil.WriteFileAtomic(s.fs, path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

var chunkDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

// extract assembles f under dir unless a file of the expected size is
// already there.
func (s *Storage) extract(dir string, f ManifestFile) error {
	target := filepath.Join(dir, filepath.FromSlash(f.Name))
	if info, err := s.fs.Stat(target); err == nil && info.Size() == f.Size {
		return nil
	}

	out := make([]byte, 0, f.Size)
	for _, c := range f.Chunks {
		data, err := s.readChunk(c)
		if err != nil {
			return fmt.Errorf(messages.StorageExtractFmt, f.Name, err)
		}
		out = append(out, data...)
	}
	if int64(len(out)) != f.Size {
		return fmt.Errorf(messages.StorageExtractFmt, f.Name,
			fmt.Errorf(messages.StorageSizeMismatchFmt, len(out), f.Size))
	}
	return fsutil.WriteFileAtomic(s.fs, target, out, 0o644)
}

func (s *Storage) readChunk(c Chunk) ([]byte, error) {
	id, err := ParseBundleID(c.Bundle)
	if err != nil {
		return nil, err
	}
	bundle, err := s.fs.Open(s.BundlePath(id))
	if err != nil {
		return nil, err
	}
	defer func() { _ = bundle.Close() }()

	compressed := make([]byte, c.Size)
	if _, err := bundle.ReadAt(compressed, c.Offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	data, err := chunkDecoder.DecodeAll(compressed, make([]byte, 0, c.UncompressedSize))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != c.UncompressedSize {
		return nil, fmt.Errorf(messages.StorageSizeMismatchFmt, len(data), c.UncompressedSize)
	}
	if c.Blake3 != "" {
		sum := blake3.Sum256(data)
		if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, c.Blake3) {
			return nil, fmt.Errorf(messages.StorageChecksumMismatchFmt, c.Bundle, c.Offset)
		}
	}
	return data, nil
}

// Archives returns the WAD archives extracted for element of release,
// sorted by path. An element without extracted files has none.
func (s *Storage) Archives(release, element string) ([]string, error) {
	root := s.ElementDir(release, element)
	var out []string
	err := afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && IsArchive(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf(messages.StorageListFmt, root, err)
	}
	sort.Strings(out)
	return out, nil
}

// IsArchive reports whether path names a WAD archive.
func IsArchive(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".wad") || strings.HasSuffix(lower, ".wad.client")
}

// ManifestIDs lists the stored manifests.
func (s *Storage) ManifestIDs() ([]string, error) {
	names, err := s.list(filepath.Join(s.root, manifestsDir), false)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		if strings.HasSuffix(name, manifestExt) {
			out = append(out, strings.TrimSuffix(name, manifestExt))
		}
	}
	return out, nil
}

// BundleIDs lists the stored bundles. Files not named like a bundle are
// ignored.
func (s *Storage) BundleIDs() ([]uint64, error) {
	names, err := s.list(filepath.Join(s.root, bundlesDir), false)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for _, name := range names {
		if !strings.HasSuffix(name, bundleExt) {
			continue
		}
		id, err := ParseBundleID(strings.TrimSuffix(name, bundleExt))
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// ReleaseDirs lists the extracted-files directories by release identifier.
// Plain files at that level are not reported.
func (s *Storage) ReleaseDirs() ([]string, error) {
	return s.list(filepath.Join(s.root, filesDir), true)
}

// RemoveManifest deletes stored manifest id.
func (s *Storage) RemoveManifest(id string) error {
	return s.remove(s.ManifestPath(id), false)
}

// RemoveBundle deletes stored bundle id.
func (s *Storage) RemoveBundle(id uint64) error {
	return s.remove(s.BundlePath(id), false)
}

// RemoveReleaseDir deletes the extracted files of release.
func (s *Storage) RemoveReleaseDir(release string) error {
	return s.remove(s.ReleaseDir(release), true)
}

func (s *Storage) remove(path string, all bool) error {
	var err error
	if all {
		err = s.fs.RemoveAll(path)
	} else {
		err = s.fs.Remove(path)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf(messages.StorageRemoveFmt, path, err)
	}
	return nil
}

// list returns the sorted entry names of dir, directories only when dirs is
// set and plain files otherwise. A missing dir is empty.
func (s *Storage) list(dir string, dirs bool) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf(messages.StorageListFmt, dir, err)
	}
	var out []string
	for _, info := range infos {
		if info.IsDir() == dirs {
			out = append(out, info.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
