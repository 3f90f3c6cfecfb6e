package testutil

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/conn-castle/patchmirror/internal/hashes"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/patcher"
	"github.com/conn-castle/patchmirror/internal/version"
	"github.com/conn-castle/patchmirror/internal/wad"
)

// File is one file published inside a fixture manifest.
type File struct {
	Name  string
	Langs []string
	Data  []byte
}

// Upstream is an in-memory patcher.Client. Fetch counters let tests assert
// that cached data is not downloaded twice.
type Upstream struct {
	mu        sync.Mutex
	snapshots map[version.Branch]*patch.Patch
	manifests map[string][]byte
	bundles   map[uint64][]byte

	CurrentCalls    int
	ManifestFetches int
	BundleFetches   int
	// CurrentErr, when set, is returned by Current.
	CurrentErr error
}

var _ patcher.Client = (*Upstream)(nil)

// NewUpstream returns an empty upstream.
func NewUpstream() *Upstream {
	return &Upstream{
		snapshots: make(map[version.Branch]*patch.Patch),
		manifests: make(map[string][]byte),
		bundles:   make(map[uint64][]byte),
	}
}

// SetCurrent makes p the current release of branch.
// p is copied so later mutations by the caller are not observed.
func (u *Upstream) SetCurrent(branch version.Branch, p *patch.Patch) {
	u.mu.Lock()
	defer u.mu.Unlock()
	cp := *p
	cp.Elements = append([]patch.Element(nil), p.Elements...)
	cp.Stored = false
	u.snapshots[branch] = &cp
}

// Publish stores a manifest called manifestID whose files all live in one
// bundle called bundleID. Each file is a single zstd chunk carrying its
// blake3 digest.
// t is the active test; files are the manifest entries in order.
func (u *Upstream) Publish(t *testing.T, manifestID string, bundleID uint64, files []File) {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	defer func() { _ = enc.Close() }()

	type chunk struct {
		Bundle           string `json:"bundle"`
		Offset           int    `json:"offset"`
		Size             int    `json:"size"`
		UncompressedSize int    `json:"uncompressed_size"`
		Blake3           string `json:"blake3"`
	}
	type file struct {
		Name   string   `json:"name"`
		Langs  []string `json:"langs,omitempty"`
		Size   int      `json:"size"`
		Chunks []chunk  `json:"chunks"`
	}

	var bundle bytes.Buffer
	entries := make([]file, 0, len(files))
	for _, f := range files {
		frame := enc.EncodeAll(f.Data, nil)
		sum := blake3.Sum256(f.Data)
		entries = append(entries, file{
			Name:  f.Name,
			Langs: f.Langs,
			Size:  len(f.Data),
			Chunks: []chunk{{
				Bundle:           fmt.Sprintf("%016X", bundleID),
				Offset:           bundle.Len(),
				Size:             len(frame),
				UncompressedSize: len(f.Data),
				Blake3:           hex.EncodeToString(sum[:]),
			}},
		})
		bundle.Write(frame)
	}
	manifest, err := json.Marshal(map[string]any{"id": manifestID, "files": entries})
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.manifests[manifestID] = manifest
	u.bundles[bundleID] = bundle.Bytes()
}

// Current implements patcher.Client.
func (u *Upstream) Current(_ context.Context, branch version.Branch) (*patch.Patch, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.CurrentCalls++
	if u.CurrentErr != nil {
		return nil, u.CurrentErr
	}
	p, ok := u.snapshots[branch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", patcher.ErrNotFound, branch)
	}
	cp := *p
	cp.Elements = append([]patch.Element(nil), p.Elements...)
	return &cp, nil
}

// FetchManifest implements patcher.Client.
func (u *Upstream) FetchManifest(_ context.Context, e patch.Element) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ManifestFetches++
	data, ok := u.manifests[e.Manifest]
	if !ok {
		return nil, fmt.Errorf("%w: %s", patcher.ErrNotFound, e.Manifest)
	}
	return data, nil
}

// FetchBundle implements patcher.Client.
func (u *Upstream) FetchBundle(_ context.Context, id uint64) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.BundleFetches++
	data, ok := u.bundles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %016X", patcher.ErrNotFound, id)
	}
	return data, nil
}

// WAD encodes an archive whose entries are keyed by the hash of each path.
// t is the active test; files maps entry paths to raw content.
func WAD(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	byHash := make(map[uint64][]byte, len(files))
	for p, data := range files {
		byHash[hashes.Hash(p)] = data
	}
	return WADHashes(t, byHash)
}

// WADHashes encodes an archive keyed directly by hash. Entries are zstd
// compressed and checksummed with xxh64 of their content.
// t is the active test; entries maps hashes to raw content.
func WADHashes(t *testing.T, entries map[uint64][]byte) []byte {
	t.Helper()
	keys := make([]uint64, 0, len(entries))
	for h := range entries {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	files := make([]wad.File, 0, len(keys))
	for _, h := range keys {
		files = append(files, wad.File{Hash: h, Data: entries[h], Type: wad.TypeZstd})
	}
	var buf bytes.Buffer
	if err := wad.Write(&buf, files, xxhash.Sum64); err != nil {
		t.Fatalf("write wad: %v", err)
	}
	return buf.Bytes()
}

// Element builds a patch element whose manifest shares its name.
// name is the element name; channel and release identify its channel release.
func Element(name, channel string, release int) patch.Element {
	return patch.Element{
		Name:     name,
		Channel:  channel,
		Release:  release,
		Manifest: fmt.Sprintf("%s-%s-%d", name, channel, release),
	}
}
