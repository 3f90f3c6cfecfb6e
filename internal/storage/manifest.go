package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/conn-castle/patchmirror/internal/messages"
)

// Chunk is a compressed slice of a bundle.
type Chunk struct {
	Bundle           string `json:"bundle"`
	Offset           int64  `json:"offset"`
	Size             int64  `json:"size"`
	UncompressedSize int64  `json:"uncompressed_size"`
	// Blake3 is the hex digest of the uncompressed chunk, when published.
	Blake3 string `json:"blake3,omitempty"`
}

// ManifestFile is one file of an element, assembled from chunks.
type ManifestFile struct {
	Name   string   `json:"name"`
	Langs  []string `json:"langs,omitempty"`
	Size   int64    `json:"size"`
	Chunks []Chunk  `json:"chunks"`
}

// Neutral reports whether the file is needed regardless of language.
func (f ManifestFile) Neutral() bool {
	if len(f.Langs) == 0 {
		return true
	}
	for _, l := range f.Langs {
		if strings.EqualFold(l, "none") {
			return true
		}
	}
	return false
}

// Manifest lists the files of one element release.
type Manifest struct {
	ID    string         `json:"id"`
	Files []ManifestFile `json:"files"`
}

// ParseManifest decodes and validates manifest data.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf(messages.StorageManifestDecodeFmt, err)
	}
	for _, f := range m.Files {
		if f.Name == "" || strings.HasPrefix(f.Name, "/") || strings.Contains(f.Name, "..") {
			return nil, fmt.Errorf(messages.StorageManifestBadNameFmt, m.ID, f.Name)
		}
		for _, c := range f.Chunks {
			if _, err := ParseBundleID(c.Bundle); err != nil {
				return nil, err
			}
		}
	}
	return &m, nil
}

// FilesFor returns the files needed for langs: language-neutral files plus
// files of any listed language. An empty langs selects every file.
func (m *Manifest) FilesFor(langs []string) []ManifestFile {
	if len(langs) == 0 {
		return m.Files
	}
	var out []ManifestFile
	for _, f := range m.Files {
		if f.Neutral() || matchesLang(f.Langs, langs) {
			out = append(out, f)
		}
	}
	return out
}

func matchesLang(fileLangs, wanted []string) bool {
	for _, fl := range fileLangs {
		for _, w := range wanted {
			if strings.EqualFold(fl, w) {
				return true
			}
		}
	}
	return false
}

// Bundles returns every bundle referenced by the manifest across all
// languages, sorted.
func (m *Manifest) Bundles() []uint64 {
	seen := make(map[uint64]struct{})
	for _, f := range m.Files {
		for _, c := range f.Chunks {
			id, err := ParseBundleID(c.Bundle)
			if err != nil {
				continue
			}
			seen[id] = struct{}{}
		}
	}
	out := make([]uint64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseBundleID reads a 16-digit hexadecimal bundle identifier.
func ParseBundleID(raw string) (uint64, error) {
	if len(raw) != 16 {
		return 0, fmt.Errorf(messages.StorageBadBundleIDFmt, raw)
	}
	id, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf(messages.StorageBadBundleIDFmt, raw)
	}
	return id, nil
}

// BundleFileName renders the fixed-width file name of a bundle.
func BundleFileName(id uint64) string {
	return fmt.Sprintf("%016X.bundle", id)
}
