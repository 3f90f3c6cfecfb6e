package hashes

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/conn-castle/patchmirror/internal/fsutil"
	"github.com/conn-castle/patchmirror/internal/messages"
)

// Set is a set of content hashes.
type Set map[uint64]struct{}

// NewSet builds a set from hashes.
func NewSet(hs ...uint64) Set {
	s := make(Set, len(hs))
	for _, h := range hs {
		s[h] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(h uint64) bool {
	_, ok := s[h]
	return ok
}

// Union returns s ∪ o.
func (s Set) Union(o Set) Set {
	out := make(Set, len(s)+len(o))
	for h := range s {
		out[h] = struct{}{}
	}
	for h := range o {
		out[h] = struct{}{}
	}
	return out
}

// SymmetricDifference returns the hashes present in exactly one of s and o.
func (s Set) SymmetricDifference(o Set) Set {
	out := make(Set)
	for h := range s {
		if !o.Has(h) {
			out[h] = struct{}{}
		}
	}
	for h := range o {
		if !s.Has(h) {
			out[h] = struct{}{}
		}
	}
	return out
}

// Intersects reports whether s and o share at least one hash.
func (s Set) Intersects(o Set) bool {
	small, large := s, o
	if len(small) > len(large) {
		small, large = large, small
	}
	for h := range small {
		if large.Has(h) {
			return true
		}
	}
	return false
}

// Sorted returns the hashes in ascending order.
func (s Set) Sorted() []uint64 {
	out := make([]uint64, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LoadSet reads a file of one hexadecimal hash per line. It returns
// os.ErrNotExist (wrapped) when the file is missing.
func LoadSet(fs afero.Fs, path string) (Set, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf(messages.HashesSetMissingFmt, path, os.ErrNotExist)
		}
		return nil, fmt.Errorf(messages.HashesLoadFmt, path, err)
	}
	defer func() { _ = f.Close() }()

	s := make(Set)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		h, err := ParseHash(line)
		if err != nil {
			return nil, fmt.Errorf(messages.HashesLineErrorFmt, path, lineNo)
		}
		s[h] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf(messages.HashesLoadFmt, path, err)
	}
	return s, nil
}

// SaveSet atomically writes s, one hash per line in ascending order.
func SaveSet(fs afero.Fs, path string, s Set) error {
	var b strings.Builder
	for _, h := range s.Sorted() {
		b.WriteString(Format(h))
		b.WriteByte('\n')
	}
	if err := fsutil.WriteFileAtomic(fs, path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf(messages.HashesSaveFmt, path, err)
	}
	return nil
}
