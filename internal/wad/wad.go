// Package wad reads and writes WAD v3 archives: a table of contents keyed by
// 64-bit path hashes followed by raw, gzip or zstd compressed entry data.
package wad

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	"github.com/conn-castle/patchmirror/internal/messages"
)

// EntryType is the storage type of an entry's data.
type EntryType uint8

// Entry types found in v3 archives.
const (
	TypeRaw         EntryType = 0
	TypeGzip        EntryType = 1
	TypeRedirection EntryType = 2
	TypeZstd        EntryType = 3
	TypeZstdMulti   EntryType = 4
)

const (
	headerSize    = 4 + 256 + 8 + 4
	entrySize     = 32
	maxEntryCount = 1 << 20
)

var magic = [2]byte{'R', 'W'}

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ErrRedirection is returned when reading a redirection entry, which holds
// no content of its own.
var ErrRedirection = errors.New(messages.WadRedirection)

// Entry is one table-of-contents record.
type Entry struct {
	Hash           uint64
	Offset         uint32
	CompressedSize uint32
	Size           uint32
	Type           EntryType
	Subchunks      uint8
	Duplicate      bool
	FirstSubchunk  uint16
	Checksum       uint64
}

// Archive is an open WAD file. Close releases the underlying file.
type Archive struct {
	Path    string
	Major   uint8
	Minor   uint8
	Entries []Entry
	file    afero.File
}

// Open reads the table of contents of the archive at path.
func Open(fs afero.Fs, path string) (*Archive, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf(messages.WadOpenFmt, path, err)
	}
	a, err := readTOC(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf(messages.WadInvalidFmt, path, err)
	}
	a.Path = path
	a.file = f
	return a, nil
}

func readTOC(r io.Reader) (*Archive, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	if header[0] != magic[0] || header[1] != magic[1] {
		return nil, errors.New(messages.WadBadMagic)
	}
	a := &Archive{Major: header[2], Minor: header[3]}
	if a.Major != 3 {
		return nil, fmt.Errorf(messages.WadUnsupportedVersionFmt, a.Major, a.Minor)
	}
	count := binary.LittleEndian.Uint32(header[headerSize-4:])
	if count > maxEntryCount {
		return nil, fmt.Errorf(messages.WadTooManyEntriesFmt, count)
	}
	raw := make([]byte, int(count)*entrySize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	a.Entries = make([]Entry, count)
	for i := range a.Entries {
		b := raw[i*entrySize : (i+1)*entrySize]
		a.Entries[i] = Entry{
			Hash:           binary.LittleEndian.Uint64(b[0:]),
			Offset:         binary.LittleEndian.Uint32(b[8:]),
			CompressedSize: binary.LittleEndian.Uint32(b[12:]),
			Size:           binary.LittleEndian.Uint32(b[16:]),
			Type:           EntryType(b[20] & 0x0F),
			Subchunks:      b[20] >> 4,
			Duplicate:      b[21] != 0,
			FirstSubchunk:  binary.LittleEndian.Uint16(b[22:]),
			Checksum:       binary.LittleEndian.Uint64(b[24:]),
		}
	}
	return a, nil
}

// Close releases the archive file.
func (a *Archive) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Hashes returns the distinct path hashes of the archive.
func (a *Archive) Hashes() []uint64 {
	out := make([]uint64, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, e.Hash)
	}
	return out
}

// Read returns the decompressed content of e.
func (a *Archive) Read(e Entry) ([]byte, error) {
	if e.Type == TypeRedirection {
		return nil, ErrRedirection
	}
	if a.file == nil {
		return nil, fmt.Errorf(messages.WadClosedFmt, a.Path)
	}
	data := make([]byte, e.CompressedSize)
	if _, err := a.file.ReadAt(data, int64(e.Offset)); err != nil {
		return nil, fmt.Errorf(messages.WadReadEntryFmt, e.Hash, a.Path, err)
	}
	out, err := decode(e, data)
	if err != nil {
		return nil, fmt.Errorf(messages.WadReadEntryFmt, e.Hash, a.Path, err)
	}
	if uint32(len(out)) != e.Size {
		return nil, fmt.Errorf(messages.WadSizeMismatchFmt, e.Hash, len(out), e.Size)
	}
	return out, nil
}

var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

func decode(e Entry, data []byte) ([]byte, error) {
	switch e.Type {
	case TypeRaw:
		return data, nil
	case TypeGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		return io.ReadAll(zr)
	case TypeZstd:
		return zstdDecoder.DecodeAll(data, make([]byte, 0, e.Size))
	case TypeZstdMulti:
		// Leading subchunks may be stored uncompressed; everything from the
		// first zstd frame on is compressed.
		idx := bytes.Index(data, zstdMagic)
		if idx < 0 {
			return data, nil
		}
		out := append(make([]byte, 0, e.Size), data[:idx]...)
		return zstdDecoder.DecodeAll(data[idx:], out)
	}
	return nil, fmt.Errorf(messages.WadUnknownTypeFmt, e.Type)
}

// File is an entry to be written by Write.
type File struct {
	Hash uint64
	Data []byte
	Type EntryType
}

// Write encodes files as a v3.1 archive. Entries are sorted by hash as the
// game client expects.
func Write(w io.Writer, files []File, checksum func([]byte) uint64) error {
	sorted := append([]File(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash < sorted[j].Hash })

	var header [headerSize]byte
	header[0], header[1], header[2], header[3] = magic[0], magic[1], 3, 1
	binary.LittleEndian.PutUint32(header[headerSize-4:], uint32(len(sorted)))

	toc := make([]byte, len(sorted)*entrySize)
	var body bytes.Buffer
	offset := uint32(headerSize + len(toc))
	for i, f := range sorted {
		payload, err := encode(f)
		if err != nil {
			return err
		}
		b := toc[i*entrySize : (i+1)*entrySize]
		binary.LittleEndian.PutUint64(b[0:], f.Hash)
		binary.LittleEndian.PutUint32(b[8:], offset)
		binary.LittleEndian.PutUint32(b[12:], uint32(len(payload)))
		binary.LittleEndian.PutUint32(b[16:], uint32(len(f.Data)))
		b[20] = byte(f.Type)
		binary.LittleEndian.PutUint64(b[24:], checksum(f.Data))
		body.Write(payload)
		offset += uint32(len(payload))
	}

	for _, chunk := range [][]byte{header[:], toc, body.Bytes()} {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

func encode(f File) ([]byte, error) {
	switch f.Type {
	case TypeRaw:
		return f.Data, nil
	case TypeGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(f.Data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case TypeZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer func() { _ = enc.Close() }()
		return enc.EncodeAll(f.Data, nil), nil
	}
	return nil, fmt.Errorf(messages.WadUnknownTypeFmt, f.Type)
}
